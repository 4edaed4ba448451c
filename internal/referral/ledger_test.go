package referral

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"stellar-copy-engine/internal/domain"
	"stellar-copy-engine/internal/storage/memory"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type ledgerFixture struct {
	users     *memory.UserStore
	referrals *memory.ReferralStore
	rewards   *memory.RewardStore
	volumes   *memory.VolumeStore
	ledger    *Ledger
}

func newLedgerFixture(t *testing.T) *ledgerFixture {
	t.Helper()
	f := &ledgerFixture{
		users:     memory.NewUserStore(),
		referrals: memory.NewReferralStore(),
		rewards:   memory.NewRewardStore(),
		volumes:   memory.NewVolumeStore(),
	}
	f.ledger = NewLedger(f.users, f.referrals, f.rewards, f.volumes, zerolog.Nop(),
		WithClock(func() time.Time { return time.Unix(1750000000, 0) }))
	return f
}

func (f *ledgerFixture) addUser(t *testing.T, ownerID string, founder bool) {
	t.Helper()
	if err := f.users.Upsert(context.Background(), &domain.User{OwnerID: ownerID, PublicKey: "G" + ownerID, Founder: founder}); err != nil {
		t.Fatalf("upsert user: %v", err)
	}
}

func (f *ledgerFixture) refer(t *testing.T, referee, referrer string) {
	t.Helper()
	if err := f.referrals.Insert(context.Background(), &domain.Referral{RefereeID: referee, ReferrerID: referrer}); err != nil {
		t.Fatalf("insert referral: %v", err)
	}
}

func TestFeeRateTiers(t *testing.T) {
	f := newLedgerFixture(t)
	f.addUser(t, "founder", true)
	f.addUser(t, "referred", false)
	f.addUser(t, "plain", false)
	f.refer(t, "referred", "plain")

	cases := []struct {
		owner string
		want  string
	}{
		{"founder", "0.001"},
		{"referred", "0.009"},
		{"plain", "0.01"},
		{"stranger", "0.01"},
	}
	for _, tc := range cases {
		rate, err := f.ledger.FeeRate(context.Background(), tc.owner)
		if err != nil {
			t.Fatalf("FeeRate(%s): %v", tc.owner, err)
		}
		if !rate.Equal(dec(tc.want)) {
			t.Errorf("FeeRate(%s) = %s, want %s", tc.owner, rate, tc.want)
		}
	}
}

func TestFounderTierBeatsReferred(t *testing.T) {
	f := newLedgerFixture(t)
	f.addUser(t, "both", true)
	f.addUser(t, "parent", false)
	f.refer(t, "both", "parent")

	rate, err := f.ledger.FeeRate(context.Background(), "both")
	if err != nil {
		t.Fatalf("FeeRate: %v", err)
	}
	if !rate.Equal(FeeRateFounder) {
		t.Errorf("rate = %s, want founder tier", rate)
	}
}

func TestShareDecayAcrossLevels(t *testing.T) {
	f := newLedgerFixture(t)
	// trader -> l1 -> l2 -> l3, all standard volume.
	f.refer(t, "trader", "l1")
	f.refer(t, "l1", "l2")
	f.refer(t, "l2", "l3")
	for _, id := range []string{"l1", "l2", "l3"} {
		f.addUser(t, id, false)
	}

	if err := f.ledger.RecordTrade(context.Background(), "trader", "tx1", dec("1000"), dec("10")); err != nil {
		t.Fatalf("RecordTrade: %v", err)
	}

	entries, err := f.rewards.ListUnpaid(context.Background())
	if err != nil {
		t.Fatalf("ListUnpaid: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("entries = %d, want one per chain level", len(entries))
	}
	// Each level is computed against the full 10-unit fee.
	want := map[int]string{1: "2.5", 2: "2.375", 3: "2.25"}
	for _, e := range entries {
		if !e.Amount.Equal(dec(want[e.Level])) {
			t.Errorf("level %d share = %s, want %s", e.Level, e.Amount, want[e.Level])
		}
		if e.SourceOwnerID != "trader" || e.TxHash != "tx1" || e.Status != domain.RewardUnpaid {
			t.Errorf("entry = %+v", e)
		}
	}
}

func TestHighVolumeReferrerGetsUpgradedBase(t *testing.T) {
	f := newLedgerFixture(t)
	f.refer(t, "trader", "whale")
	f.addUser(t, "whale", false)
	if err := f.volumes.Insert(context.Background(), &domain.TradeVolume{
		OwnerID:      "whale",
		TxHash:       "prior",
		NativeVolume: dec("150000"),
		TimestampMs:  time.Unix(1750000000, 0).Add(-time.Hour).UnixMilli(),
	}); err != nil {
		t.Fatalf("seed volume: %v", err)
	}

	if err := f.ledger.RecordTrade(context.Background(), "trader", "tx1", dec("1000"), dec("10")); err != nil {
		t.Fatalf("RecordTrade: %v", err)
	}
	entries, _ := f.rewards.ListUnpaid(context.Background())
	if len(entries) != 1 {
		t.Fatalf("entries = %d", len(entries))
	}
	if !entries[0].Amount.Equal(dec("3.5")) {
		t.Errorf("share = %s, want 35%% of the fee", entries[0].Amount)
	}
}

func TestChainStopsAtFiveLevels(t *testing.T) {
	f := newLedgerFixture(t)
	chain := []string{"trader", "a", "b", "c", "d", "e", "f", "g"}
	for i := 0; i < len(chain)-1; i++ {
		f.refer(t, chain[i], chain[i+1])
	}

	if err := f.ledger.RecordTrade(context.Background(), "trader", "tx1", dec("1000"), dec("10")); err != nil {
		t.Fatalf("RecordTrade: %v", err)
	}
	entries, _ := f.rewards.ListUnpaid(context.Background())
	if len(entries) != MaxShareLevels {
		t.Errorf("entries = %d, want capped at %d levels", len(entries), MaxShareLevels)
	}
}

func TestReferrerCycleStopsWalk(t *testing.T) {
	f := newLedgerFixture(t)
	f.refer(t, "trader", "a")
	f.refer(t, "a", "trader")

	if err := f.ledger.RecordTrade(context.Background(), "trader", "tx1", dec("1000"), dec("10")); err != nil {
		t.Fatalf("RecordTrade: %v", err)
	}
	entries, _ := f.rewards.ListUnpaid(context.Background())
	if len(entries) != 1 {
		t.Errorf("entries = %d, want walk stopped at the cycle", len(entries))
	}
}

func TestVolumeLogIdempotentPerTx(t *testing.T) {
	f := newLedgerFixture(t)
	for i := 0; i < 3; i++ {
		if err := f.ledger.RecordTrade(context.Background(), "trader", "tx1", dec("100"), decimal.Zero); err != nil {
			t.Fatalf("RecordTrade: %v", err)
		}
	}
	sum, err := f.volumes.SumSince(context.Background(), "trader", 0)
	if err != nil {
		t.Fatalf("SumSince: %v", err)
	}
	if !sum.Equal(dec("100")) {
		t.Errorf("volume = %s, want single 100 despite replays", sum)
	}
}

func TestZeroFeeWritesNoShares(t *testing.T) {
	f := newLedgerFixture(t)
	f.refer(t, "trader", "a")
	if err := f.ledger.RecordTrade(context.Background(), "trader", "tx1", dec("100"), decimal.Zero); err != nil {
		t.Fatalf("RecordTrade: %v", err)
	}
	entries, _ := f.rewards.ListUnpaid(context.Background())
	if len(entries) != 0 {
		t.Errorf("entries = %d, want none for a zero fee", len(entries))
	}
}
