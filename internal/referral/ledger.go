// Package referral prices usage fees and distributes referral shares over
// the single-parent referrer chain.
package referral

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"stellar-copy-engine/internal/domain"
	"stellar-copy-engine/internal/storage"
	"stellar-copy-engine/internal/xdr"
)

// Fee tiers, resolved fresh at trade time.
var (
	FeeRateFounder  = decimal.RequireFromString("0.001")
	FeeRateReferred = decimal.RequireFromString("0.009")
	FeeRateDefault  = decimal.RequireFromString("0.01")
)

// Share policy.
var (
	// ShareBaseHighVolume applies when the referrer's own trailing
	// seven-day volume reaches HighVolumeThreshold.
	ShareBaseHighVolume = decimal.RequireFromString("0.35")
	ShareBaseStandard   = decimal.RequireFromString("0.25")
	HighVolumeThreshold = decimal.RequireFromString("100000")
	// ShareLevelDecay reduces the share base by 5 points per level past
	// the first.
	ShareLevelDecay = decimal.RequireFromString("0.05")
)

// MaxShareLevels bounds the referrer-chain walk.
const MaxShareLevels = 5

// SharesUseFullFee pins every level's share to the full fee amount, not
// the remainder after higher levels. The per-level entries are independent
// and can sum past the fee itself; that is the intended payout policy, not
// an accounting bug.
const SharesUseFullFee = true

// HighVolumeWindow is the lookback for the share-base upgrade.
const HighVolumeWindow = 7 * 24 * time.Hour

// Ledger resolves fee tiers and writes volume and reward entries.
type Ledger struct {
	users     storage.UserStore
	referrals storage.ReferralStore
	rewards   storage.RewardStore
	volumes   storage.VolumeStore
	log       zerolog.Logger
	now       func() time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// NewLedger builds a fee and referral ledger over the given stores.
func NewLedger(users storage.UserStore, referrals storage.ReferralStore, rewards storage.RewardStore, volumes storage.VolumeStore, log zerolog.Logger, opts ...Option) *Ledger {
	l := &Ledger{
		users:     users,
		referrals: referrals,
		rewards:   rewards,
		volumes:   volumes,
		log:       log.With().Str("component", "referral").Logger(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// FeeRate resolves the owner's fee tier at trade time: founders 0.1%,
// referred users 0.9%, everyone else 1%. Unknown owners get the default
// tier.
func (l *Ledger) FeeRate(ctx context.Context, ownerID string) (decimal.Decimal, error) {
	user, err := l.users.Get(ctx, ownerID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return decimal.Zero, fmt.Errorf("resolve fee tier for %s: %w", ownerID, err)
	}
	if user != nil && user.Founder {
		return FeeRateFounder, nil
	}
	_, err = l.referrals.ReferrerOf(ctx, ownerID)
	switch {
	case err == nil:
		return FeeRateReferred, nil
	case errors.Is(err, storage.ErrNotFound):
		return FeeRateDefault, nil
	default:
		return decimal.Zero, fmt.Errorf("resolve referrer of %s: %w", ownerID, err)
	}
}

// RecordTrade logs a realized trade's native volume and credits referral
// shares for the fee it produced. The volume log is idempotent per tx
// hash, so replays of a confirmed trade do not double-count.
func (l *Ledger) RecordTrade(ctx context.Context, ownerID, txHash string, nativeVolume, fee decimal.Decimal) error {
	nowMs := l.now().UnixMilli()
	err := l.volumes.Insert(ctx, &domain.TradeVolume{
		OwnerID:      ownerID,
		TxHash:       txHash,
		NativeVolume: nativeVolume,
		TimestampMs:  nowMs,
	})
	if err != nil {
		return fmt.Errorf("log trade volume: %w", err)
	}
	if !fee.IsPositive() {
		return nil
	}
	return l.creditShares(ctx, ownerID, txHash, fee, nowMs)
}

// creditShares walks the referrer chain and writes one independent entry
// per level against the full fee.
func (l *Ledger) creditShares(ctx context.Context, ownerID, txHash string, fee decimal.Decimal, nowMs int64) error {
	sinceMs := l.now().Add(-HighVolumeWindow).UnixMilli()
	seen := map[string]bool{ownerID: true}
	current := ownerID

	for level := 1; level <= MaxShareLevels; level++ {
		referrer, err := l.referrals.ReferrerOf(ctx, current)
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("walk referrer chain at level %d: %w", level, err)
		}
		if seen[referrer] {
			l.log.Warn().Str("owner", ownerID).Str("referrer", referrer).Msg("referrer cycle detected, stopping share walk")
			return nil
		}
		seen[referrer] = true

		share := l.levelShare(ctx, referrer, level, sinceMs)
		if !share.IsPositive() {
			return nil
		}
		amount := fee.Mul(share).Round(xdr.AmountDecimals)
		if !amount.IsPositive() {
			return nil
		}
		entry := &domain.RewardEntry{
			BeneficiaryID: referrer,
			SourceOwnerID: ownerID,
			Level:         level,
			Amount:        amount,
			TxHash:        txHash,
			Status:        domain.RewardUnpaid,
			CreatedAt:     nowMs,
		}
		if err := l.rewards.Insert(ctx, entry); err != nil {
			return fmt.Errorf("credit level-%d share to %s: %w", level, referrer, err)
		}
		current = referrer
	}
	return nil
}

// levelShare is base(referrer volume) * (1 - 0.05*(level-1)). A failed
// volume lookup falls back to the standard base.
func (l *Ledger) levelShare(ctx context.Context, referrer string, level int, sinceMs int64) decimal.Decimal {
	base := ShareBaseStandard
	volume, err := l.volumes.SumSince(ctx, referrer, sinceMs)
	if err != nil {
		l.log.Warn().Str("referrer", referrer).Err(err).Msg("volume lookup failed, using standard share base")
	} else if volume.GreaterThanOrEqual(HighVolumeThreshold) {
		base = ShareBaseHighVolume
	}
	decay := decimal.NewFromInt(1).Sub(ShareLevelDecay.Mul(decimal.NewFromInt(int64(level - 1))))
	return base.Mul(decay)
}
