package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"stellar-copy-engine/internal/domain"
	"stellar-copy-engine/internal/rescale"
	"stellar-copy-engine/internal/xdr"
)

func newTrustlines(gw Gateway) *Trustlines {
	tl := NewTrustlines(gw, &fakeSigner{}, xdr.NetworkTestnet, zerolog.Nop())
	tl.now = func() time.Time { return time.Unix(1750000000, 0) }
	return tl
}

func TestEnsureTrustlineCreatesMissingLine(t *testing.T) {
	follower := testAddress(t, 1)
	gw := &fakeGateway{
		feePerOp: 100,
		snap: &domain.AccountSnapshot{
			Address:  follower,
			Sequence: 7,
			Balances: []domain.BalanceLine{{Asset: domain.NativeAsset(), Balance: dec("100")}},
		},
	}
	err := newTrustlines(gw).EnsureTrustline(context.Background(), "owner-1", follower, usdc(t))
	if err != nil {
		t.Fatalf("EnsureTrustline: %v", err)
	}
	if len(gw.submitted) != 1 {
		t.Fatalf("submitted %d transactions, want 1", len(gw.submitted))
	}
	env := decodeSubmitted(t, gw.submitted[0])
	op := env.Tx.Operations[0].Body
	if op.Type != xdr.OpChangeTrust {
		t.Fatalf("op type = %d", op.Type)
	}
	if op.ChangeTrust.Limit != xdr.MaxTrustLimit {
		t.Errorf("limit = %d, want the i64 ceiling", op.ChangeTrust.Limit)
	}
	if op.ChangeTrust.Line.Code != "USDC" {
		t.Errorf("line = %+v", op.ChangeTrust.Line)
	}
	if env.Tx.SeqNum != 8 {
		t.Errorf("seqnum = %d", env.Tx.SeqNum)
	}
}

func TestEnsureTrustlineExistingIsNoop(t *testing.T) {
	follower := testAddress(t, 1)
	asset := usdc(t)
	gw := &fakeGateway{
		feePerOp: 100,
		snap: &domain.AccountSnapshot{
			Address:  follower,
			Sequence: 7,
			Balances: []domain.BalanceLine{
				{Asset: domain.NativeAsset(), Balance: dec("100")},
				{Asset: asset, Balance: dec("0")},
			},
		},
	}
	if err := newTrustlines(gw).EnsureTrustline(context.Background(), "owner-1", follower, asset); err != nil {
		t.Fatalf("EnsureTrustline: %v", err)
	}
	if len(gw.submitted) != 0 {
		t.Errorf("submitted %d transactions for an existing line", len(gw.submitted))
	}
}

func TestEnsureTrustlineRequiresReserveHeadroom(t *testing.T) {
	follower := testAddress(t, 1)
	// Balance 2.3 leaves 0.3 tradable over the base reserve, below the 0.5
	// a new subentry locks up.
	gw := &fakeGateway{
		feePerOp: 100,
		snap: &domain.AccountSnapshot{
			Address:  follower,
			Balances: []domain.BalanceLine{{Asset: domain.NativeAsset(), Balance: dec("2.3")}},
		},
	}
	err := newTrustlines(gw).EnsureTrustline(context.Background(), "owner-1", follower, usdc(t))
	var insufficient *rescale.ErrInsufficientBalance
	if !errors.As(err, &insufficient) {
		t.Fatalf("err = %v, want insufficient balance", err)
	}
	if len(gw.submitted) != 0 {
		t.Errorf("submitted despite missing reserve headroom")
	}
}

func TestRemoveIdleTrustlines(t *testing.T) {
	follower := testAddress(t, 1)
	idle := usdc(t)
	held := domain.Asset{Code: "AQUA", Issuer: testAddress(t, 41)}
	locked := domain.Asset{Code: "EURC", Issuer: testAddress(t, 42)}
	gw := &fakeGateway{
		feePerOp: 100,
		snap: &domain.AccountSnapshot{
			Address:       follower,
			Sequence:      7,
			SubentryCount: 3,
			Balances: []domain.BalanceLine{
				{Asset: domain.NativeAsset(), Balance: dec("100")},
				{Asset: idle, Balance: dec("0")},
				{Asset: held, Balance: dec("12")},
				{Asset: locked, Balance: dec("0"), SellingLiabilities: dec("5")},
			},
		},
	}
	if err := newTrustlines(gw).RemoveIdleTrustlines(context.Background(), "owner-1", follower); err != nil {
		t.Fatalf("RemoveIdleTrustlines: %v", err)
	}
	if len(gw.submitted) != 1 {
		t.Fatalf("submitted %d removals, want only the idle line", len(gw.submitted))
	}
	env := decodeSubmitted(t, gw.submitted[0])
	op := env.Tx.Operations[0].Body
	if op.Type != xdr.OpChangeTrust || op.ChangeTrust.Limit != 0 {
		t.Fatalf("op = %+v, want ChangeTrust with zero limit", op)
	}
	if op.ChangeTrust.Line.Code != "USDC" {
		t.Errorf("removed %s, want the zero-balance line", op.ChangeTrust.Line.Code)
	}
}

func TestRemoveIdleTrustlinesStopsWhenFeesExhaustBalance(t *testing.T) {
	follower := testAddress(t, 1)
	first := usdc(t)
	second := domain.Asset{Code: "AQUA", Issuer: testAddress(t, 41)}
	// Two subentries put the reserve at 3; the remaining 0.000015 covers one
	// 100-stroop fee but not two.
	gw := &fakeGateway{
		feePerOp: 100,
		snap: &domain.AccountSnapshot{
			Address:       follower,
			Sequence:      7,
			SubentryCount: 2,
			Balances: []domain.BalanceLine{
				{Asset: domain.NativeAsset(), Balance: dec("3.000015")},
				{Asset: first, Balance: dec("0")},
				{Asset: second, Balance: dec("0")},
			},
		},
	}
	if err := newTrustlines(gw).RemoveIdleTrustlines(context.Background(), "owner-1", follower); err != nil {
		t.Fatalf("RemoveIdleTrustlines: %v", err)
	}
	if len(gw.submitted) != 1 {
		t.Fatalf("submitted %d removals, want 1 before the balance runs out", len(gw.submitted))
	}
	env := decodeSubmitted(t, gw.submitted[0])
	if env.Tx.Operations[0].Body.ChangeTrust.Line.Code != "USDC" {
		t.Errorf("removed %s, want the first idle line", env.Tx.Operations[0].Body.ChangeTrust.Line.Code)
	}
}
