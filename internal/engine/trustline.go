package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"stellar-copy-engine/internal/domain"
	"stellar-copy-engine/internal/rescale"
	"stellar-copy-engine/internal/signing"
	"stellar-copy-engine/internal/xdr"
)

// trustlineReserve is the native balance one extra subentry locks up.
var trustlineReserve = decimal.NewFromFloat(0.5)

// Trustlines manages the follower's trustlines: it establishes missing
// lines before a trade and removes idle ones afterwards.
type Trustlines struct {
	gw         Gateway
	signer     signing.Signer
	passphrase string
	log        zerolog.Logger
	now        func() time.Time
}

var (
	_ rescale.TrustlineEstablisher = (*Trustlines)(nil)
	_ Housekeeper                  = (*Trustlines)(nil)
)

// NewTrustlines builds a trustline manager over the gateway and signer.
func NewTrustlines(gw Gateway, signer signing.Signer, passphrase string, log zerolog.Logger) *Trustlines {
	return &Trustlines{
		gw:         gw,
		signer:     signer,
		passphrase: passphrase,
		log:        log.With().Str("component", "trustlines").Logger(),
		now:        time.Now,
	}
}

// EnsureTrustline creates the follower's trustline for asset when missing.
// Returns only after the change is confirmed in a ledger.
func (t *Trustlines) EnsureTrustline(ctx context.Context, ownerID, address string, asset domain.Asset) error {
	if asset.IsNative() {
		return nil
	}
	snap, err := t.gw.Account(ctx, address)
	if err != nil {
		return fmt.Errorf("load account %s: %w", address, err)
	}
	if _, ok := snap.Balance(asset); ok {
		return nil
	}
	feePerOp := t.gw.RecommendedFee(ctx)
	needed := trustlineReserve.Add(xdr.FromStroops(feePerOp))
	if snap.TradableNative().LessThan(needed) {
		return &rescale.ErrInsufficientBalance{
			Asset:    domain.NativeAsset(),
			Required: needed,
			Tradable: snap.TradableNative(),
		}
	}
	if err := t.changeTrust(ctx, ownerID, address, snap.Sequence, feePerOp, asset, xdr.MaxTrustLimit); err != nil {
		return fmt.Errorf("establish trustline %s: %w", asset, err)
	}
	t.log.Info().Str("account", address).Str("asset", asset.String()).Msg("trustline established")
	return nil
}

// RemoveIdleTrustlines drops the account's zero-balance non-native lines to
// free their reserves. Lines with locked liabilities are left alone, and
// each removal pays for itself out of the tradable balance. Removal errors
// skip to the next line; the trade that triggered the cleanup stands.
func (t *Trustlines) RemoveIdleTrustlines(ctx context.Context, ownerID, address string) error {
	snap, err := t.gw.Account(ctx, address)
	if err != nil {
		return fmt.Errorf("load account %s: %w", address, err)
	}
	feePerOp := t.gw.RecommendedFee(ctx)
	feeCost := xdr.FromStroops(feePerOp)
	seq := snap.Sequence
	// Each removal spends a fee out of the snapshot's balance; track the
	// remainder locally instead of re-reading the account.
	available := snap.TradableNative()
	for _, line := range snap.Balances {
		if line.Asset.IsNative() || !line.Balance.IsZero() || line.SellingLiabilities.IsPositive() {
			continue
		}
		if available.LessThan(feeCost) {
			t.log.Debug().Str("account", address).Msg("skipping trustline cleanup, balance below fee")
			return nil
		}
		if err := t.changeTrust(ctx, ownerID, address, seq, feePerOp, line.Asset, 0); err != nil {
			t.log.Warn().Err(err).Str("asset", line.Asset.String()).Msg("removing idle trustline failed")
			continue
		}
		seq++
		available = available.Sub(feeCost)
		t.log.Info().Str("account", address).Str("asset", line.Asset.String()).Msg("idle trustline removed")
	}
	return nil
}

// changeTrust signs and submits one ChangeTrust op, waiting for the ledger.
func (t *Trustlines) changeTrust(ctx context.Context, ownerID, address string, seq, feePerOp int64, asset domain.Asset, limit int64) error {
	source, err := xdr.MuxedAccountFromAddress(address)
	if err != nil {
		return err
	}
	line, err := xdr.AssetFromDomain(asset)
	if err != nil {
		return err
	}
	env := &xdr.TransactionEnvelope{Tx: xdr.Transaction{
		SourceAccount: source,
		Fee:           uint32(feePerOp),
		SeqNum:        seq + 1,
		Cond: xdr.Preconditions{
			Type:       xdr.PrecondTime,
			TimeBounds: xdr.TimeBounds{MaxTime: uint64(t.now().Add(txValidity).Unix())},
		},
		Operations: []xdr.Operation{{Body: xdr.OperationBody{
			Type:        xdr.OpChangeTrust,
			ChangeTrust: &xdr.ChangeTrustOp{Line: line, Limit: limit},
		}}},
	}}
	hash, err := env.Tx.Hash(t.passphrase)
	if err != nil {
		return err
	}
	sig, err := t.signer.Sign(ctx, ownerID, hash)
	if err != nil {
		return err
	}
	env.Signatures = append(env.Signatures, xdr.DecorateSignature(source.Ed25519, sig))
	b64, err := env.EncodeBase64()
	if err != nil {
		return err
	}
	txHash, err := t.gw.SubmitAsync(ctx, b64)
	if err != nil {
		return err
	}
	_, err = t.gw.AwaitConfirmation(ctx, txHash)
	return err
}
