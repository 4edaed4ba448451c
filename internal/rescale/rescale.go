// Package rescale turns a watched wallet's trade signal into a
// balance-checked order sized for the follower.
package rescale

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"stellar-copy-engine/internal/domain"
	"stellar-copy-engine/internal/xdr"
)

// Gateway is the slice of the Horizon client the rescaler needs.
type Gateway interface {
	Account(ctx context.Context, address string) (*domain.AccountSnapshot, error)
	StrictSendQuote(ctx context.Context, source domain.Asset, sendAmount decimal.Decimal, dest domain.Asset) (decimal.Decimal, error)
	StrictReceiveQuote(ctx context.Context, source domain.Asset, dest domain.Asset, destAmount decimal.Decimal) (decimal.Decimal, error)
	NativeEquivalent(ctx context.Context, asset domain.Asset, amount decimal.Decimal) (decimal.Decimal, error)
}

// TrustlineEstablisher creates missing trustlines for the follower. The
// engine implements it with a ChangeTrust submission; implementations must
// return only after the line is live.
type TrustlineEstablisher interface {
	EnsureTrustline(ctx context.Context, ownerID, address string, asset domain.Asset) error
}

// ErrInsufficientBalance reports a trade whose amount plus fee cannot be
// covered by the follower's tradable balance.
type ErrInsufficientBalance struct {
	Asset    domain.Asset
	Required decimal.Decimal
	Tradable decimal.Decimal
}

func (e *ErrInsufficientBalance) Error() string {
	return fmt.Sprintf("insufficient %s balance: need %s, tradable %s",
		e.Asset, e.Required.String(), e.Tradable.String())
}

// oneStroop is the floor for any computed receive minimum.
var oneStroop = decimal.New(1, -xdr.AmountDecimals)

// Engine computes scaled orders.
type Engine struct {
	gw    Gateway
	lines TrustlineEstablisher
	log   zerolog.Logger
}

// New builds a rescaling engine.
func New(gw Gateway, lines TrustlineEstablisher, log zerolog.Logger) *Engine {
	return &Engine{gw: gw, lines: lines, log: log.With().Str("component", "rescale").Logger()}
}

// Plan sizes the signal for the follower. feeRate is the usage-fee fraction
// resolved for the owner at trade time; the returned order's FeeAmount is
// feeRate applied to the realized volume in native units. follower is the
// follower's G-address.
func (e *Engine) Plan(ctx context.Context, sub *domain.WatchSubscription, sig *domain.TradeSignal, follower string, feeRate decimal.Decimal) (*domain.ScaledOrder, error) {
	if err := e.ensureTrustlines(ctx, sub.OwnerID, follower, sig); err != nil {
		return nil, err
	}
	// Snapshot after trustline work: creating a line changes the reserve.
	snap, err := e.gw.Account(ctx, follower)
	if err != nil {
		return nil, fmt.Errorf("fetch follower account: %w", err)
	}

	switch sig.Kind {
	case domain.SignalPathReceive:
		return e.planStrictReceive(ctx, sub, sig, snap, feeRate)
	default:
		return e.planStrictSend(ctx, sub, sig, snap, feeRate)
	}
}

// targetAmount applies the subscription's sizing rule to an observed amount.
func targetAmount(sub *domain.WatchSubscription, original decimal.Decimal) decimal.Decimal {
	if sub.FixedAmount != nil {
		return sub.FixedAmount.Round(xdr.AmountDecimals)
	}
	return original.Mul(sub.Multiplier).Round(xdr.AmountDecimals)
}

func (e *Engine) planStrictSend(ctx context.Context, sub *domain.WatchSubscription, sig *domain.TradeSignal, snap *domain.AccountSnapshot, feeRate decimal.Decimal) (*domain.ScaledOrder, error) {
	send := targetAmount(sub, sig.SendAmount)
	tradable := snap.TradableAsset(sig.SourceAsset)

	drained := false
	if tradable.LessThan(send) {
		send = tradable.Round(xdr.AmountDecimals)
		drained = true
	}
	if !send.IsPositive() {
		return nil, &ErrInsufficientBalance{Asset: sig.SourceAsset, Required: send, Tradable: tradable}
	}

	receiveMin, err := e.receiveFloor(ctx, sig, send, sub.Slippage, drained)
	if err != nil {
		return nil, err
	}

	order := &domain.ScaledOrder{
		Variant:       domain.VariantStrictSend,
		SourceAsset:   sig.SourceAsset,
		DestAsset:     sig.DestAsset,
		SendAmount:    send,
		ReceiveAmount: receiveMin,
		Path:          sig.Path,
		Downgraded:    false,
	}
	if err := e.applyFee(ctx, order, snap, feeRate); err != nil {
		return nil, err
	}
	return order, nil
}

// receiveFloor computes the minimum acceptable receive for a strict-send
// order: a fresh quote at the rescaled amount discounted by slippage, a
// proportional fallback when no path quotes, and one stroop as the absolute
// floor. A drained balance with no quote falls straight to the floor.
func (e *Engine) receiveFloor(ctx context.Context, sig *domain.TradeSignal, send, slippage decimal.Decimal, drained bool) (decimal.Decimal, error) {
	discount := decimal.NewFromInt(1).Sub(slippage)

	quote, err := e.gw.StrictSendQuote(ctx, sig.SourceAsset, send, sig.DestAsset)
	if err == nil && quote.IsPositive() {
		floor := quote.Mul(discount).Round(xdr.AmountDecimals)
		if floor.LessThan(oneStroop) {
			floor = oneStroop
		}
		return floor, nil
	}
	e.log.Debug().Err(err).Str("tx", sig.TxHash).Msg("no strict-send quote, using fallback floor")

	if drained || sig.SendAmount.IsZero() {
		return oneStroop, nil
	}
	proportional := sig.ReceiveAmount.Mul(send.Div(sig.SendAmount))
	floor := proportional.Mul(discount).Round(xdr.AmountDecimals)
	if floor.LessThan(oneStroop) {
		floor = oneStroop
	}
	return floor, nil
}

func (e *Engine) planStrictReceive(ctx context.Context, sub *domain.WatchSubscription, sig *domain.TradeSignal, snap *domain.AccountSnapshot, feeRate decimal.Decimal) (*domain.ScaledOrder, error) {
	receive := targetAmount(sub, sig.ReceiveAmount)
	if !receive.IsPositive() {
		return nil, &ErrInsufficientBalance{Asset: sig.DestAsset, Required: receive, Tradable: decimal.Zero}
	}

	premium := decimal.NewFromInt(1).Add(sub.Slippage)
	var maxSend decimal.Decimal
	if sig.ReceiveAmount.IsPositive() {
		ratio := receive.Div(sig.ReceiveAmount)
		maxSend = sig.SendAmount.Mul(ratio).Mul(premium).Round(xdr.AmountDecimals)
	}
	if quote, err := e.gw.StrictReceiveQuote(ctx, sig.SourceAsset, sig.DestAsset, receive); err == nil && quote.IsPositive() {
		quoted := quote.Mul(premium).Round(xdr.AmountDecimals)
		if maxSend.IsZero() || quoted.LessThan(maxSend) {
			maxSend = quoted
		}
	}
	if !maxSend.IsPositive() {
		return nil, &ErrInsufficientBalance{Asset: sig.SourceAsset, Required: maxSend, Tradable: snap.TradableAsset(sig.SourceAsset)}
	}

	tradable := snap.TradableAsset(sig.SourceAsset)
	if tradable.LessThan(maxSend) {
		// Deliberate protocol downgrade: spend what is there with a
		// strict-send instead of failing the strict-receive.
		send := tradable.Round(xdr.AmountDecimals)
		if !send.IsPositive() {
			return nil, &ErrInsufficientBalance{Asset: sig.SourceAsset, Required: maxSend, Tradable: tradable}
		}
		receiveMin, err := e.receiveFloor(ctx, sig, send, sub.Slippage, true)
		if err != nil {
			return nil, err
		}
		order := &domain.ScaledOrder{
			Variant:       domain.VariantStrictSend,
			SourceAsset:   sig.SourceAsset,
			DestAsset:     sig.DestAsset,
			SendAmount:    send,
			ReceiveAmount: receiveMin,
			Path:          sig.Path,
			Downgraded:    true,
		}
		if err := e.applyFee(ctx, order, snap, feeRate); err != nil {
			return nil, err
		}
		return order, nil
	}

	order := &domain.ScaledOrder{
		Variant:       domain.VariantStrictReceive,
		SourceAsset:   sig.SourceAsset,
		DestAsset:     sig.DestAsset,
		SendAmount:    maxSend,
		ReceiveAmount: receive,
		Path:          sig.Path,
		Downgraded:    false,
	}
	if err := e.applyFee(ctx, order, snap, feeRate); err != nil {
		return nil, err
	}
	return order, nil
}

// applyFee prices the usage fee from the realized volume in native units
// and verifies the total outflow fits the tradable balance. Nothing is
// submitted when the check fails.
func (e *Engine) applyFee(ctx context.Context, order *domain.ScaledOrder, snap *domain.AccountSnapshot, feeRate decimal.Decimal) error {
	volume, err := e.gw.NativeEquivalent(ctx, order.SourceAsset, order.SendAmount)
	if err != nil {
		e.log.Debug().Err(err).Msg("no native conversion for fee volume, fee waived for this trade")
		volume = decimal.Zero
	}
	order.FeeAmount = volume.Mul(feeRate).Round(xdr.AmountDecimals)

	required := order.FeeAmount
	if order.SourceAsset.IsNative() {
		required = required.Add(order.SendAmount)
	}
	tradableNative := snap.TradableNative()
	if tradableNative.LessThan(required) {
		// Drained strict-send orders in the native asset get the fee
		// squeezed out of the amount instead of aborting.
		if order.SourceAsset.IsNative() && order.Variant == domain.VariantStrictSend {
			adjusted := tradableNative.Sub(order.FeeAmount)
			if adjusted.IsPositive() {
				order.SendAmount = adjusted.Round(xdr.AmountDecimals)
				return nil
			}
		}
		return &ErrInsufficientBalance{Asset: domain.NativeAsset(), Required: required, Tradable: tradableNative}
	}

	if !order.SourceAsset.IsNative() {
		tradable := snap.TradableAsset(order.SourceAsset)
		if tradable.LessThan(order.SendAmount) {
			return &ErrInsufficientBalance{Asset: order.SourceAsset, Required: order.SendAmount, Tradable: tradable}
		}
	}
	return nil
}

// ensureTrustlines establishes missing lines for both legs of the trade.
func (e *Engine) ensureTrustlines(ctx context.Context, ownerID, follower string, sig *domain.TradeSignal) error {
	for _, asset := range []domain.Asset{sig.SourceAsset, sig.DestAsset} {
		if asset.IsNative() {
			continue
		}
		if err := e.lines.EnsureTrustline(ctx, ownerID, follower, asset); err != nil {
			return fmt.Errorf("establish trustline for %s: %w", asset, err)
		}
	}
	return nil
}
