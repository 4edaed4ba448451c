package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"stellar-copy-engine/internal/domain"
	"stellar-copy-engine/internal/xdr"
)

// copyTrade turns one signal into a submitted, confirmed transaction for
// the follower. Settings and fee tier are re-read per trade so edits apply
// to the next detected trade, not the next stream start.
func (e *Engine) copyTrade(ctx context.Context, ownerID, watched, follower string, sig *domain.TradeSignal, log zerolog.Logger) error {
	sub, err := e.subs.Get(ctx, ownerID, watched)
	if err != nil {
		return fmt.Errorf("load subscription settings: %w", err)
	}
	if sub.Status != domain.SubscriptionActive {
		log.Debug().Msg("subscription no longer active, skipping trade")
		return nil
	}
	if err := e.signer.EnsureSession(ctx, ownerID); err != nil {
		e.recordFailure("session")
		return err
	}
	feeRate, err := e.ledger.FeeRate(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("resolve fee tier: %w", err)
	}

	started := time.Now()
	if sig.Kind == domain.SignalContractInvoke {
		hash, err := e.copyContractCall(ctx, ownerID, follower, sig, sub)
		if err == nil {
			e.recordSuccess(string(sig.Kind), started)
			e.settleContractTrade(ctx, ownerID, follower, sig, sub, feeRate, hash, log)
			e.housekeep(ctx, ownerID, follower, log)
			return nil
		}
		if e.metrics != nil {
			e.metrics.FallbacksTriggered.Inc()
		}
		log.Warn().Err(err).Msg("contract call failed, falling back to classic path payment")
		sig = fallbackSignal(sig)
	}

	order, err := e.planner.Plan(ctx, sub, sig, follower, feeRate)
	if err != nil {
		e.recordFailure("plan")
		return fmt.Errorf("plan order: %w", err)
	}
	hash, err := e.submitOrder(ctx, ownerID, follower, order)
	if err != nil {
		e.recordFailure("submit")
		return err
	}
	e.recordSuccess(string(sig.Kind), started)
	e.settleClassicTrade(ctx, ownerID, order, feeRate, hash, log)
	e.housekeep(ctx, ownerID, follower, log)
	return nil
}

// copyContractCall rewrites, signs and submits a whitelisted Soroban swap.
// Any failure falls through to the classic path at the call site; the same
// contract call is never retried.
func (e *Engine) copyContractCall(ctx context.Context, ownerID, follower string, sig *domain.TradeSignal, sub *domain.WatchSubscription) (string, error) {
	env, err := e.rewriter.Rewrite(ctx, sig, sub, follower)
	if err != nil {
		if e.metrics != nil {
			e.metrics.SimulationFailures.Inc()
		}
		return "", err
	}
	return e.signAndSubmit(ctx, ownerID, env)
}

// submitOrder builds, signs and submits a classic path payment order.
func (e *Engine) submitOrder(ctx context.Context, ownerID, follower string, order *domain.ScaledOrder) (string, error) {
	env, err := e.buildOrderEnvelope(ctx, follower, order)
	if err != nil {
		return "", fmt.Errorf("build order transaction: %w", err)
	}
	return e.signAndSubmit(ctx, ownerID, env)
}

// signAndSubmit hashes, signs, submits and awaits confirmation. A ledger
// failure after submission is terminal for this trade.
func (e *Engine) signAndSubmit(ctx context.Context, ownerID string, env *xdr.TransactionEnvelope) (string, error) {
	hash, err := env.Tx.Hash(e.passphrase)
	if err != nil {
		return "", fmt.Errorf("hash transaction: %w", err)
	}
	sig, err := e.signer.Sign(ctx, ownerID, hash)
	if err != nil {
		if e.metrics != nil {
			e.metrics.SignatureFailures.WithLabelValues("sign").Inc()
		}
		return "", fmt.Errorf("sign transaction: %w", err)
	}
	if e.metrics != nil {
		e.metrics.SignaturesIssued.Inc()
	}
	env.Signatures = append(env.Signatures, xdr.DecorateSignature(env.Tx.SourceAccount.Ed25519, sig))
	b64, err := env.EncodeBase64()
	if err != nil {
		return "", fmt.Errorf("encode envelope: %w", err)
	}
	txHash, err := e.gw.SubmitAsync(ctx, b64)
	if err != nil {
		return txHash, fmt.Errorf("submit transaction: %w", err)
	}
	if _, err := e.gw.AwaitConfirmation(ctx, txHash); err != nil {
		return txHash, fmt.Errorf("confirm transaction: %w", err)
	}
	return txHash, nil
}

// settleClassicTrade records volume and referral shares for a confirmed
// classic trade. The fee was charged inside the trade transaction itself;
// accounting errors are logged, never unwound.
func (e *Engine) settleClassicTrade(ctx context.Context, ownerID string, order *domain.ScaledOrder, feeRate decimal.Decimal, txHash string, log zerolog.Logger) {
	volume, err := e.gw.NativeEquivalent(ctx, order.SourceAsset, order.SendAmount)
	if err != nil {
		log.Warn().Err(err).Msg("native volume lookup failed, deriving from fee")
		volume = deriveVolume(order.FeeAmount, feeRate)
	}
	e.recordTrade(ctx, ownerID, txHash, volume, order.FeeAmount, log)
}

// settleContractTrade computes the fee for a confirmed contract trade from
// the scaled input amount and charges it with a follow-up payment. A failed
// charge is logged; the trade itself stands.
func (e *Engine) settleContractTrade(ctx context.Context, ownerID, follower string, sig *domain.TradeSignal, sub *domain.WatchSubscription, feeRate decimal.Decimal, txHash string, log zerolog.Logger) {
	target := sig.SendAmount.Mul(sub.Multiplier)
	if sub.FixedAmount != nil {
		target = *sub.FixedAmount
	}
	target = target.Round(xdr.AmountDecimals)

	volume, err := e.gw.NativeEquivalent(ctx, sig.SourceAsset, target)
	if err != nil {
		log.Warn().Err(err).Msg("native volume lookup failed, skipping fee for contract trade")
		e.recordTrade(ctx, ownerID, txHash, decimal.Zero, decimal.Zero, log)
		return
	}
	fee := volume.Mul(feeRate).Round(xdr.AmountDecimals)
	if fee.IsPositive() && e.feeAccount != "" {
		if err := e.chargeFee(ctx, ownerID, follower, fee); err != nil {
			log.Warn().Err(err).Str("fee", fee.String()).Msg("fee charge failed")
			fee = decimal.Zero
		}
	}
	e.recordTrade(ctx, ownerID, txHash, volume, fee, log)
}

// chargeFee submits a native payment of the usage fee to the fee account.
func (e *Engine) chargeFee(ctx context.Context, ownerID, follower string, fee decimal.Decimal) error {
	env, err := e.buildFeeEnvelope(ctx, follower, fee)
	if err != nil {
		return err
	}
	_, err = e.signAndSubmit(ctx, ownerID, env)
	return err
}

func (e *Engine) recordTrade(ctx context.Context, ownerID, txHash string, volume, fee decimal.Decimal, log zerolog.Logger) {
	if err := e.ledger.RecordTrade(ctx, ownerID, txHash, volume, fee); err != nil {
		log.Error().Err(err).Str("tx", txHash).Msg("recording trade volume failed")
		return
	}
	if e.metrics != nil && fee.IsPositive() {
		if stroops, err := xdr.ToStroops(fee); err == nil {
			e.metrics.FeeVolume.Add(float64(stroops))
		}
	}
}

// housekeep removes zero-balance trustlines after a trade to free reserves.
func (e *Engine) housekeep(ctx context.Context, ownerID, follower string, log zerolog.Logger) {
	if e.housekeeper == nil {
		return
	}
	if err := e.housekeeper.RemoveIdleTrustlines(ctx, ownerID, follower); err != nil {
		log.Debug().Err(err).Msg("trustline cleanup failed")
	}
}

// deriveVolume recovers the native volume from a known fee when the price
// lookup is unavailable.
func deriveVolume(fee, feeRate decimal.Decimal) decimal.Decimal {
	if feeRate.IsZero() || fee.IsZero() {
		return decimal.Zero
	}
	return fee.Div(feeRate).Round(xdr.AmountDecimals)
}

func (e *Engine) recordSuccess(kind string, started time.Time) {
	if e.metrics != nil {
		e.metrics.RecordTradeCopied(kind, time.Since(started))
	}
}

func (e *Engine) recordFailure(stage string) {
	if e.metrics != nil {
		e.metrics.RecordTradeFailed(stage)
	}
}
