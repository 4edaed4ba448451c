// Package rewriter rebuilds whitelisted Soroban swap invocations with the
// follower's account, fresh deadlines and rescaled amounts.
package rewriter

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"stellar-copy-engine/internal/config"
	"stellar-copy-engine/internal/domain"
	"stellar-copy-engine/internal/rescale"
	"stellar-copy-engine/internal/soroban"
	"stellar-copy-engine/internal/xdr"
)

const (
	// DeadlineWindow is how far into the future a rewritten swap deadline
	// is pushed.
	DeadlineWindow = 300 * time.Second
	// TxValidity bounds the rewritten transaction's time window.
	TxValidity = 900 * time.Second
)

// ErrUnmatchedCall reports an invocation the router whitelist does not
// cover; the caller skips it.
var ErrUnmatchedCall = fmt.Errorf("rewriter: invocation not in router whitelist")

// ErrSimulationFailed marks a rewritten call the network rejected in
// simulation. The engine reacts with the fallback router, never a retry.
type ErrSimulationFailed struct {
	Detail string
}

func (e *ErrSimulationFailed) Error() string {
	return fmt.Sprintf("simulation rejected rewritten call: %s", e.Detail)
}

// Simulator is the slice of the Soroban RPC client the rewriter needs.
type Simulator interface {
	SimulateTransaction(ctx context.Context, envelopeB64 string) (*soroban.SimulationResult, error)
}

// AccountReader provides the follower's balances and sequence number.
type AccountReader interface {
	Account(ctx context.Context, address string) (*domain.AccountSnapshot, error)
	RecommendedFee(ctx context.Context) int64
}

// Rewriter rescales whitelisted contract calls for the follower.
type Rewriter struct {
	table config.RouterTable
	rpc   Simulator
	gw    AccountReader
	lines rescale.TrustlineEstablisher
	memo  string
	log   zerolog.Logger
	now   func() time.Time
}

// Option configures a Rewriter.
type Option func(*Rewriter)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Rewriter) { r.now = now }
}

// New builds a rewriter over the router whitelist.
func New(table config.RouterTable, rpc Simulator, gw AccountReader, lines rescale.TrustlineEstablisher, memo string, log zerolog.Logger, opts ...Option) *Rewriter {
	r := &Rewriter{
		table: table,
		rpc:   rpc,
		gw:    gw,
		lines: lines,
		memo:  memo,
		log:   log.With().Str("component", "rewriter").Logger(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Rewrite rebuilds the signal's contract call for the follower and
// simulates it. The returned envelope is unsigned but carries the
// simulation's resource footprint, auth entries and fee.
func (r *Rewriter) Rewrite(ctx context.Context, sig *domain.TradeSignal, sub *domain.WatchSubscription, follower string) (*xdr.TransactionEnvelope, error) {
	if sig.Contract == nil {
		return nil, fmt.Errorf("rewriter: signal %s carries no contract call", sig.TxHash)
	}
	schema, ok := r.table.Lookup(sig.Contract.ContractID, sig.Contract.Function)
	if !ok {
		return nil, ErrUnmatchedCall
	}

	invoke, err := r.extractInvocation(sig.Contract)
	if err != nil {
		return nil, err
	}

	// Lines first: a new trustline shifts the sequence and locks reserve,
	// so the snapshot is taken after.
	if err := r.ensureTrustlines(ctx, sub.OwnerID, follower, sig); err != nil {
		return nil, err
	}
	snap, err := r.gw.Account(ctx, follower)
	if err != nil {
		return nil, fmt.Errorf("fetch follower account: %w", err)
	}
	feePerOp := r.gw.RecommendedFee(ctx)

	if err := r.rewriteArgs(invoke, schema, sub, follower, sig, snap, feePerOp); err != nil {
		return nil, err
	}

	env, err := r.buildEnvelope(invoke, follower, snap, feePerOp)
	if err != nil {
		return nil, err
	}
	return r.simulate(ctx, env)
}

// ensureTrustlines sets up the follower's lines for both swap legs before
// the call is simulated; a missing output line fails every simulation.
func (r *Rewriter) ensureTrustlines(ctx context.Context, ownerID, follower string, sig *domain.TradeSignal) error {
	for _, asset := range []domain.Asset{sig.SourceAsset, sig.DestAsset} {
		if asset.IsNative() {
			continue
		}
		if err := r.lines.EnsureTrustline(ctx, ownerID, follower, asset); err != nil {
			return fmt.Errorf("establish trustline for %s: %w", asset, err)
		}
	}
	return nil
}

// extractInvocation pulls the observed invocation out of the original
// envelope so argument structure (paths, hop lists) carries over.
func (r *Rewriter) extractInvocation(call *domain.ContractCall) (*xdr.InvokeContractArgs, error) {
	env, err := xdr.DecodeEnvelopeBase64(call.EnvelopeXDR)
	if err != nil {
		return nil, fmt.Errorf("decode observed envelope: %w", err)
	}
	for _, op := range env.Tx.Operations {
		if op.Body.Type != xdr.OpInvokeHostFunction || op.Body.InvokeHostFunction == nil {
			continue
		}
		invoke := op.Body.InvokeHostFunction.Invoke
		if hex.EncodeToString(invoke.ContractAddress.Contract[:]) != call.ContractID || invoke.FunctionName != call.Function {
			continue
		}
		// Copy the arg vector; the original slice stays untouched.
		out := &xdr.InvokeContractArgs{
			ContractAddress: invoke.ContractAddress,
			FunctionName:    invoke.FunctionName,
			Args:            append([]xdr.SCVal(nil), invoke.Args...),
		}
		return out, nil
	}
	return nil, fmt.Errorf("rewriter: invocation %s.%s not present in envelope", call.ContractID, call.Function)
}

// rewriteArgs applies the schema: follower addresses, a fresh deadline and
// rescaled, balance-clamped 128-bit amounts.
func (r *Rewriter) rewriteArgs(invoke *xdr.InvokeContractArgs, schema config.ArgSchema, sub *domain.WatchSubscription, follower string, sig *domain.TradeSignal, snap *domain.AccountSnapshot, feePerOp int64) error {
	followerAddr, err := xdr.SCAddressFromString(follower)
	if err != nil {
		return fmt.Errorf("parse follower address: %w", err)
	}
	if schema.Sender != nil {
		if err := r.setArg(invoke, *schema.Sender, xdr.SCAddr(followerAddr)); err != nil {
			return err
		}
	}
	if schema.Recipient != nil {
		if err := r.setArg(invoke, *schema.Recipient, xdr.SCAddr(followerAddr)); err != nil {
			return err
		}
	}
	if schema.Deadline != nil {
		deadline := uint64(r.now().Add(DeadlineWindow).Unix())
		if err := r.setArg(invoke, *schema.Deadline, xdr.SCU64(deadline)); err != nil {
			return err
		}
	}

	if schema.ExactIn() {
		return r.rescaleExactIn(invoke, schema, sub, sig, snap, feePerOp)
	}
	return r.rescaleExactOut(invoke, schema, sub, sig, snap, feePerOp)
}

func (r *Rewriter) rescaleExactIn(invoke *xdr.InvokeContractArgs, schema config.ArgSchema, sub *domain.WatchSubscription, sig *domain.TradeSignal, snap *domain.AccountSnapshot, feePerOp int64) error {
	originalIn, err := r.amountArg(invoke, *schema.AmountIn)
	if err != nil {
		return err
	}
	originalOutMin, err := r.amountArg(invoke, *schema.AmountOutMin)
	if err != nil {
		return err
	}

	target := scaleTarget(sub, originalIn)
	avail, err := r.spendable(sig.SourceAsset, snap, feePerOp)
	if err != nil {
		return err
	}
	newIn := target
	if newIn.GreaterThan(avail) {
		r.log.Warn().
			Str("asset", sig.SourceAsset.String()).
			Str("target", target.String()).
			Str("tradable", avail.String()).
			Msg("scaled input exceeds balance, draining to max")
		newIn = avail
	}
	if !newIn.IsPositive() {
		return &rescale.ErrInsufficientBalance{Asset: sig.SourceAsset, Required: target, Tradable: avail}
	}
	newOutMin := decimal.Zero
	if originalIn.IsPositive() {
		discount := decimal.NewFromInt(1).Sub(sub.Slippage)
		newOutMin = originalOutMin.Mul(newIn.Div(originalIn)).Mul(discount).Round(xdr.AmountDecimals)
	}
	if !newOutMin.IsPositive() {
		newOutMin = decimal.New(1, -xdr.AmountDecimals)
	}

	if err := r.setAmountArg(invoke, *schema.AmountIn, newIn); err != nil {
		return err
	}
	return r.setAmountArg(invoke, *schema.AmountOutMin, newOutMin)
}

func (r *Rewriter) rescaleExactOut(invoke *xdr.InvokeContractArgs, schema config.ArgSchema, sub *domain.WatchSubscription, sig *domain.TradeSignal, snap *domain.AccountSnapshot, feePerOp int64) error {
	originalOut, err := r.amountArg(invoke, *schema.AmountOut)
	if err != nil {
		return err
	}
	originalInMax, err := r.amountArg(invoke, *schema.AmountInMax)
	if err != nil {
		return err
	}

	newOut := scaleTarget(sub, originalOut)
	if !newOut.IsPositive() {
		return fmt.Errorf("rewriter: rescaled output amount %s is not positive", newOut)
	}
	newInMax := decimal.Zero
	if originalOut.IsPositive() {
		premium := decimal.NewFromInt(1).Add(sub.Slippage)
		newInMax = originalInMax.Mul(newOut.Div(originalOut)).Mul(premium).Round(xdr.AmountDecimals)
	}
	avail, err := r.spendable(sig.SourceAsset, snap, feePerOp)
	if err != nil {
		return err
	}
	if newInMax.GreaterThan(avail) {
		// Cap the ceiling at the balance; if the route actually needs
		// more, simulation rejects it and the classic path takes over.
		r.log.Warn().
			Str("asset", sig.SourceAsset.String()).
			Str("ceiling", newInMax.String()).
			Str("tradable", avail.String()).
			Msg("input ceiling exceeds balance, capping")
		newInMax = avail
	}
	if !newInMax.IsPositive() {
		return &rescale.ErrInsufficientBalance{Asset: sig.SourceAsset, Required: newInMax, Tradable: avail}
	}

	if err := r.setAmountArg(invoke, *schema.AmountOut, newOut); err != nil {
		return err
	}
	return r.setAmountArg(invoke, *schema.AmountInMax, newInMax)
}

func scaleTarget(sub *domain.WatchSubscription, original decimal.Decimal) decimal.Decimal {
	if sub.FixedAmount != nil {
		return sub.FixedAmount.Round(xdr.AmountDecimals)
	}
	return original.Mul(sub.Multiplier).Round(xdr.AmountDecimals)
}

// spendable returns how much of asset the follower can put into the swap,
// keeping the native reserve and the transaction fee covered.
func (r *Rewriter) spendable(asset domain.Asset, snap *domain.AccountSnapshot, feePerOp int64) (decimal.Decimal, error) {
	feeCost := xdr.FromStroops(feePerOp)
	if asset.IsNative() {
		avail := snap.TradableNative().Sub(feeCost)
		if avail.IsNegative() {
			return decimal.Zero, nil
		}
		return avail, nil
	}
	if snap.TradableNative().LessThan(feeCost) {
		return decimal.Zero, &rescale.ErrInsufficientBalance{
			Asset:    domain.NativeAsset(),
			Required: feeCost,
			Tradable: snap.TradableNative(),
		}
	}
	return snap.TradableAsset(asset), nil
}

// amountArg reads a 128-bit amount argument as a 7-decimal value.
func (r *Rewriter) amountArg(invoke *xdr.InvokeContractArgs, index int) (decimal.Decimal, error) {
	if index < 0 || index >= len(invoke.Args) {
		return decimal.Zero, fmt.Errorf("rewriter: amount index %d out of range for %s", index, invoke.FunctionName)
	}
	arg := invoke.Args[index]
	switch arg.Type {
	case xdr.SCValI128:
		return arg.I128.Decimal(), nil
	case xdr.SCValU128:
		return arg.U128.Decimal(), nil
	default:
		return decimal.Zero, fmt.Errorf("rewriter: arg %d of %s is type %d, not a 128-bit amount", index, invoke.FunctionName, arg.Type)
	}
}

// setAmountArg writes a rescaled amount back in the argument's original
// 128-bit representation.
func (r *Rewriter) setAmountArg(invoke *xdr.InvokeContractArgs, index int, amount decimal.Decimal) error {
	switch invoke.Args[index].Type {
	case xdr.SCValU128:
		v, err := xdr.UInt128FromDecimal(amount)
		if err != nil {
			return err
		}
		return r.setArg(invoke, index, xdr.SCU128(v))
	default:
		v, err := xdr.Int128FromDecimal(amount)
		if err != nil {
			return err
		}
		return r.setArg(invoke, index, xdr.SCI128(v))
	}
}

func (r *Rewriter) setArg(invoke *xdr.InvokeContractArgs, index int, v xdr.SCVal) error {
	if index < 0 || index >= len(invoke.Args) {
		return fmt.Errorf("rewriter: arg index %d out of range for %s", index, invoke.FunctionName)
	}
	invoke.Args[index] = v
	return nil
}

// buildEnvelope wraps the rewritten invocation in a fresh transaction for
// the follower.
func (r *Rewriter) buildEnvelope(invoke *xdr.InvokeContractArgs, follower string, snap *domain.AccountSnapshot, feePerOp int64) (*xdr.TransactionEnvelope, error) {
	source, err := xdr.MuxedAccountFromAddress(follower)
	if err != nil {
		return nil, fmt.Errorf("parse follower address: %w", err)
	}
	return &xdr.TransactionEnvelope{Tx: xdr.Transaction{
		SourceAccount: source,
		Fee:           uint32(feePerOp),
		SeqNum:        snap.Sequence + 1,
		Cond: xdr.Preconditions{
			Type:       xdr.PrecondTime,
			TimeBounds: xdr.TimeBounds{MaxTime: uint64(r.now().Add(TxValidity).Unix())},
		},
		Memo: xdr.MemoTextOf(r.memo),
		Operations: []xdr.Operation{{Body: xdr.OperationBody{
			Type:               xdr.OpInvokeHostFunction,
			InvokeHostFunction: &xdr.InvokeHostFunctionOp{Invoke: *invoke},
		}}},
	}}, nil
}

// simulate runs the rewritten envelope through the RPC node and splices in
// the returned resource data, auth entries and fee.
func (r *Rewriter) simulate(ctx context.Context, env *xdr.TransactionEnvelope) (*xdr.TransactionEnvelope, error) {
	b64, err := env.EncodeBase64()
	if err != nil {
		return nil, fmt.Errorf("encode rewritten envelope: %w", err)
	}
	result, err := r.rpc.SimulateTransaction(ctx, b64)
	if err != nil {
		return nil, &ErrSimulationFailed{Detail: err.Error()}
	}
	if result.Failed() {
		return nil, &ErrSimulationFailed{Detail: result.Error}
	}

	env.Tx.SorobanDataRaw = result.TransactionDataRaw
	env.Tx.Operations[0].Body.InvokeHostFunction.AuthRaw = result.AuthRaw
	if result.MinResourceFee > 0 {
		env.Tx.Fee += uint32(result.MinResourceFee)
	}
	return env, nil
}
