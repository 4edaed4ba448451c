package rewriter

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"stellar-copy-engine/internal/config"
	"stellar-copy-engine/internal/domain"
	"stellar-copy-engine/internal/rescale"
	"stellar-copy-engine/internal/soroban"
	"stellar-copy-engine/internal/strkey"
	"stellar-copy-engine/internal/xdr"
)

const soroswapID = "0dd5c710ea6a4a23b32207fd130eadf9c9ce899f4308e93e4ffe53fbaf108a04"

type fakeSimulator struct {
	result *soroban.SimulationResult
	err    error
	seen   string
}

func (f *fakeSimulator) SimulateTransaction(ctx context.Context, envelopeB64 string) (*soroban.SimulationResult, error) {
	f.seen = envelopeB64
	return f.result, f.err
}

type fakeAccounts struct {
	sequence int64
	balances []domain.BalanceLine
}

func (f *fakeAccounts) Account(ctx context.Context, address string) (*domain.AccountSnapshot, error) {
	return &domain.AccountSnapshot{Address: address, Sequence: f.sequence, Balances: f.balances}, nil
}

func (f *fakeAccounts) RecommendedFee(ctx context.Context) int64 { return 300 }

type fakeLines struct {
	ensured []domain.Asset
	err     error
}

func (f *fakeLines) EnsureTrustline(ctx context.Context, ownerID, address string, asset domain.Asset) error {
	if f.err != nil {
		return f.err
	}
	f.ensured = append(f.ensured, asset)
	return nil
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func i128(t *testing.T, s string) xdr.SCVal {
	t.Helper()
	v, err := xdr.Int128FromDecimal(dec(s))
	if err != nil {
		t.Fatalf("i128 %s: %v", s, err)
	}
	return xdr.SCI128(v)
}

func testAddress(t *testing.T, seed byte) string {
	t.Helper()
	key := ed25519.NewKeyFromSeed(bytes.Repeat([]byte{seed}, 32))
	var pub [32]byte
	copy(pub[:], key.Public().(ed25519.PublicKey))
	return strkey.EncodeAccountID(pub)
}

// observedSwap builds a watched wallet's soroswap exact-in envelope:
// [amount_in, amount_out_min, path, recipient, deadline].
func observedSwap(t *testing.T, trader string, amountIn, outMin string) string {
	t.Helper()
	traderAddr, err := xdr.SCAddressFromString(trader)
	if err != nil {
		t.Fatalf("trader address: %v", err)
	}
	raw, _ := hex.DecodeString(soroswapID)
	var contract [32]byte
	copy(contract[:], raw)
	src, err := xdr.MuxedAccountFromAddress(trader)
	if err != nil {
		t.Fatalf("muxed account: %v", err)
	}
	env := &xdr.TransactionEnvelope{Tx: xdr.Transaction{
		SourceAccount: src,
		Fee:           100,
		SeqNum:        40,
		Operations: []xdr.Operation{{Body: xdr.OperationBody{
			Type: xdr.OpInvokeHostFunction,
			InvokeHostFunction: &xdr.InvokeHostFunctionOp{Invoke: xdr.InvokeContractArgs{
				ContractAddress: xdr.SCAddress{Type: xdr.SCAddressContract, Contract: contract},
				FunctionName:    "swap_exact_tokens_for_tokens",
				Args: []xdr.SCVal{
					i128(t, amountIn),
					i128(t, outMin),
					xdr.SCVec([]xdr.SCVal{xdr.SCSymbol("XLM"), xdr.SCSymbol("USDC")}),
					xdr.SCAddr(traderAddr),
					xdr.SCU64(1700000000),
				},
			}},
		}}},
	}}
	b64, err := env.EncodeBase64()
	if err != nil {
		t.Fatalf("encode envelope: %v", err)
	}
	return b64
}

func usdcAsset(t *testing.T) domain.Asset {
	t.Helper()
	return domain.Asset{Code: "USDC", Issuer: testAddress(t, 0x40)}
}

func contractSignal(t *testing.T, trader string) *domain.TradeSignal {
	t.Helper()
	return &domain.TradeSignal{
		Kind:        domain.SignalContractInvoke,
		SourceAsset: domain.NativeAsset(),
		DestAsset:   usdcAsset(t),
		TxHash:      "abc",
		Contract: &domain.ContractCall{
			ContractID:  soroswapID,
			Function:    "swap_exact_tokens_for_tokens",
			EnvelopeXDR: observedSwap(t, trader, "100", "48"),
		},
	}
}

func subscription(multiplier, slippage string) *domain.WatchSubscription {
	return &domain.WatchSubscription{
		OwnerID:    "owner-1",
		Multiplier: dec(multiplier),
		Slippage:   dec(slippage),
	}
}

func fixedNow() time.Time { return time.Unix(1750000000, 0) }

// fundedAccount holds enough native balance that rescaled amounts never
// touch the clamp.
func fundedAccount() *fakeAccounts {
	return &fakeAccounts{sequence: 90, balances: []domain.BalanceLine{
		{Asset: domain.NativeAsset(), Balance: dec("1000")},
	}}
}

func newRewriter(sim Simulator) *Rewriter {
	return newRewriterWith(sim, fundedAccount(), &fakeLines{})
}

func newRewriterWith(sim Simulator, accounts *fakeAccounts, lines *fakeLines) *Rewriter {
	table := config.BuildRouterTable(config.DefaultRouters())
	return New(table, sim, accounts, lines, "copied", zerolog.Nop(), WithClock(fixedNow))
}

func TestRewriteRescalesAndRetargets(t *testing.T) {
	trader := testAddress(t, 0x11)
	follower := testAddress(t, 0x22)
	sim := &fakeSimulator{result: &soroban.SimulationResult{
		TransactionDataRaw: []byte{1, 2, 3, 4},
		MinResourceFee:     5000,
		AuthRaw:            [][]byte{{9, 9}},
	}}

	env, err := newRewriter(sim).Rewrite(context.Background(), contractSignal(t, trader), subscription("0.5", "0.01"), follower)
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}

	invoke := env.Tx.Operations[0].Body.InvokeHostFunction.Invoke
	if got := invoke.Args[0].I128.Decimal(); !got.Equal(dec("50")) {
		t.Errorf("amount_in = %s, want 100*0.5", got)
	}
	// out_min scales proportionally (48 * 0.5 = 24) then gets the 1% cut.
	if got := invoke.Args[1].I128.Decimal(); !got.Equal(dec("23.76")) {
		t.Errorf("amount_out_min = %s, want 23.76", got)
	}
	if invoke.Args[2].Type != xdr.SCValVec || len(invoke.Args[2].Vec) != 2 {
		t.Errorf("path arg must carry over untouched: %+v", invoke.Args[2])
	}
	wantRecipient, _ := xdr.SCAddressFromString(follower)
	if invoke.Args[3].Address != wantRecipient {
		t.Errorf("recipient not rewritten to follower")
	}
	if got := invoke.Args[4].U64; got != uint64(fixedNow().Add(DeadlineWindow).Unix()) {
		t.Errorf("deadline = %d, want now+300s", got)
	}

	if env.Tx.SeqNum != 91 {
		t.Errorf("seqnum = %d, want follower's next", env.Tx.SeqNum)
	}
	if env.Tx.Fee != 300+5000 {
		t.Errorf("fee = %d, want inclusion+resource", env.Tx.Fee)
	}
	if !bytes.Equal(env.Tx.SorobanDataRaw, []byte{1, 2, 3, 4}) {
		t.Errorf("soroban data not spliced")
	}
	if len(env.Tx.Operations[0].Body.InvokeHostFunction.AuthRaw) != 1 {
		t.Errorf("auth entries not spliced")
	}
	if env.Tx.Cond.Type != xdr.PrecondTime || env.Tx.Cond.TimeBounds.MaxTime != uint64(fixedNow().Add(TxValidity).Unix()) {
		t.Errorf("time bounds = %+v", env.Tx.Cond)
	}
	if sim.seen == "" {
		t.Error("rewritten envelope was never simulated")
	}
}

func TestRewriteFixedAmount(t *testing.T) {
	trader := testAddress(t, 0x11)
	follower := testAddress(t, 0x22)
	sim := &fakeSimulator{result: &soroban.SimulationResult{}}
	sub := subscription("0.5", "0")
	fixed := dec("7")
	sub.FixedAmount = &fixed

	env, err := newRewriter(sim).Rewrite(context.Background(), contractSignal(t, trader), sub, follower)
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	invoke := env.Tx.Operations[0].Body.InvokeHostFunction.Invoke
	if got := invoke.Args[0].I128.Decimal(); !got.Equal(dec("7")) {
		t.Errorf("amount_in = %s, want fixed 7", got)
	}
}

func TestRewriteClampsInputToBalance(t *testing.T) {
	trader := testAddress(t, 0x11)
	follower := testAddress(t, 0x22)
	sim := &fakeSimulator{result: &soroban.SimulationResult{}}
	// 30 XLM with a 2 XLM base reserve leaves 28 tradable, minus the
	// 300-stroop fee.
	accounts := &fakeAccounts{sequence: 90, balances: []domain.BalanceLine{
		{Asset: domain.NativeAsset(), Balance: dec("30")},
	}}

	env, err := newRewriterWith(sim, accounts, &fakeLines{}).
		Rewrite(context.Background(), contractSignal(t, trader), subscription("1", "0.01"), follower)
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}

	invoke := env.Tx.Operations[0].Body.InvokeHostFunction.Invoke
	if got := invoke.Args[0].I128.Decimal(); !got.Equal(dec("27.99997")) {
		t.Errorf("amount_in = %s, want drained 27.99997", got)
	}
	// out_min follows the drained ratio: 48 * 0.2799997 * 0.99.
	if got := invoke.Args[1].I128.Decimal(); !got.Equal(dec("13.3055857")) {
		t.Errorf("amount_out_min = %s, want 13.3055857", got)
	}
	if sim.seen == "" {
		t.Error("clamped call was never simulated")
	}
}

func TestRewriteNoBalanceToTrade(t *testing.T) {
	trader := testAddress(t, 0x11)
	follower := testAddress(t, 0x22)
	// 2 XLM is all reserve, nothing tradable.
	accounts := &fakeAccounts{sequence: 90, balances: []domain.BalanceLine{
		{Asset: domain.NativeAsset(), Balance: dec("2")},
	}}

	_, err := newRewriterWith(&fakeSimulator{}, accounts, &fakeLines{}).
		Rewrite(context.Background(), contractSignal(t, trader), subscription("1", "0"), follower)
	var balErr *rescale.ErrInsufficientBalance
	if !errors.As(err, &balErr) {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}
}

func TestRewriteEstablishesOutputTrustline(t *testing.T) {
	trader := testAddress(t, 0x11)
	follower := testAddress(t, 0x22)
	lines := &fakeLines{}

	_, err := newRewriterWith(&fakeSimulator{result: &soroban.SimulationResult{}}, fundedAccount(), lines).
		Rewrite(context.Background(), contractSignal(t, trader), subscription("0.5", "0"), follower)
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	if len(lines.ensured) != 1 || !lines.ensured[0].Equal(usdcAsset(t)) {
		t.Errorf("ensured lines = %v, want the output asset only", lines.ensured)
	}
}

func TestRewriteTrustlineFailureAborts(t *testing.T) {
	trader := testAddress(t, 0x11)
	follower := testAddress(t, 0x22)
	sim := &fakeSimulator{result: &soroban.SimulationResult{}}
	lines := &fakeLines{err: errors.New("account underfunded")}

	_, err := newRewriterWith(sim, fundedAccount(), lines).
		Rewrite(context.Background(), contractSignal(t, trader), subscription("0.5", "0"), follower)
	if err == nil {
		t.Fatal("Rewrite succeeded without the output trustline")
	}
	if sim.seen != "" {
		t.Error("call was simulated despite the missing trustline")
	}
}

func TestRewriteSimulationFailure(t *testing.T) {
	trader := testAddress(t, 0x11)
	follower := testAddress(t, 0x22)
	sim := &fakeSimulator{result: &soroban.SimulationResult{Error: "host function trapped"}}

	_, err := newRewriter(sim).Rewrite(context.Background(), contractSignal(t, trader), subscription("0.5", "0"), follower)
	var simErr *ErrSimulationFailed
	if !errors.As(err, &simErr) {
		t.Fatalf("err = %v, want ErrSimulationFailed", err)
	}
}

func TestRewriteTransportFailure(t *testing.T) {
	trader := testAddress(t, 0x11)
	follower := testAddress(t, 0x22)
	sim := &fakeSimulator{err: errors.New("rpc down")}

	_, err := newRewriter(sim).Rewrite(context.Background(), contractSignal(t, trader), subscription("0.5", "0"), follower)
	var simErr *ErrSimulationFailed
	if !errors.As(err, &simErr) {
		t.Fatalf("err = %v, want ErrSimulationFailed", err)
	}
}

func TestRewriteUnknownFunction(t *testing.T) {
	trader := testAddress(t, 0x11)
	follower := testAddress(t, 0x22)
	sig := contractSignal(t, trader)
	sig.Contract.Function = "remove_liquidity"

	_, err := newRewriter(&fakeSimulator{}).Rewrite(context.Background(), sig, subscription("0.5", "0"), follower)
	if !errors.Is(err, ErrUnmatchedCall) {
		t.Fatalf("err = %v, want ErrUnmatchedCall", err)
	}
}
