package classifier

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"stellar-copy-engine/internal/config"
	"stellar-copy-engine/internal/horizon"
	"stellar-copy-engine/internal/strkey"
	"stellar-copy-engine/internal/xdr"
)

const soroswapID = "0dd5c710ea6a4a23b32207fd130eadf9c9ce899f4308e93e4ffe53fbaf108a04"

type fakeGateway struct {
	ops        []horizon.OperationRecord
	effects    []horizon.EffectRecord
	muxedBase  string
	muxedErr   error
	effectsErr error
}

func (f *fakeGateway) Operations(ctx context.Context, hash string) ([]horizon.OperationRecord, error) {
	return f.ops, nil
}

func (f *fakeGateway) Effects(ctx context.Context, hash string) ([]horizon.EffectRecord, error) {
	return f.effects, f.effectsErr
}

func (f *fakeGateway) ResolveMuxed(addr string) (string, error) {
	return f.muxedBase, f.muxedErr
}

func testAddress(t *testing.T, seed byte) string {
	t.Helper()
	key := ed25519.NewKeyFromSeed(bytes.Repeat([]byte{seed}, 32))
	var pub [32]byte
	copy(pub[:], key.Public().(ed25519.PublicKey))
	return strkey.EncodeAccountID(pub)
}

func newClassifier(gw Gateway) *Classifier {
	return New(gw, config.BuildRouterTable(config.DefaultRouters()), zerolog.Nop())
}

func TestClassifyStrictSend(t *testing.T) {
	watched := testAddress(t, 0x11)
	gw := &fakeGateway{ops: []horizon.OperationRecord{
		{
			ID:              "op1",
			TypeI:           horizon.OpTypePathPaymentStrictSend,
			SourceAccount:   watched,
			SourceAmount:    "50",
			DestinationMin:  "120.5",
			SourceAssetType: "native",
			AssetType:       "credit_alphanum4",
			AssetCode:       "USDC",
			AssetIssuer:     testAddress(t, 0x22),
		},
		{
			ID:            "op2",
			TypeI:         horizon.OpTypePathPaymentStrictSend,
			SourceAccount: testAddress(t, 0x33),
			SourceAmount:  "1",
		},
	}}

	signals, err := newClassifier(gw).Classify(context.Background(), &horizon.TransactionRecord{Hash: "abc"}, watched)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if len(signals) != 1 {
		t.Fatalf("signals = %d, want 1 (foreign-sourced op must be skipped)", len(signals))
	}
	sig := signals[0]
	if sig.Kind != "path_send" {
		t.Errorf("kind = %s", sig.Kind)
	}
	if !sig.SourceAsset.IsNative() || sig.DestAsset.Code != "USDC" {
		t.Errorf("assets = %s -> %s", sig.SourceAsset, sig.DestAsset)
	}
	if !sig.SendAmount.Equal(decimal.RequireFromString("50")) {
		t.Errorf("send = %s", sig.SendAmount)
	}
	if !sig.ReceiveAmount.Equal(decimal.RequireFromString("120.5")) {
		t.Errorf("receive min = %s", sig.ReceiveAmount)
	}
	if sig.TxHash != "abc" {
		t.Errorf("tx hash = %s", sig.TxHash)
	}
}

func TestClassifyStrictReceive(t *testing.T) {
	watched := testAddress(t, 0x11)
	gw := &fakeGateway{ops: []horizon.OperationRecord{{
		ID:            "op1",
		TypeI:         horizon.OpTypePathPaymentStrictReceive,
		SourceAccount: watched,
		SourceMax:     "200",
		Amount:        "75",
		AssetType:     "native",
	}}}

	signals, err := newClassifier(gw).Classify(context.Background(), &horizon.TransactionRecord{Hash: "abc"}, watched)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if len(signals) != 1 {
		t.Fatalf("signals = %d", len(signals))
	}
	sig := signals[0]
	if sig.Kind != "path_receive" {
		t.Errorf("kind = %s", sig.Kind)
	}
	if !sig.SendAmount.Equal(decimal.RequireFromString("200")) || !sig.ReceiveAmount.Equal(decimal.RequireFromString("75")) {
		t.Errorf("amounts = %s / %s", sig.SendAmount, sig.ReceiveAmount)
	}
}

func TestClassifyMuxedSource(t *testing.T) {
	watched := testAddress(t, 0x11)
	gw := &fakeGateway{
		muxedBase: watched,
		ops: []horizon.OperationRecord{{
			ID:                 "op1",
			TypeI:              horizon.OpTypePathPaymentStrictSend,
			SourceAccount:      watched,
			SourceAccountMuxed: "MAAAAAAAAAAAAAAB",
			SourceAmount:       "5",
			DestinationMin:     "1",
			SourceAssetType:    "native",
			AssetType:          "native",
		}},
	}
	signals, err := newClassifier(gw).Classify(context.Background(), &horizon.TransactionRecord{Hash: "abc"}, watched)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if len(signals) != 1 {
		t.Fatalf("muxed source resolving to watched address must match, got %d signals", len(signals))
	}
}

func TestClassifyMuxedResolutionFailureSkips(t *testing.T) {
	watched := testAddress(t, 0x11)
	gw := &fakeGateway{
		muxedErr: errors.New("bad strkey"),
		ops: []horizon.OperationRecord{{
			ID:                 "op1",
			TypeI:              horizon.OpTypePathPaymentStrictSend,
			SourceAccount:      watched,
			SourceAccountMuxed: "Mjunk",
			SourceAmount:       "5",
			DestinationMin:     "1",
		}},
	}
	signals, err := newClassifier(gw).Classify(context.Background(), &horizon.TransactionRecord{Hash: "abc"}, watched)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if len(signals) != 0 {
		t.Fatalf("unresolvable muxed source must be skipped, got %d signals", len(signals))
	}
}

func invokeEnvelope(t *testing.T, source string, contractHex, function string) string {
	t.Helper()
	src, err := xdr.MuxedAccountFromAddress(source)
	if err != nil {
		t.Fatalf("muxed account: %v", err)
	}
	raw, err := hex.DecodeString(contractHex)
	if err != nil {
		t.Fatalf("contract hex: %v", err)
	}
	var contract [32]byte
	copy(contract[:], raw)
	env := &xdr.TransactionEnvelope{Tx: xdr.Transaction{
		SourceAccount: src,
		Fee:           100,
		SeqNum:        7,
		Operations: []xdr.Operation{{Body: xdr.OperationBody{
			Type: xdr.OpInvokeHostFunction,
			InvokeHostFunction: &xdr.InvokeHostFunctionOp{Invoke: xdr.InvokeContractArgs{
				ContractAddress: xdr.SCAddress{Type: xdr.SCAddressContract, Contract: contract},
				FunctionName:    function,
				Args:            []xdr.SCVal{xdr.SCU64(1)},
			}},
		}}},
	}}
	b64, err := env.EncodeBase64()
	if err != nil {
		t.Fatalf("encode envelope: %v", err)
	}
	return b64
}

func TestClassifyWhitelistedInvoke(t *testing.T) {
	watched := testAddress(t, 0x11)
	issuer := testAddress(t, 0x22)
	gw := &fakeGateway{
		ops: []horizon.OperationRecord{{
			ID:            "op1",
			TypeI:         horizon.OpTypeInvokeHostFunction,
			SourceAccount: watched,
		}},
		effects: []horizon.EffectRecord{
			{Type: "account_debited", Account: watched, Amount: "40", AssetType: "native"},
			{Type: "account_credited", Account: issuer, Amount: "9", AssetType: "native"},
			{Type: "account_credited", Account: watched, Amount: "101.25", AssetType: "credit_alphanum4", AssetCode: "AQUA", AssetIssuer: issuer},
		},
	}
	tx := &horizon.TransactionRecord{
		Hash:        "abc",
		EnvelopeXDR: invokeEnvelope(t, watched, soroswapID, "swap_exact_tokens_for_tokens"),
	}

	signals, err := newClassifier(gw).Classify(context.Background(), tx, watched)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if len(signals) != 1 {
		t.Fatalf("signals = %d", len(signals))
	}
	sig := signals[0]
	if sig.Kind != "contract_invoke" {
		t.Errorf("kind = %s", sig.Kind)
	}
	if sig.Contract == nil || sig.Contract.ContractID != soroswapID || sig.Contract.Function != "swap_exact_tokens_for_tokens" {
		t.Fatalf("contract = %+v", sig.Contract)
	}
	if !sig.SourceAsset.IsNative() || !sig.SendAmount.Equal(decimal.RequireFromString("40")) {
		t.Errorf("debit = %s %s", sig.SendAmount, sig.SourceAsset)
	}
	if sig.DestAsset.Code != "AQUA" || !sig.ReceiveAmount.Equal(decimal.RequireFromString("101.25")) {
		t.Errorf("credit = %s %s", sig.ReceiveAmount, sig.DestAsset)
	}
}

func TestClassifyUnknownContractSkipped(t *testing.T) {
	watched := testAddress(t, 0x11)
	gw := &fakeGateway{ops: []horizon.OperationRecord{{
		ID:            "op1",
		TypeI:         horizon.OpTypeInvokeHostFunction,
		SourceAccount: watched,
	}}}
	tx := &horizon.TransactionRecord{
		Hash:        "abc",
		EnvelopeXDR: invokeEnvelope(t, watched, "ab"+soroswapID[2:], "swap_exact_tokens_for_tokens"),
	}
	signals, err := newClassifier(gw).Classify(context.Background(), tx, watched)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if len(signals) != 0 {
		t.Fatalf("non-whitelisted contract must be skipped, got %d signals", len(signals))
	}
}

func TestClassifyUnknownFunctionSkipped(t *testing.T) {
	watched := testAddress(t, 0x11)
	gw := &fakeGateway{ops: []horizon.OperationRecord{{
		ID:            "op1",
		TypeI:         horizon.OpTypeInvokeHostFunction,
		SourceAccount: watched,
	}}}
	tx := &horizon.TransactionRecord{
		Hash:        "abc",
		EnvelopeXDR: invokeEnvelope(t, watched, soroswapID, "remove_liquidity"),
	}
	signals, err := newClassifier(gw).Classify(context.Background(), tx, watched)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if len(signals) != 0 {
		t.Fatalf("non-whitelisted function must be skipped, got %d signals", len(signals))
	}
}
