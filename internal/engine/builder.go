package engine

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"stellar-copy-engine/internal/domain"
	"stellar-copy-engine/internal/xdr"
)

// buildOrderEnvelope constructs the classic trade transaction: the path
// payment op (the follower trades with itself) plus the usage-fee payment
// when fee collection is configured.
func (e *Engine) buildOrderEnvelope(ctx context.Context, follower string, order *domain.ScaledOrder) (*xdr.TransactionEnvelope, error) {
	source, err := xdr.MuxedAccountFromAddress(follower)
	if err != nil {
		return nil, fmt.Errorf("parse follower address: %w", err)
	}
	sendAsset, err := xdr.AssetFromDomain(order.SourceAsset)
	if err != nil {
		return nil, err
	}
	destAsset, err := xdr.AssetFromDomain(order.DestAsset)
	if err != nil {
		return nil, err
	}
	path := make([]xdr.Asset, 0, len(order.Path))
	for _, hop := range order.Path {
		wire, err := xdr.AssetFromDomain(hop)
		if err != nil {
			return nil, err
		}
		path = append(path, wire)
	}
	send, err := xdr.ToStroops(order.SendAmount)
	if err != nil {
		return nil, fmt.Errorf("send amount: %w", err)
	}
	receive, err := xdr.ToStroops(order.ReceiveAmount)
	if err != nil {
		return nil, fmt.Errorf("receive amount: %w", err)
	}

	var ops []xdr.Operation
	switch order.Variant {
	case domain.VariantStrictSend:
		ops = append(ops, xdr.Operation{Body: xdr.OperationBody{
			Type: xdr.OpPathPaymentStrictSend,
			PathPaymentStrictSend: &xdr.PathPaymentStrictSendOp{
				SendAsset:   sendAsset,
				SendAmount:  send,
				Destination: source,
				DestAsset:   destAsset,
				DestMin:     receive,
				Path:        path,
			},
		}})
	case domain.VariantStrictReceive:
		ops = append(ops, xdr.Operation{Body: xdr.OperationBody{
			Type: xdr.OpPathPaymentStrictReceive,
			PathPaymentStrictReceive: &xdr.PathPaymentStrictReceiveOp{
				SendAsset:   sendAsset,
				SendMax:     send,
				Destination: source,
				DestAsset:   destAsset,
				DestAmount:  receive,
				Path:        path,
			},
		}})
	default:
		return nil, fmt.Errorf("unknown order variant %q", order.Variant)
	}

	if e.feeAccount != "" && order.FeeAmount.IsPositive() {
		feeOp, err := e.feePaymentOp(order.FeeAmount)
		if err != nil {
			return nil, err
		}
		ops = append(ops, feeOp)
	}
	return e.newEnvelope(ctx, source, ops)
}

// buildFeeEnvelope constructs the standalone usage-fee payment used after
// contract trades, where the trade transaction cannot carry a second op.
func (e *Engine) buildFeeEnvelope(ctx context.Context, follower string, fee decimal.Decimal) (*xdr.TransactionEnvelope, error) {
	source, err := xdr.MuxedAccountFromAddress(follower)
	if err != nil {
		return nil, fmt.Errorf("parse follower address: %w", err)
	}
	feeOp, err := e.feePaymentOp(fee)
	if err != nil {
		return nil, err
	}
	return e.newEnvelope(ctx, source, []xdr.Operation{feeOp})
}

func (e *Engine) feePaymentOp(fee decimal.Decimal) (xdr.Operation, error) {
	dest, err := xdr.MuxedAccountFromAddress(e.feeAccount)
	if err != nil {
		return xdr.Operation{}, fmt.Errorf("parse fee account: %w", err)
	}
	amount, err := xdr.ToStroops(fee)
	if err != nil {
		return xdr.Operation{}, fmt.Errorf("fee amount: %w", err)
	}
	return xdr.Operation{Body: xdr.OperationBody{
		Type: xdr.OpPayment,
		Payment: &xdr.PaymentOp{
			Destination: dest,
			Asset:       xdr.Asset{Type: xdr.AssetTypeNative},
			Amount:      amount,
		},
	}}, nil
}

// newEnvelope wraps ops into an unsigned transaction with a fresh sequence
// number, a recommended fee per op and the standard validity window.
func (e *Engine) newEnvelope(ctx context.Context, source xdr.MuxedAccount, ops []xdr.Operation) (*xdr.TransactionEnvelope, error) {
	snap, err := e.gw.Account(ctx, source.BaseAddress())
	if err != nil {
		return nil, fmt.Errorf("load follower account: %w", err)
	}
	feePerOp := e.gw.RecommendedFee(ctx)
	return &xdr.TransactionEnvelope{Tx: xdr.Transaction{
		SourceAccount: source,
		Fee:           uint32(feePerOp * int64(len(ops))),
		SeqNum:        snap.Sequence + 1,
		Cond: xdr.Preconditions{
			Type:       xdr.PrecondTime,
			TimeBounds: xdr.TimeBounds{MaxTime: uint64(e.now().Add(txValidity).Unix())},
		},
		Memo:       xdr.MemoTextOf(e.memo),
		Operations: ops,
	}}, nil
}

// fallbackSignal degrades a contract signal to a single-hop classic
// strict-send over the assets recovered from the transaction's effects.
func fallbackSignal(sig *domain.TradeSignal) *domain.TradeSignal {
	return &domain.TradeSignal{
		Kind:          domain.SignalPathSend,
		SourceAsset:   sig.SourceAsset,
		DestAsset:     sig.DestAsset,
		SendAmount:    sig.SendAmount,
		ReceiveAmount: sig.ReceiveAmount,
		TxHash:        sig.TxHash,
	}
}
