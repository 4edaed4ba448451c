// Package classifier turns a watched wallet's confirmed transactions into
// trade signals the rescaler and rewriter can act on.
package classifier

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"stellar-copy-engine/internal/config"
	"stellar-copy-engine/internal/domain"
	"stellar-copy-engine/internal/horizon"
	"stellar-copy-engine/internal/xdr"
)

// Gateway is the slice of the Horizon client the classifier needs.
type Gateway interface {
	Operations(ctx context.Context, hash string) ([]horizon.OperationRecord, error)
	Effects(ctx context.Context, hash string) ([]horizon.EffectRecord, error)
	ResolveMuxed(addr string) (string, error)
}

// Classifier inspects confirmed transactions for copyable trades.
type Classifier struct {
	gw      Gateway
	routers config.RouterTable
	log     zerolog.Logger
}

// New builds a classifier over the given gateway and router whitelist.
func New(gw Gateway, routers config.RouterTable, log zerolog.Logger) *Classifier {
	return &Classifier{gw: gw, routers: routers, log: log.With().Str("component", "classifier").Logger()}
}

// Classify returns one signal per matched operation sourced by the watched
// address. Unknown contracts, foreign-sourced operations and unresolvable
// muxed sources are skipped, not errors.
func (c *Classifier) Classify(ctx context.Context, tx *horizon.TransactionRecord, watched string) ([]domain.TradeSignal, error) {
	ops, err := c.gw.Operations(ctx, tx.Hash)
	if err != nil {
		return nil, fmt.Errorf("fetch operations for %s: %w", tx.Hash, err)
	}

	var signals []domain.TradeSignal
	invokeSeen := false
	for _, op := range ops {
		source, ok := c.effectiveSource(op)
		if !ok || source != watched {
			continue
		}
		switch op.TypeI {
		case horizon.OpTypePathPaymentStrictSend:
			sig, ok := c.pathSendSignal(op, tx.Hash)
			if ok {
				signals = append(signals, sig)
			}
		case horizon.OpTypePathPaymentStrictReceive:
			sig, ok := c.pathReceiveSignal(op, tx.Hash)
			if ok {
				signals = append(signals, sig)
			}
		case horizon.OpTypeInvokeHostFunction:
			// The envelope walk covers every invoke op of the tx at once.
			if invokeSeen {
				continue
			}
			invokeSeen = true
			sigs, err := c.invokeSignals(ctx, tx, watched)
			if err != nil {
				return nil, err
			}
			signals = append(signals, sigs...)
		}
	}
	return signals, nil
}

// effectiveSource resolves the operation's source to a base G-address.
// Resolution failures skip the operation.
func (c *Classifier) effectiveSource(op horizon.OperationRecord) (string, bool) {
	addr := op.SourceAccount
	if op.SourceAccountMuxed != "" {
		addr = op.SourceAccountMuxed
	}
	if strings.HasPrefix(addr, "M") {
		base, err := c.gw.ResolveMuxed(addr)
		if err != nil {
			c.log.Debug().Str("source", addr).Err(err).Msg("skipping op with unresolvable muxed source")
			return "", false
		}
		return base, true
	}
	return addr, true
}

func (c *Classifier) pathSendSignal(op horizon.OperationRecord, txHash string) (domain.TradeSignal, bool) {
	send, err1 := decimal.NewFromString(op.SourceAmount)
	min, err2 := decimal.NewFromString(op.DestinationMin)
	if err1 != nil || err2 != nil {
		c.log.Warn().Str("op", op.ID).Msg("skipping strict-send op with unparseable amounts")
		return domain.TradeSignal{}, false
	}
	return domain.TradeSignal{
		Kind:          domain.SignalPathSend,
		SourceAsset:   op.SourceAsset(),
		DestAsset:     op.Asset(),
		SendAmount:    send,
		ReceiveAmount: min,
		Path:          op.PathAssets(),
		TxHash:        txHash,
	}, true
}

func (c *Classifier) pathReceiveSignal(op horizon.OperationRecord, txHash string) (domain.TradeSignal, bool) {
	maxSend, err1 := decimal.NewFromString(op.SourceMax)
	recv, err2 := decimal.NewFromString(op.Amount)
	if err1 != nil || err2 != nil {
		c.log.Warn().Str("op", op.ID).Msg("skipping strict-receive op with unparseable amounts")
		return domain.TradeSignal{}, false
	}
	return domain.TradeSignal{
		Kind:          domain.SignalPathReceive,
		SourceAsset:   op.SourceAsset(),
		DestAsset:     op.Asset(),
		SendAmount:    maxSend,
		ReceiveAmount: recv,
		Path:          op.PathAssets(),
		TxHash:        txHash,
	}, true
}

// invokeSignals parses the envelope's host-function invocations, matches
// them against the router whitelist, and recovers asset identities from
// the transaction's realized effects.
func (c *Classifier) invokeSignals(ctx context.Context, tx *horizon.TransactionRecord, watched string) ([]domain.TradeSignal, error) {
	env, err := xdr.DecodeEnvelopeBase64(tx.EnvelopeXDR)
	if err != nil {
		c.log.Warn().Str("tx", tx.Hash).Err(err).Msg("skipping invoke tx with undecodable envelope")
		return nil, nil
	}

	var signals []domain.TradeSignal
	for _, op := range env.Tx.Operations {
		if op.Body.Type != xdr.OpInvokeHostFunction || op.Body.InvokeHostFunction == nil {
			continue
		}
		invoke := op.Body.InvokeHostFunction.Invoke
		contractID := hex.EncodeToString(invoke.ContractAddress.Contract[:])
		fn := invoke.FunctionName
		if _, ok := c.routers.Lookup(contractID, fn); !ok {
			c.log.Info().
				Str("contract", contractID).
				Str("function", fn).
				Msg("skipping invocation of non-whitelisted contract function")
			continue
		}
		source, dest, err := c.contractAssets(ctx, tx.Hash, watched)
		if err != nil {
			return nil, err
		}
		signals = append(signals, domain.TradeSignal{
			Kind:          domain.SignalContractInvoke,
			SourceAsset:   source.asset,
			DestAsset:     dest.asset,
			SendAmount:    source.amount,
			ReceiveAmount: dest.amount,
			TxHash:        tx.Hash,
			Contract: &domain.ContractCall{
				ContractID:  contractID,
				Function:    fn,
				EnvelopeXDR: tx.EnvelopeXDR,
			},
		})
	}
	return signals, nil
}

type assetMove struct {
	asset  domain.Asset
	amount decimal.Decimal
}

// contractAssets recovers what the watched wallet spent and received from
// the transaction's effects. The invocation arguments alone do not name
// asset issuers. The last credit wins as the trade output.
func (c *Classifier) contractAssets(ctx context.Context, txHash, watched string) (source, dest assetMove, err error) {
	effects, err := c.gw.Effects(ctx, txHash)
	if err != nil {
		return assetMove{}, assetMove{}, fmt.Errorf("fetch effects for %s: %w", txHash, err)
	}
	for _, ef := range effects {
		if ef.Account != watched {
			continue
		}
		switch ef.Type {
		case "account_debited":
			if source.amount.IsZero() {
				source = assetMove{asset: ef.Asset(), amount: ef.AmountDecimal()}
			}
		case "account_credited":
			dest = assetMove{asset: ef.Asset(), amount: ef.AmountDecimal()}
		}
	}
	return source, dest, nil
}
