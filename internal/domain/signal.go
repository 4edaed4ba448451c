package domain

import "github.com/shopspring/decimal"

// SignalKind distinguishes the three trade shapes the classifier emits.
type SignalKind string

const (
	SignalPathSend       SignalKind = "path_send"       // strict-send path payment
	SignalPathReceive    SignalKind = "path_receive"    // strict-receive path payment
	SignalContractInvoke SignalKind = "contract_invoke" // whitelisted Soroban swap
)

// IsValid checks if the kind is a known value.
func (k SignalKind) IsValid() bool {
	return k == SignalPathSend || k == SignalPathReceive || k == SignalContractInvoke
}

// TradeSignal is one matched operation from a watched wallet's confirmed
// transaction. Ephemeral; never persisted.
type TradeSignal struct {
	Kind        SignalKind
	SourceAsset Asset
	DestAsset   Asset

	// SendAmount is the exact send for path_send signals and the maximum
	// send for path_receive signals.
	SendAmount decimal.Decimal
	// ReceiveAmount is the minimum receive for path_send signals and the
	// exact receive for path_receive signals.
	ReceiveAmount decimal.Decimal

	// Path is the intermediate hop list of a classic path payment.
	Path []Asset

	TxHash string
	// Contract holds the invocation facts for contract_invoke signals.
	Contract *ContractCall
}

// ContractCall carries the raw invocation of a whitelisted router function,
// enough for the rewriter to rebuild it with fresh arguments.
type ContractCall struct {
	ContractID string // 64-char hex of the contract hash
	Function   string
	// EnvelopeXDR is the observed transaction envelope in base64, the
	// rewriter re-parses it to copy argument structure.
	EnvelopeXDR string
}
