package domain

import "github.com/shopspring/decimal"

// ProtocolVariant names the payment style a scaled order will use.
type ProtocolVariant string

const (
	VariantStrictSend    ProtocolVariant = "strict_send"
	VariantStrictReceive ProtocolVariant = "strict_receive"
)

// ScaledOrder is a rescaled, balance-checked trade ready for construction.
// Submitted whole or discarded; never partially executed.
type ScaledOrder struct {
	Variant     ProtocolVariant
	SourceAsset Asset
	DestAsset   Asset

	// SendAmount is the exact send under strict_send and the send ceiling
	// under strict_receive.
	SendAmount decimal.Decimal
	// ReceiveAmount is the receive floor under strict_send and the exact
	// receive under strict_receive.
	ReceiveAmount decimal.Decimal

	Path []Asset

	// FeeAmount is the usage fee in native units, charged alongside the
	// trade.
	FeeAmount decimal.Decimal
	// Downgraded marks a strict-receive request that was converted to
	// strict-send because the balance could not cover the send ceiling.
	Downgraded bool
}
