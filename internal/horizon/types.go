package horizon

import (
	"github.com/shopspring/decimal"

	"stellar-copy-engine/internal/domain"
)

// accountResponse mirrors GET /accounts/{address}.
type accountResponse struct {
	AccountID     string        `json:"account_id"`
	Sequence      int64         `json:"sequence,string"`
	SubentryCount int           `json:"subentry_count"`
	NumSponsoring int           `json:"num_sponsoring"`
	NumSponsored  int           `json:"num_sponsored"`
	Balances      []balanceLine `json:"balances"`
}

type balanceLine struct {
	Balance            string `json:"balance"`
	SellingLiabilities string `json:"selling_liabilities"`
	AssetType          string `json:"asset_type"`
	AssetCode          string `json:"asset_code"`
	AssetIssuer        string `json:"asset_issuer"`
}

func (b balanceLine) asset() domain.Asset {
	if b.AssetType == "native" {
		return domain.NativeAsset()
	}
	return domain.Asset{Code: b.AssetCode, Issuer: b.AssetIssuer}
}

// TransactionRecord is the slice of Horizon's transaction resource the
// engine consumes.
type TransactionRecord struct {
	ID          string `json:"id"`
	PagingToken string `json:"paging_token"`
	Hash        string `json:"hash"`
	Ledger      int64  `json:"ledger"`
	Successful  bool   `json:"successful"`
	EnvelopeXDR string `json:"envelope_xdr"`
	ResultXDR   string `json:"result_xdr"`
	MemoType    string `json:"memo_type"`
	Memo        string `json:"memo"`
	CreatedAt   string `json:"created_at"`
}

// OperationRecord is the slice of Horizon's operation resource the
// classifier consumes. Amount fields stay strings until parsed.
type OperationRecord struct {
	ID                 string   `json:"id"`
	TypeI              int      `json:"type_i"`
	Type               string   `json:"type"`
	SourceAccount      string   `json:"source_account"`
	SourceAccountMuxed string   `json:"source_account_muxed"`
	TransactionHash    string   `json:"transaction_hash"`
	From               string   `json:"from"`
	To                 string   `json:"to"`
	Amount             string   `json:"amount"`
	SourceAmount       string   `json:"source_amount"`
	SourceMax          string   `json:"source_max"`
	DestinationMin     string   `json:"destination_min"`
	AssetType          string   `json:"asset_type"`
	AssetCode          string   `json:"asset_code"`
	AssetIssuer        string   `json:"asset_issuer"`
	SourceAssetType    string   `json:"source_asset_type"`
	SourceAssetCode    string   `json:"source_asset_code"`
	SourceAssetIssuer  string   `json:"source_asset_issuer"`
	Function           string   `json:"function"`
	Path               []pathOp `json:"path"`
}

type pathOp struct {
	AssetType   string `json:"asset_type"`
	AssetCode   string `json:"asset_code"`
	AssetIssuer string `json:"asset_issuer"`
}

// Operation type_i discriminants Horizon reports.
const (
	OpTypePathPaymentStrictReceive = 2
	OpTypePathPaymentStrictSend    = 13
	OpTypeInvokeHostFunction       = 24
)

// Asset returns the operation's destination asset.
func (o OperationRecord) Asset() domain.Asset {
	if o.AssetType == "native" {
		return domain.NativeAsset()
	}
	return domain.Asset{Code: o.AssetCode, Issuer: o.AssetIssuer}
}

// SourceAsset returns the operation's source asset.
func (o OperationRecord) SourceAsset() domain.Asset {
	if o.SourceAssetType == "native" {
		return domain.NativeAsset()
	}
	return domain.Asset{Code: o.SourceAssetCode, Issuer: o.SourceAssetIssuer}
}

// PathAssets returns the intermediate hops of a path payment.
func (o OperationRecord) PathAssets() []domain.Asset {
	out := make([]domain.Asset, 0, len(o.Path))
	for _, p := range o.Path {
		if p.AssetType == "native" {
			out = append(out, domain.NativeAsset())
		} else {
			out = append(out, domain.Asset{Code: p.AssetCode, Issuer: p.AssetIssuer})
		}
	}
	return out
}

// EffectRecord is the slice of Horizon's effect resource used to recover
// asset movements of a contract trade.
type EffectRecord struct {
	Type        string `json:"type"`
	Account     string `json:"account"`
	Amount      string `json:"amount"`
	AssetType   string `json:"asset_type"`
	AssetCode   string `json:"asset_code"`
	AssetIssuer string `json:"asset_issuer"`
}

// Asset returns the effect's asset.
func (e EffectRecord) Asset() domain.Asset {
	if e.AssetType == "native" {
		return domain.NativeAsset()
	}
	return domain.Asset{Code: e.AssetCode, Issuer: e.AssetIssuer}
}

// AmountDecimal parses the effect amount, zero on absence.
func (e EffectRecord) AmountDecimal() decimal.Decimal {
	if e.Amount == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(e.Amount)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// pathRecord mirrors one entry of a path-finding response.
type pathRecord struct {
	SourceAmount      string   `json:"source_amount"`
	DestinationAmount string   `json:"destination_amount"`
	Path              []pathOp `json:"path"`
}

type ledgerRecord struct {
	Sequence int64 `json:"sequence"`
}

type feeTxRecord struct {
	MaxFee int64 `json:"max_fee,string"`
}

// embeddedRecords is Horizon's HAL collection wrapper.
type embeddedRecords[T any] struct {
	Embedded struct {
		Records []T `json:"records"`
	} `json:"_embedded"`
}

type submitAsyncResponse struct {
	TxStatus string `json:"tx_status"`
	Hash     string `json:"hash"`
}
