package domain

import "github.com/shopspring/decimal"

// TradeVolume is one realized trade's native-unit volume, logged once per
// transaction hash for fee-tier and referral-share lookups.
// Corresponds to trade_volumes table in ClickHouse.
type TradeVolume struct {
	OwnerID      string
	TxHash       string // dedup key
	NativeVolume decimal.Decimal
	TimestampMs  int64 // Unix timestamp in milliseconds
}

// StreamCursor is the last handled paging token for a watched address.
// Corresponds to stream_cursors table in PostgreSQL.
type StreamCursor struct {
	WatchedAddress string // PRIMARY KEY
	Cursor         string // Horizon paging_token
	UpdatedAt      int64
}
