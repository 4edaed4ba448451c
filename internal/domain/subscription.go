package domain

import "github.com/shopspring/decimal"

// SubscriptionStatus gates whether a watch subscription is streamed.
type SubscriptionStatus string

const (
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionInactive SubscriptionStatus = "inactive"
)

// WatchSubscription ties a follower to one watched wallet with their copy
// settings. One row per (owner, watched address).
// Corresponds to watch_subscriptions table in PostgreSQL.
type WatchSubscription struct {
	OwnerID        string
	WatchedAddress string
	Status         SubscriptionStatus
	// Multiplier scales the observed amount; ignored when FixedAmount set.
	Multiplier decimal.Decimal
	// FixedAmount, when non-nil, replaces the proportional target outright.
	FixedAmount *decimal.Decimal
	// Slippage in [0,1): tolerated deviation on the quoted counter-amount.
	Slippage  decimal.Decimal
	CreatedAt int64 // Unix timestamp in milliseconds
	UpdatedAt int64
}
