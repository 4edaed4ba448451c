package domain

import "github.com/shopspring/decimal"

// RewardStatus is the payout state of a referral ledger entry.
type RewardStatus string

const (
	RewardUnpaid RewardStatus = "unpaid"
	RewardPaid   RewardStatus = "paid"
)

// RewardEntry is one referral share credited to a beneficiary. Written on
// every successful fee payment; flipped to paid only by the payout job.
// Corresponds to reward_entries table in PostgreSQL.
type RewardEntry struct {
	ID            int64 // BIGSERIAL primary key
	BeneficiaryID string
	SourceOwnerID string // the trading user whose fee produced the share
	Level         int    // 1..5 in the referrer chain
	Amount        decimal.Decimal
	TxHash        string // the copied trade's transaction hash
	Status        RewardStatus
	PaidAt        *int64 // Unix timestamp in milliseconds, nil while unpaid
	CreatedAt     int64
}
