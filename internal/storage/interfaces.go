package storage

import (
	"context"

	"github.com/shopspring/decimal"

	"stellar-copy-engine/internal/domain"
)

// SubscriptionStore provides access to watch_subscriptions storage.
type SubscriptionStore interface {
	// Upsert inserts or replaces the settings for (owner, watched address).
	Upsert(ctx context.Context, sub *domain.WatchSubscription) error

	// Get retrieves one subscription. Returns ErrNotFound if not exists.
	Get(ctx context.Context, ownerID, watchedAddress string) (*domain.WatchSubscription, error)

	// ListActive retrieves every active subscription across all owners.
	ListActive(ctx context.Context) ([]*domain.WatchSubscription, error)

	// SetStatus flips one subscription's status.
	SetStatus(ctx context.Context, ownerID, watchedAddress string, status domain.SubscriptionStatus) error
}

// CursorStore persists the last handled stream position per watched address.
type CursorStore interface {
	// Get returns the stored cursor. Returns ErrNotFound before the first
	// transaction is handled; the stream then starts from "now".
	Get(ctx context.Context, watchedAddress string) (string, error)

	// Set records the cursor after a transaction has been handled.
	Set(ctx context.Context, watchedAddress, cursor string) error
}

// UserStore provides access to users storage.
type UserStore interface {
	// Get retrieves a user by owner ID. Returns ErrNotFound if not exists.
	Get(ctx context.Context, ownerID string) (*domain.User, error)

	// Upsert inserts or replaces a user record.
	Upsert(ctx context.Context, u *domain.User) error
}

// ReferralStore provides access to the single-parent referrer graph.
type ReferralStore interface {
	// Insert adds a referrer edge. Returns ErrDuplicateKey if the referee
	// already has a referrer.
	Insert(ctx context.Context, r *domain.Referral) error

	// ReferrerOf returns the referrer of a user. Returns ErrNotFound when
	// the user has no referrer.
	ReferrerOf(ctx context.Context, refereeID string) (string, error)
}

// SessionStore provides access to signing_sessions storage.
type SessionStore interface {
	// Get retrieves the current session for an owner. Returns ErrNotFound
	// if the owner never authenticated.
	Get(ctx context.Context, ownerID string) (*domain.SigningSession, error)

	// Save inserts or replaces an owner's session, including the opened
	// form of a previously sealed one.
	Save(ctx context.Context, s *domain.SigningSession) error
}

// RewardStore provides access to reward_entries storage.
type RewardStore interface {
	// Insert appends one referral share entry.
	Insert(ctx context.Context, e *domain.RewardEntry) error

	// ListUnpaid retrieves all unpaid entries, oldest first.
	ListUnpaid(ctx context.Context) ([]*domain.RewardEntry, error)

	// MarkPaid flips the given entries to paid at the supplied timestamp.
	MarkPaid(ctx context.Context, ids []int64, paidAtMs int64) error
}

// VolumeStore provides access to the append-only trade volume log.
type VolumeStore interface {
	// Insert logs one trade's native volume. Inserting the same tx hash
	// twice is a no-op, keeping the log idempotent per transaction.
	Insert(ctx context.Context, v *domain.TradeVolume) error

	// SumSince returns an owner's total native volume at or after sinceMs.
	SumSince(ctx context.Context, ownerID string, sinceMs int64) (decimal.Decimal, error)
}
