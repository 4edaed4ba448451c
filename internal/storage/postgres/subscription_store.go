package postgres

import (
	"context"

	"stellar-copy-engine/internal/domain"
	"stellar-copy-engine/internal/storage"
)

// SubscriptionStore is a PostgreSQL implementation of storage.SubscriptionStore.
type SubscriptionStore struct {
	pool *Pool
}

// NewSubscriptionStore creates a new PostgreSQL subscription store.
func NewSubscriptionStore(pool *Pool) *SubscriptionStore {
	return &SubscriptionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SubscriptionStore = (*SubscriptionStore)(nil)

// Upsert inserts or replaces the settings for (owner, watched address).
func (s *SubscriptionStore) Upsert(ctx context.Context, sub *domain.WatchSubscription) error {
	if sub == nil || sub.OwnerID == "" || sub.WatchedAddress == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO watch_subscriptions (
			owner_id, watched_address, status, multiplier, fixed_amount, slippage, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (owner_id, watched_address) DO UPDATE
		SET status = EXCLUDED.status,
		    multiplier = EXCLUDED.multiplier,
		    fixed_amount = EXCLUDED.fixed_amount,
		    slippage = EXCLUDED.slippage,
		    updated_at = EXCLUDED.updated_at
	`, sub.OwnerID, sub.WatchedAddress, string(sub.Status), sub.Multiplier, sub.FixedAmount, sub.Slippage, sub.CreatedAt, sub.UpdatedAt)

	return err
}

// Get retrieves one subscription.
func (s *SubscriptionStore) Get(ctx context.Context, ownerID, watchedAddress string) (*domain.WatchSubscription, error) {
	if ownerID == "" || watchedAddress == "" {
		return nil, storage.ErrInvalidInput
	}

	row := s.pool.QueryRow(ctx, `
		SELECT owner_id, watched_address, status, multiplier, fixed_amount, slippage, created_at, updated_at
		FROM watch_subscriptions
		WHERE owner_id = $1 AND watched_address = $2
	`, ownerID, watchedAddress)

	sub, err := scanSubscription(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	return sub, nil
}

// ListActive retrieves every active subscription across all owners.
func (s *SubscriptionStore) ListActive(ctx context.Context) ([]*domain.WatchSubscription, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT owner_id, watched_address, status, multiplier, fixed_amount, slippage, created_at, updated_at
		FROM watch_subscriptions
		WHERE status = 'active'
		ORDER BY owner_id, watched_address
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []*domain.WatchSubscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// SetStatus flips one subscription's status.
func (s *SubscriptionStore) SetStatus(ctx context.Context, ownerID, watchedAddress string, status domain.SubscriptionStatus) error {
	if ownerID == "" || watchedAddress == "" {
		return storage.ErrInvalidInput
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE watch_subscriptions
		SET status = $3
		WHERE owner_id = $1 AND watched_address = $2
	`, ownerID, watchedAddress, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscription(row rowScanner) (*domain.WatchSubscription, error) {
	var sub domain.WatchSubscription
	var status string
	err := row.Scan(&sub.OwnerID, &sub.WatchedAddress, &status, &sub.Multiplier, &sub.FixedAmount, &sub.Slippage, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return nil, err
	}
	sub.Status = domain.SubscriptionStatus(status)
	return &sub, nil
}
