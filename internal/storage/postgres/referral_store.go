package postgres

import (
	"context"

	"stellar-copy-engine/internal/domain"
	"stellar-copy-engine/internal/storage"
)

// ReferralStore is a PostgreSQL implementation of storage.ReferralStore.
// The referee is the primary key; each user has at most one referrer.
type ReferralStore struct {
	pool *Pool
}

// NewReferralStore creates a new PostgreSQL referral store.
func NewReferralStore(pool *Pool) *ReferralStore {
	return &ReferralStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ReferralStore = (*ReferralStore)(nil)

// Insert adds a referrer edge.
func (s *ReferralStore) Insert(ctx context.Context, r *domain.Referral) error {
	if r == nil || r.RefereeID == "" || r.ReferrerID == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO referrals (referee_id, referrer_id, created_at)
		VALUES ($1, $2, $3)
	`, r.RefereeID, r.ReferrerID, r.CreatedAt)
	if isDuplicateKeyError(err) {
		return storage.ErrDuplicateKey
	}
	return err
}

// ReferrerOf returns the referrer of a user.
func (s *ReferralStore) ReferrerOf(ctx context.Context, refereeID string) (string, error) {
	if refereeID == "" {
		return "", storage.ErrInvalidInput
	}

	row := s.pool.QueryRow(ctx, `
		SELECT referrer_id FROM referrals WHERE referee_id = $1
	`, refereeID)

	var referrer string
	if err := row.Scan(&referrer); err != nil {
		if isNotFoundError(err) {
			return "", storage.ErrNotFound
		}
		return "", err
	}
	return referrer, nil
}
