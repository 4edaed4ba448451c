package postgres

import (
	"context"

	"stellar-copy-engine/internal/domain"
	"stellar-copy-engine/internal/storage"
)

// UserStore is a PostgreSQL implementation of storage.UserStore.
type UserStore struct {
	pool *Pool
}

// NewUserStore creates a new PostgreSQL user store.
func NewUserStore(pool *Pool) *UserStore {
	return &UserStore{pool: pool}
}

// Compile-time interface check.
var _ storage.UserStore = (*UserStore)(nil)

// Get retrieves a user by owner ID.
func (s *UserStore) Get(ctx context.Context, ownerID string) (*domain.User, error) {
	if ownerID == "" {
		return nil, storage.ErrInvalidInput
	}

	row := s.pool.QueryRow(ctx, `
		SELECT owner_id, public_key, founder, created_at
		FROM users
		WHERE owner_id = $1
	`, ownerID)

	var u domain.User
	if err := row.Scan(&u.OwnerID, &u.PublicKey, &u.Founder, &u.CreatedAt); err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// Upsert inserts or replaces a user record.
func (s *UserStore) Upsert(ctx context.Context, u *domain.User) error {
	if u == nil || u.OwnerID == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (owner_id, public_key, founder, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (owner_id) DO UPDATE
		SET public_key = EXCLUDED.public_key,
		    founder = EXCLUDED.founder
	`, u.OwnerID, u.PublicKey, u.Founder, u.CreatedAt)

	return err
}
