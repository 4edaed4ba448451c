package postgres

import (
	"context"

	"stellar-copy-engine/internal/storage"
)

// CursorStore is a PostgreSQL implementation of storage.CursorStore.
// Single row per watched address; losing a row degrades the stream to
// "start from now".
type CursorStore struct {
	pool *Pool
}

// NewCursorStore creates a new PostgreSQL cursor store.
func NewCursorStore(pool *Pool) *CursorStore {
	return &CursorStore{pool: pool}
}

// Compile-time interface check.
var _ storage.CursorStore = (*CursorStore)(nil)

// Get returns the stored cursor for a watched address.
func (s *CursorStore) Get(ctx context.Context, watchedAddress string) (string, error) {
	if watchedAddress == "" {
		return "", storage.ErrInvalidInput
	}

	row := s.pool.QueryRow(ctx, `
		SELECT cursor FROM stream_cursors WHERE watched_address = $1
	`, watchedAddress)

	var cursor string
	if err := row.Scan(&cursor); err != nil {
		if isNotFoundError(err) {
			return "", storage.ErrNotFound
		}
		return "", err
	}
	return cursor, nil
}

// Set records the cursor after a transaction has been handled.
func (s *CursorStore) Set(ctx context.Context, watchedAddress, cursor string) error {
	if watchedAddress == "" || cursor == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO stream_cursors (watched_address, cursor, updated_at)
		VALUES ($1, $2, (EXTRACT(EPOCH FROM NOW()) * 1000)::BIGINT)
		ON CONFLICT (watched_address) DO UPDATE
		SET cursor = EXCLUDED.cursor,
		    updated_at = EXCLUDED.updated_at
	`, watchedAddress, cursor)

	return err
}
