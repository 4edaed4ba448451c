package postgres

import (
	"context"

	"stellar-copy-engine/internal/domain"
	"stellar-copy-engine/internal/storage"
)

// SessionStore is a PostgreSQL implementation of storage.SessionStore.
// One current session per owner.
type SessionStore struct {
	pool *Pool
}

// NewSessionStore creates a new PostgreSQL session store.
func NewSessionStore(pool *Pool) *SessionStore {
	return &SessionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SessionStore = (*SessionStore)(nil)

// Get retrieves the current session for an owner.
func (s *SessionStore) Get(ctx context.Context, ownerID string) (*domain.SigningSession, error) {
	if ownerID == "" {
		return nil, storage.ErrInvalidInput
	}

	row := s.pool.QueryRow(ctx, `
		SELECT owner_id, organization_id, public_key_hex, private_key_hex, sealed_bundle, expires_at
		FROM signing_sessions
		WHERE owner_id = $1
	`, ownerID)

	var sess domain.SigningSession
	err := row.Scan(&sess.OwnerID, &sess.OrganizationID, &sess.PublicKeyHex, &sess.PrivateKeyHex, &sess.SealedBundle, &sess.ExpiresAt)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	return &sess, nil
}

// Save inserts or replaces an owner's session.
func (s *SessionStore) Save(ctx context.Context, sess *domain.SigningSession) error {
	if sess == nil || sess.OwnerID == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO signing_sessions (
			owner_id, organization_id, public_key_hex, private_key_hex, sealed_bundle, expires_at
		)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (owner_id) DO UPDATE
		SET organization_id = EXCLUDED.organization_id,
		    public_key_hex = EXCLUDED.public_key_hex,
		    private_key_hex = EXCLUDED.private_key_hex,
		    sealed_bundle = EXCLUDED.sealed_bundle,
		    expires_at = EXCLUDED.expires_at
	`, sess.OwnerID, sess.OrganizationID, sess.PublicKeyHex, sess.PrivateKeyHex, sess.SealedBundle, sess.ExpiresAt)

	return err
}
