package memory

import (
	"context"
	"sync"

	"stellar-copy-engine/internal/domain"
	"stellar-copy-engine/internal/storage"
)

// SessionStore is an in-memory implementation of storage.SessionStore.
type SessionStore struct {
	mu   sync.RWMutex
	data map[string]*domain.SigningSession
}

// NewSessionStore creates a new in-memory session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{data: make(map[string]*domain.SigningSession)}
}

var _ storage.SessionStore = (*SessionStore)(nil)

// Get retrieves the current session for an owner. Returns ErrNotFound if
// the owner never authenticated.
func (s *SessionStore) Get(_ context.Context, ownerID string) (*domain.SigningSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, exists := s.data[ownerID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	sessionCopy := *session
	return &sessionCopy, nil
}

// Save inserts or replaces an owner's session.
func (s *SessionStore) Save(_ context.Context, session *domain.SigningSession) error {
	if session == nil || session.OwnerID == "" {
		return storage.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sessionCopy := *session
	s.data[session.OwnerID] = &sessionCopy
	return nil
}
