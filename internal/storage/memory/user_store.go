package memory

import (
	"context"
	"sync"

	"stellar-copy-engine/internal/domain"
	"stellar-copy-engine/internal/storage"
)

// UserStore is an in-memory implementation of storage.UserStore.
type UserStore struct {
	mu   sync.RWMutex
	data map[string]*domain.User
}

// NewUserStore creates a new in-memory user store.
func NewUserStore() *UserStore {
	return &UserStore{data: make(map[string]*domain.User)}
}

var _ storage.UserStore = (*UserStore)(nil)

// Get retrieves a user by owner ID. Returns ErrNotFound if not exists.
func (s *UserStore) Get(_ context.Context, ownerID string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, exists := s.data[ownerID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	userCopy := *u
	return &userCopy, nil
}

// Upsert inserts or replaces a user record.
func (s *UserStore) Upsert(_ context.Context, u *domain.User) error {
	if u == nil || u.OwnerID == "" {
		return storage.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	userCopy := *u
	s.data[u.OwnerID] = &userCopy
	return nil
}
