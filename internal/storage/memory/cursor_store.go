package memory

import (
	"context"
	"sync"

	"stellar-copy-engine/internal/storage"
)

// CursorStore is an in-memory implementation of storage.CursorStore.
type CursorStore struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewCursorStore creates a new in-memory cursor store.
func NewCursorStore() *CursorStore {
	return &CursorStore{data: make(map[string]string)}
}

var _ storage.CursorStore = (*CursorStore)(nil)

// Get returns the stored cursor. Returns ErrNotFound before the first
// transaction is handled.
func (s *CursorStore) Get(_ context.Context, watchedAddress string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cursor, exists := s.data[watchedAddress]
	if !exists {
		return "", storage.ErrNotFound
	}
	return cursor, nil
}

// Set records the cursor after a transaction has been handled.
func (s *CursorStore) Set(_ context.Context, watchedAddress, cursor string) error {
	if watchedAddress == "" || cursor == "" {
		return storage.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[watchedAddress] = cursor
	return nil
}
