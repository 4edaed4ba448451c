package memory

import (
	"context"
	"sync"

	"stellar-copy-engine/internal/domain"
	"stellar-copy-engine/internal/storage"
)

type subKey struct {
	owner   string
	watched string
}

// SubscriptionStore is an in-memory implementation of
// storage.SubscriptionStore.
type SubscriptionStore struct {
	mu   sync.RWMutex
	data map[subKey]*domain.WatchSubscription
}

// NewSubscriptionStore creates a new in-memory subscription store.
func NewSubscriptionStore() *SubscriptionStore {
	return &SubscriptionStore{data: make(map[subKey]*domain.WatchSubscription)}
}

var _ storage.SubscriptionStore = (*SubscriptionStore)(nil)

// Upsert inserts or replaces the settings for (owner, watched address).
func (s *SubscriptionStore) Upsert(_ context.Context, sub *domain.WatchSubscription) error {
	if sub == nil || sub.OwnerID == "" || sub.WatchedAddress == "" {
		return storage.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	subCopy := *sub
	s.data[subKey{sub.OwnerID, sub.WatchedAddress}] = &subCopy
	return nil
}

// Get retrieves one subscription. Returns ErrNotFound if not exists.
func (s *SubscriptionStore) Get(_ context.Context, ownerID, watchedAddress string) (*domain.WatchSubscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, exists := s.data[subKey{ownerID, watchedAddress}]
	if !exists {
		return nil, storage.ErrNotFound
	}
	subCopy := *sub
	return &subCopy, nil
}

// ListActive retrieves every active subscription across all owners.
func (s *SubscriptionStore) ListActive(_ context.Context) ([]*domain.WatchSubscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.WatchSubscription
	for _, sub := range s.data {
		if sub.Status == domain.SubscriptionActive {
			subCopy := *sub
			out = append(out, &subCopy)
		}
	}
	return out, nil
}

// SetStatus flips one subscription's status.
func (s *SubscriptionStore) SetStatus(_ context.Context, ownerID, watchedAddress string, status domain.SubscriptionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, exists := s.data[subKey{ownerID, watchedAddress}]
	if !exists {
		return storage.ErrNotFound
	}
	sub.Status = status
	return nil
}
