package memory

import (
	"context"
	"sort"
	"sync"

	"stellar-copy-engine/internal/domain"
	"stellar-copy-engine/internal/storage"
)

// RewardStore is an in-memory implementation of storage.RewardStore.
type RewardStore struct {
	mu     sync.RWMutex
	nextID int64
	data   map[int64]*domain.RewardEntry
}

// NewRewardStore creates a new in-memory reward store.
func NewRewardStore() *RewardStore {
	return &RewardStore{data: make(map[int64]*domain.RewardEntry)}
}

var _ storage.RewardStore = (*RewardStore)(nil)

// Insert appends one referral share entry, assigning its ID.
func (s *RewardStore) Insert(_ context.Context, e *domain.RewardEntry) error {
	if e == nil || e.BeneficiaryID == "" {
		return storage.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	e.ID = s.nextID
	entryCopy := *e
	s.data[e.ID] = &entryCopy
	return nil
}

// ListUnpaid retrieves all unpaid entries, oldest first.
func (s *RewardStore) ListUnpaid(_ context.Context) ([]*domain.RewardEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.RewardEntry
	for _, e := range s.data {
		if e.Status == domain.RewardUnpaid {
			entryCopy := *e
			out = append(out, &entryCopy)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// MarkPaid flips the given entries to paid at the supplied timestamp.
func (s *RewardStore) MarkPaid(_ context.Context, ids []int64, paidAtMs int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		e, exists := s.data[id]
		if !exists {
			return storage.ErrNotFound
		}
		e.Status = domain.RewardPaid
		paidAt := paidAtMs
		e.PaidAt = &paidAt
	}
	return nil
}
