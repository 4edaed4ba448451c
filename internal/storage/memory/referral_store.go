package memory

import (
	"context"
	"sync"

	"stellar-copy-engine/internal/domain"
	"stellar-copy-engine/internal/storage"
)

// ReferralStore is an in-memory implementation of storage.ReferralStore.
type ReferralStore struct {
	mu   sync.RWMutex
	data map[string]string // referee -> referrer
}

// NewReferralStore creates a new in-memory referral store.
func NewReferralStore() *ReferralStore {
	return &ReferralStore{data: make(map[string]string)}
}

var _ storage.ReferralStore = (*ReferralStore)(nil)

// Insert adds a referrer edge. Returns ErrDuplicateKey if the referee
// already has a referrer.
func (s *ReferralStore) Insert(_ context.Context, r *domain.Referral) error {
	if r == nil || r.RefereeID == "" || r.ReferrerID == "" {
		return storage.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[r.RefereeID]; exists {
		return storage.ErrDuplicateKey
	}
	s.data[r.RefereeID] = r.ReferrerID
	return nil
}

// ReferrerOf returns the referrer of a user. Returns ErrNotFound when the
// user has no referrer.
func (s *ReferralStore) ReferrerOf(_ context.Context, refereeID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	referrer, exists := s.data[refereeID]
	if !exists {
		return "", storage.ErrNotFound
	}
	return referrer, nil
}
