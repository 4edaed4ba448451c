package memory

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"stellar-copy-engine/internal/domain"
	"stellar-copy-engine/internal/storage"
)

// VolumeStore is an in-memory implementation of storage.VolumeStore.
type VolumeStore struct {
	mu   sync.RWMutex
	data map[string]*domain.TradeVolume // keyed by tx hash
}

// NewVolumeStore creates a new in-memory volume store.
func NewVolumeStore() *VolumeStore {
	return &VolumeStore{data: make(map[string]*domain.TradeVolume)}
}

var _ storage.VolumeStore = (*VolumeStore)(nil)

// Insert logs one trade's native volume. Inserting the same tx hash twice
// is a no-op.
func (s *VolumeStore) Insert(_ context.Context, v *domain.TradeVolume) error {
	if v == nil || v.OwnerID == "" || v.TxHash == "" {
		return storage.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[v.TxHash]; exists {
		return nil
	}
	volumeCopy := *v
	s.data[v.TxHash] = &volumeCopy
	return nil
}

// SumSince returns an owner's total native volume at or after sinceMs.
func (s *VolumeStore) SumSince(_ context.Context, ownerID string, sinceMs int64) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sum := decimal.Zero
	for _, v := range s.data {
		if v.OwnerID == ownerID && v.TimestampMs >= sinceMs {
			sum = sum.Add(v.NativeVolume)
		}
	}
	return sum, nil
}
