package clickhouse

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"stellar-copy-engine/internal/domain"
	"stellar-copy-engine/internal/storage"
)

// VolumeStore is a ClickHouse implementation of storage.VolumeStore: an
// append-only native-volume log queried for trailing-window sums.
type VolumeStore struct {
	conn *Conn
}

// NewVolumeStore creates a new ClickHouse volume store.
func NewVolumeStore(conn *Conn) *VolumeStore {
	return &VolumeStore{conn: conn}
}

// Compile-time interface check.
var _ storage.VolumeStore = (*VolumeStore)(nil)

// Insert logs one trade's native volume. MergeTree does not enforce
// uniqueness, so the tx hash is checked explicitly; a replay is a no-op.
func (s *VolumeStore) Insert(ctx context.Context, v *domain.TradeVolume) error {
	if v == nil || v.OwnerID == "" || v.TxHash == "" {
		return storage.ErrInvalidInput
	}

	exists, err := s.exists(ctx, v.TxHash)
	if err != nil {
		return fmt.Errorf("check tx hash: %w", err)
	}
	if exists {
		return nil
	}

	err = s.conn.Exec(ctx, `
		INSERT INTO trade_volumes (owner_id, tx_hash, native_volume, timestamp_ms)
		VALUES (?, ?, ?, ?)
	`, v.OwnerID, v.TxHash, v.NativeVolume, uint64(v.TimestampMs))
	if err != nil {
		return fmt.Errorf("insert trade volume: %w", err)
	}
	return nil
}

// SumSince returns an owner's total native volume at or after sinceMs.
func (s *VolumeStore) SumSince(ctx context.Context, ownerID string, sinceMs int64) (decimal.Decimal, error) {
	if ownerID == "" {
		return decimal.Zero, storage.ErrInvalidInput
	}

	row := s.conn.QueryRow(ctx, `
		SELECT sum(native_volume)
		FROM trade_volumes
		WHERE owner_id = ? AND timestamp_ms >= ?
	`, ownerID, uint64(sinceMs))

	var sum decimal.Decimal
	if err := row.Scan(&sum); err != nil {
		return decimal.Zero, fmt.Errorf("sum trade volume: %w", err)
	}
	return sum, nil
}

func (s *VolumeStore) exists(ctx context.Context, txHash string) (bool, error) {
	row := s.conn.QueryRow(ctx, `
		SELECT count() FROM trade_volumes WHERE tx_hash = ?
	`, txHash)

	var count uint64
	if err := row.Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}
