package postgres

import (
	"context"

	"stellar-copy-engine/internal/domain"
	"stellar-copy-engine/internal/storage"
)

// RewardStore is a PostgreSQL implementation of storage.RewardStore.
type RewardStore struct {
	pool *Pool
}

// NewRewardStore creates a new PostgreSQL reward store.
func NewRewardStore(pool *Pool) *RewardStore {
	return &RewardStore{pool: pool}
}

// Compile-time interface check.
var _ storage.RewardStore = (*RewardStore)(nil)

// Insert appends one referral share entry and fills in its assigned ID.
func (s *RewardStore) Insert(ctx context.Context, e *domain.RewardEntry) error {
	if e == nil || e.BeneficiaryID == "" {
		return storage.ErrInvalidInput
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO reward_entries (
			beneficiary_id, source_owner_id, level, amount, tx_hash, status, paid_at, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, e.BeneficiaryID, e.SourceOwnerID, e.Level, e.Amount, e.TxHash, string(e.Status), e.PaidAt, e.CreatedAt)

	return row.Scan(&e.ID)
}

// ListUnpaid retrieves all unpaid entries, oldest first.
func (s *RewardStore) ListUnpaid(ctx context.Context) ([]*domain.RewardEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, beneficiary_id, source_owner_id, level, amount, tx_hash, status, paid_at, created_at
		FROM reward_entries
		WHERE status = 'unpaid'
		ORDER BY created_at, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*domain.RewardEntry
	for rows.Next() {
		var e domain.RewardEntry
		var status string
		err := rows.Scan(&e.ID, &e.BeneficiaryID, &e.SourceOwnerID, &e.Level, &e.Amount, &e.TxHash, &status, &e.PaidAt, &e.CreatedAt)
		if err != nil {
			return nil, err
		}
		e.Status = domain.RewardStatus(status)
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// MarkPaid flips the given entries to paid at the supplied timestamp.
func (s *RewardStore) MarkPaid(ctx context.Context, ids []int64, paidAtMs int64) error {
	if len(ids) == 0 {
		return nil
	}

	_, err := s.pool.Exec(ctx, `
		UPDATE reward_entries
		SET status = 'paid', paid_at = $2
		WHERE id = ANY($1) AND status = 'unpaid'
	`, ids, paidAtMs)

	return err
}
