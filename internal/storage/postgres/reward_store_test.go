package postgres

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stellar-copy-engine/internal/domain"
)

func testReward(beneficiary string, amount string) *domain.RewardEntry {
	return &domain.RewardEntry{
		BeneficiaryID: beneficiary,
		SourceOwnerID: "trader",
		Level:         1,
		Amount:        decimal.RequireFromString(amount),
		TxHash:        "txhash",
		Status:        domain.RewardUnpaid,
		CreatedAt:     1750000000000,
	}
}

func TestRewardStore_InsertAssignsID(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewRewardStore(pool)

	first := testReward("ben-1", "2.5")
	second := testReward("ben-2", "1.25")
	require.NoError(t, store.Insert(ctx, first))
	require.NoError(t, store.Insert(ctx, second))

	assert.NotZero(t, first.ID)
	assert.Greater(t, second.ID, first.ID)
}

func TestRewardStore_ListUnpaidAndMarkPaid(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewRewardStore(pool)

	a := testReward("ben-1", "2.5")
	b := testReward("ben-2", "1.25")
	require.NoError(t, store.Insert(ctx, a))
	require.NoError(t, store.Insert(ctx, b))

	unpaid, err := store.ListUnpaid(ctx)
	require.NoError(t, err)
	require.Len(t, unpaid, 2)

	require.NoError(t, store.MarkPaid(ctx, []int64{a.ID}, 1750000200000))

	unpaid, err = store.ListUnpaid(ctx)
	require.NoError(t, err)
	require.Len(t, unpaid, 1)
	assert.Equal(t, b.ID, unpaid[0].ID)
	assert.True(t, unpaid[0].Amount.Equal(decimal.RequireFromString("1.25")))
}

func TestRewardStore_MarkPaidEmptyIsNoop(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	require.NoError(t, NewRewardStore(pool).MarkPaid(context.Background(), nil, 1750000200000))
}
