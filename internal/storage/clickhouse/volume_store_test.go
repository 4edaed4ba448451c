package clickhouse

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stellar-copy-engine/internal/domain"
	"stellar-copy-engine/internal/storage"
)

func volume(owner, txHash, amount string, tsMs int64) *domain.TradeVolume {
	return &domain.TradeVolume{
		OwnerID:      owner,
		TxHash:       txHash,
		NativeVolume: decimal.RequireFromString(amount),
		TimestampMs:  tsMs,
	}
}

func TestVolumeStore_InsertAndSum(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewVolumeStore(conn)

	require.NoError(t, store.Insert(ctx, volume("owner-1", "tx1", "100.5", 1000)))
	require.NoError(t, store.Insert(ctx, volume("owner-1", "tx2", "49.5", 2000)))
	require.NoError(t, store.Insert(ctx, volume("owner-2", "tx3", "7", 1500)))

	sum, err := store.SumSince(ctx, "owner-1", 0)
	require.NoError(t, err)
	assert.True(t, sum.Equal(decimal.RequireFromString("150")), "sum = %s", sum)
}

func TestVolumeStore_SumSinceWindow(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewVolumeStore(conn)

	require.NoError(t, store.Insert(ctx, volume("owner-1", "old", "100", 1000)))
	require.NoError(t, store.Insert(ctx, volume("owner-1", "new", "50", 5000)))

	sum, err := store.SumSince(ctx, "owner-1", 2000)
	require.NoError(t, err)
	assert.True(t, sum.Equal(decimal.RequireFromString("50")), "sum = %s", sum)
}

func TestVolumeStore_InsertIdempotentPerTxHash(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewVolumeStore(conn)

	for i := 0; i < 3; i++ {
		require.NoError(t, store.Insert(ctx, volume("owner-1", "tx1", "100", 1000)))
	}

	sum, err := store.SumSince(ctx, "owner-1", 0)
	require.NoError(t, err)
	assert.True(t, sum.Equal(decimal.RequireFromString("100")), "sum = %s", sum)
}

func TestVolumeStore_InvalidInput(t *testing.T) {
	store := NewVolumeStore(nil)

	err := store.Insert(context.Background(), &domain.TradeVolume{OwnerID: "", TxHash: "tx"})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	_, err = store.SumSince(context.Background(), "", 0)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}
