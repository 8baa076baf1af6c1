package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tokenpulse/internal/domain"
	"tokenpulse/internal/store"
	"tokenpulse/internal/store/postgres"
)

func snap(mint string, priceUsd float64, at time.Time) domain.PriceSnapshot {
	return domain.PriceSnapshot{
		Mint:        mint,
		PriceUsd:    decimal.NewFromFloat(priceUsd),
		PriceNative: decimal.NewFromFloat(priceUsd / 150),
		MarketCap:   decimal.NewFromFloat(priceUsd * 1_000_000),
		TotalSupply: decimal.NewFromInt(1_000_000),
		AsOf:        at,
	}
}

func TestStore_WriteSnapshotThenGetLatest(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	s := postgres.NewStore(pool)
	ctx := context.Background()

	require.NoError(t, s.WriteSnapshot(ctx, snap("Mint1", 1.23, time.Now())))

	got, err := s.GetLatest(ctx, "Mint1")
	require.NoError(t, err)
	assert.True(t, got.PriceUsd.Equal(decimal.NewFromFloat(1.23)))
}

func TestStore_UpsertReplacesNotBlends(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	s := postgres.NewStore(pool)
	ctx := context.Background()

	require.NoError(t, s.WriteSnapshot(ctx, snap("Mint2", 1.0, time.Now())))
	require.NoError(t, s.WriteSnapshot(ctx, snap("Mint2", 2.0, time.Now())))

	got, err := s.GetLatest(ctx, "Mint2")
	require.NoError(t, err)
	assert.True(t, got.PriceUsd.Equal(decimal.NewFromFloat(2.0)))
}

func TestStore_GetLatestNotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	s := postgres.NewStore(pool)
	_, err := s.GetLatest(context.Background(), "Nonexistent")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStore_HistoryInRangeOrderedAscendingAndCapped(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	s := postgres.NewStore(pool)
	ctx := context.Background()

	base := time.Now().Add(-10 * time.Minute)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.WriteSnapshot(ctx, snap("Mint3", float64(i), base.Add(time.Duration(i)*time.Minute))))
	}

	entries, err := s.HistoryInRange(ctx, "Mint3", base.Add(-time.Minute).UnixMilli(), time.Now().UnixMilli(), 3)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for i := 1; i < len(entries); i++ {
		assert.True(t, entries[i].At.After(entries[i-1].At) || entries[i].At.Equal(entries[i-1].At))
	}
}

func TestStore_PurgeMintDeletesLatestAndHistory(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	s := postgres.NewStore(pool)
	ctx := context.Background()

	require.NoError(t, s.WriteSnapshot(ctx, snap("Mint4", 1.0, time.Now())))
	require.NoError(t, s.PurgeMint(ctx, "Mint4"))

	_, err := s.GetLatest(ctx, "Mint4")
	assert.ErrorIs(t, err, store.ErrNotFound)

	entries, err := s.HistoryInRange(ctx, "Mint4", 0, time.Now().UnixMilli(), 1000)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStore_ListLatestPagination(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	s := postgres.NewStore(pool)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, s.WriteSnapshot(ctx, snap("MintList"+string(rune('A'+i)), 1.0, time.Now())))
	}

	page, total, err := s.ListLatest(ctx, 0, 2)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, total, 3)
	assert.Len(t, page, 2)
}
