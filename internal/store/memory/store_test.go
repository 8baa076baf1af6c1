package memory

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tokenpulse/internal/domain"
	"tokenpulse/internal/store"
)

func TestStore_WriteSnapshotThenGetLatest(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	snap := domain.PriceSnapshot{
		Mint:        "Mint1",
		PriceUsd:    decimal.NewFromFloat(1.5),
		PriceNative: decimal.NewFromFloat(0.01),
		MarketCap:   decimal.NewFromFloat(1_500_000),
		TotalSupply: decimal.NewFromInt(1_000_000),
		AsOf:        time.Now(),
	}
	require.NoError(t, s.WriteSnapshot(ctx, snap))

	got, err := s.GetLatest(ctx, "Mint1")
	require.NoError(t, err)
	assert.True(t, got.PriceUsd.Equal(snap.PriceUsd))

	history, err := s.HistoryInRange(ctx, "Mint1", 0, time.Now().UnixMilli()+1000, 10)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestStore_GetLatestNotFound(t *testing.T) {
	s := NewStore()
	_, err := s.GetLatest(context.Background(), "Nonexistent")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStore_HistoryInRangeOrderedAscending(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.AppendHistory(ctx, domain.PriceSnapshot{
			Mint:     "Mint2",
			PriceUsd: decimal.NewFromInt(int64(i)),
			AsOf:     base.Add(time.Duration(i) * time.Minute),
		}))
	}

	entries, err := s.HistoryInRange(ctx, "Mint2", base.UnixMilli(), time.Now().UnixMilli(), 3)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for i := 1; i < len(entries); i++ {
		assert.True(t, entries[i].At.After(entries[i-1].At))
	}
}

func TestStore_PurgeMintDeletesLatestAndHistory(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	require.NoError(t, s.WriteSnapshot(ctx, domain.PriceSnapshot{Mint: "Mint3", PriceUsd: decimal.NewFromInt(1), AsOf: time.Now()}))
	require.NoError(t, s.PurgeMint(ctx, "Mint3"))

	_, err := s.GetLatest(ctx, "Mint3")
	assert.ErrorIs(t, err, store.ErrNotFound)

	entries, err := s.HistoryInRange(ctx, "Mint3", 0, time.Now().UnixMilli(), 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStore_ListLatestPaginationOrderedDescending(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	base := time.Now()

	for i := 0; i < 3; i++ {
		require.NoError(t, s.UpsertLatest(ctx, domain.PriceSnapshot{
			Mint:     string(rune('A' + i)),
			PriceUsd: decimal.NewFromInt(int64(i)),
			AsOf:     base.Add(time.Duration(i) * time.Second),
		}))
	}

	page, total, err := s.ListLatest(ctx, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, page, 2)
	assert.True(t, page[0].AsOf.After(page[1].AsOf))
}
