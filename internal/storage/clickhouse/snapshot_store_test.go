package clickhouse

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dex-route-engine/internal/domain"
	"dex-route-engine/internal/storage"
)

func TestPriceSnapshotStoreRoundTrip(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewPriceSnapshotStore(conn)
	base := time.Now().UTC().Truncate(time.Millisecond)

	snaps := []*domain.PriceSnapshot{
		{PairKey: "1:a:b", BestSource: "dexA", Price: decimal.NewFromFloat(100.5), SpreadPct: 1.2, QuoteCount: 3, Opportunities: 1, Timestamp: base},
		{PairKey: "1:a:b", BestSource: "dexB", Price: decimal.NewFromFloat(101.0), SpreadPct: 0.8, QuoteCount: 2, Timestamp: base.Add(time.Second)},
		{PairKey: "1:x:y", BestSource: "dexA", Price: decimal.NewFromFloat(5), QuoteCount: 1, Timestamp: base},
	}
	require.NoError(t, store.InsertBulk(ctx, snaps))

	got, err := store.GetByPair(ctx, "1:a:b", base.Add(-time.Second), base.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "dexA", got[0].BestSource)
	assert.True(t, got[0].Price.Equal(decimal.NewFromFloat(100.5)))
	assert.Equal(t, 3, got[0].QuoteCount)
	assert.Equal(t, 1, got[0].Opportunities)
	assert.True(t, got[0].Timestamp.Before(got[1].Timestamp), "ascending order")
}

func TestPriceSnapshotStoreRejectsIntraBatchDuplicates(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewPriceSnapshotStore(conn)
	ts := time.Now()

	err := store.InsertBulk(ctx, []*domain.PriceSnapshot{
		{PairKey: "1:a:b", BestSource: "dexA", Price: decimal.NewFromInt(100), Timestamp: ts},
		{PairKey: "1:a:b", BestSource: "dexB", Price: decimal.NewFromInt(101), Timestamp: ts},
	})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	assert.NoError(t, store.InsertBulk(ctx, nil), "empty batch is a no-op")
}
