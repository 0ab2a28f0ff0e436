package memory

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

func snap(pair string, ts time.Time, price float64) *domain.PriceSnapshot {
	return &domain.PriceSnapshot{
		PairKey:    pair,
		BestSource: "dexA",
		Price:      decimal.NewFromFloat(price),
		QuoteCount: 3,
		Timestamp:  ts,
	}
}

func TestPriceSnapshotStoreInsertAndRange(t *testing.T) {
	ctx := context.Background()
	s := NewPriceSnapshotStore()

	base := time.Now().Truncate(time.Second)
	require.NoError(t, s.InsertBulk(ctx, []*domain.PriceSnapshot{
		snap("1:a:b", base.Add(2*time.Second), 102),
		snap("1:a:b", base, 100),
		snap("1:a:b", base.Add(10*time.Second), 110),
		snap("1:x:y", base, 5),
	}))

	got, err := s.GetByPair(ctx, "1:a:b", base, base.Add(5*time.Second))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].Timestamp.Before(got[1].Timestamp), "ascending order")
	assert.True(t, got[0].Price.Equal(decimal.NewFromInt(100)))
}

func TestPriceSnapshotStoreRejectsDuplicates(t *testing.T) {
	ctx := context.Background()
	s := NewPriceSnapshotStore()
	ts := time.Now()

	err := s.InsertBulk(ctx, []*domain.PriceSnapshot{
		snap("1:a:b", ts, 100),
		snap("1:a:b", ts, 101),
	})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey, "intra-batch duplicate")

	require.NoError(t, s.InsertBulk(ctx, []*domain.PriceSnapshot{snap("1:a:b", ts, 100)}))
	err = s.InsertBulk(ctx, []*domain.PriceSnapshot{snap("1:a:b", ts, 102)})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey, "duplicate against stored rows")
}

func TestPriceSnapshotStoreEmptyBatchIsNoop(t *testing.T) {
	s := NewPriceSnapshotStore()
	assert.NoError(t, s.InsertBulk(context.Background(), nil))
}
