package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"dex-route-engine/internal/domain"
	"dex-route-engine/internal/storage"
)

// PriceSnapshotStore implements storage.PriceSnapshotStore using ClickHouse.
type PriceSnapshotStore struct {
	conn *Conn
}

// NewPriceSnapshotStore creates a new PriceSnapshotStore.
func NewPriceSnapshotStore(conn *Conn) *PriceSnapshotStore {
	return &PriceSnapshotStore{conn: conn}
}

// Compile-time interface check.
var _ storage.PriceSnapshotStore = (*PriceSnapshotStore)(nil)

// InsertBulk appends snapshots in one batch. MergeTree does not
// enforce uniqueness, so only intra-batch duplicates of
// (pair_key, timestamp) are rejected here.
func (s *PriceSnapshotStore) InsertBulk(ctx context.Context, snaps []*domain.PriceSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}

	type key struct {
		pair string
		ts   int64
	}
	seen := make(map[key]struct{}, len(snaps))
	for _, snap := range snaps {
		if snap == nil || snap.PairKey == "" {
			return storage.ErrInvalidInput
		}
		k := key{snap.PairKey, snap.Timestamp.UnixMilli()}
		if _, dup := seen[k]; dup {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO price_snapshots (
			pair_key, best_source, price, spread_pct, quote_count, opportunities, timestamp_ms
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, snap := range snaps {
		err = batch.Append(
			snap.PairKey,
			snap.BestSource,
			snap.Price,
			snap.SpreadPct,
			uint32(snap.QuoteCount),
			uint32(snap.Opportunities),
			uint64(snap.Timestamp.UnixMilli()),
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByPair retrieves snapshots for one pair within [start, end],
// ordered by timestamp ascending.
func (s *PriceSnapshotStore) GetByPair(ctx context.Context, pairKey string, start, end time.Time) ([]*domain.PriceSnapshot, error) {
	query := `
		SELECT pair_key, best_source, price, spread_pct, quote_count, opportunities, timestamp_ms
		FROM price_snapshots
		WHERE pair_key = ? AND timestamp_ms BETWEEN ? AND ?
		ORDER BY timestamp_ms ASC
	`
	rows, err := s.conn.Query(ctx, query, pairKey, uint64(start.UnixMilli()), uint64(end.UnixMilli()))
	if err != nil {
		return nil, fmt.Errorf("query price snapshots: %w", err)
	}
	defer rows.Close()

	var out []*domain.PriceSnapshot
	for rows.Next() {
		var (
			snap        domain.PriceSnapshot
			price       decimal.Decimal
			quotes      uint32
			opps        uint32
			timestampMs uint64
		)
		if err := rows.Scan(&snap.PairKey, &snap.BestSource, &price, &snap.SpreadPct, &quotes, &opps, &timestampMs); err != nil {
			return nil, fmt.Errorf("scan price snapshot: %w", err)
		}
		snap.Price = price
		snap.QuoteCount = int(quotes)
		snap.Opportunities = int(opps)
		snap.Timestamp = time.UnixMilli(int64(timestampMs))
		out = append(out, &snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate price snapshots: %w", err)
	}
	return out, nil
}
