package storage

import (
	"context"
	"time"

	"dex-route-engine/internal/domain"
)

// RouteOutcomeStore persists route execution results so the learner
// can be warm-started across restarts.
type RouteOutcomeStore interface {
	// Insert adds one outcome. Returns ErrDuplicateKey if route_id exists.
	Insert(ctx context.Context, o *domain.RouteOutcome) error

	// GetBySignature retrieves the most recent outcomes for a route
	// signature, newest first, capped at limit.
	GetBySignature(ctx context.Context, signature string, limit int) ([]*domain.RouteOutcome, error)

	// Signatures lists every signature with at least one recorded outcome.
	Signatures(ctx context.Context) ([]string, error)
}

// PriceSnapshotStore persists flattened aggregation results as a
// timeseries.
type PriceSnapshotStore interface {
	// InsertBulk appends snapshots. Intra-batch duplicates of
	// (pair_key, timestamp) fail the whole batch with ErrDuplicateKey.
	InsertBulk(ctx context.Context, snaps []*domain.PriceSnapshot) error

	// GetByPair retrieves snapshots for one pair within [start, end],
	// ordered by timestamp ascending.
	GetByPair(ctx context.Context, pairKey string, start, end time.Time) ([]*domain.PriceSnapshot, error)
}
