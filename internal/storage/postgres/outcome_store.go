package postgres

import (
	"context"
	"fmt"

	"dex-route-engine/internal/domain"
	"dex-route-engine/internal/storage"
)

// RouteOutcomeStore implements storage.RouteOutcomeStore using PostgreSQL.
type RouteOutcomeStore struct {
	pool *Pool
}

// NewRouteOutcomeStore creates a new RouteOutcomeStore.
func NewRouteOutcomeStore(pool *Pool) *RouteOutcomeStore {
	return &RouteOutcomeStore{pool: pool}
}

// Compile-time interface check.
var _ storage.RouteOutcomeStore = (*RouteOutcomeStore)(nil)

// Insert adds one outcome. Returns ErrDuplicateKey if route_id exists.
func (s *RouteOutcomeStore) Insert(ctx context.Context, o *domain.RouteOutcome) error {
	if o == nil || o.RouteID == "" || o.Signature == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO route_outcomes (route_id, signature, success, recorded_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := s.pool.Exec(ctx, query, o.RouteID, o.Signature, o.Success, o.RecordedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert route outcome: %w", err)
	}
	return nil
}

// GetBySignature retrieves the most recent outcomes for a signature,
// newest first, capped at limit.
func (s *RouteOutcomeStore) GetBySignature(ctx context.Context, signature string, limit int) ([]*domain.RouteOutcome, error) {
	query := `
		SELECT route_id, signature, success, recorded_at
		FROM route_outcomes
		WHERE signature = $1
		ORDER BY recorded_at DESC, route_id DESC
	`
	args := []any{signature}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query route outcomes: %w", err)
	}
	defer rows.Close()

	var out []*domain.RouteOutcome
	for rows.Next() {
		var o domain.RouteOutcome
		if err := rows.Scan(&o.RouteID, &o.Signature, &o.Success, &o.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan route outcome: %w", err)
		}
		out = append(out, &o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate route outcomes: %w", err)
	}
	return out, nil
}

// Signatures lists every signature with at least one recorded outcome.
func (s *RouteOutcomeStore) Signatures(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT signature FROM route_outcomes ORDER BY signature`)
	if err != nil {
		return nil, fmt.Errorf("query signatures: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var sig string
		if err := rows.Scan(&sig); err != nil {
			return nil, fmt.Errorf("scan signature: %w", err)
		}
		out = append(out, sig)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate signatures: %w", err)
	}
	return out, nil
}
