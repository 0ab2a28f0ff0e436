// Package memory provides in-memory storage implementations used when
// no persistent backend is configured, and in tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"dex-route-engine/internal/domain"
	"dex-route-engine/internal/storage"
)

// RouteOutcomeStore implements storage.RouteOutcomeStore in memory.
type RouteOutcomeStore struct {
	mu       sync.RWMutex
	byID     map[string]*domain.RouteOutcome
	bySig    map[string][]*domain.RouteOutcome
	sigOrder []string
}

// NewRouteOutcomeStore creates an empty in-memory outcome store.
func NewRouteOutcomeStore() *RouteOutcomeStore {
	return &RouteOutcomeStore{
		byID:  make(map[string]*domain.RouteOutcome),
		bySig: make(map[string][]*domain.RouteOutcome),
	}
}

// Compile-time interface check.
var _ storage.RouteOutcomeStore = (*RouteOutcomeStore)(nil)

// Insert adds one outcome. Returns ErrDuplicateKey if route_id exists.
func (s *RouteOutcomeStore) Insert(_ context.Context, o *domain.RouteOutcome) error {
	if o == nil || o.RouteID == "" || o.Signature == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[o.RouteID]; exists {
		return storage.ErrDuplicateKey
	}
	cp := *o
	s.byID[o.RouteID] = &cp
	if _, seen := s.bySig[o.Signature]; !seen {
		s.sigOrder = append(s.sigOrder, o.Signature)
	}
	s.bySig[o.Signature] = append(s.bySig[o.Signature], &cp)
	return nil
}

// GetBySignature retrieves the most recent outcomes for a signature,
// newest first, capped at limit.
func (s *RouteOutcomeStore) GetBySignature(_ context.Context, signature string, limit int) ([]*domain.RouteOutcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.bySig[signature]
	out := make([]*domain.RouteOutcome, len(stored))
	for i, o := range stored {
		cp := *o
		out[i] = &cp
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RecordedAt.After(out[j].RecordedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Signatures lists every signature with at least one recorded outcome.
func (s *RouteOutcomeStore) Signatures(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, len(s.sigOrder))
	copy(out, s.sigOrder)
	return out, nil
}
