package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"dex-route-engine/internal/domain"
	"dex-route-engine/internal/storage"
)

// PriceSnapshotStore implements storage.PriceSnapshotStore in memory.
type PriceSnapshotStore struct {
	mu     sync.RWMutex
	byPair map[string][]*domain.PriceSnapshot
}

// NewPriceSnapshotStore creates an empty in-memory snapshot store.
func NewPriceSnapshotStore() *PriceSnapshotStore {
	return &PriceSnapshotStore{byPair: make(map[string][]*domain.PriceSnapshot)}
}

// Compile-time interface check.
var _ storage.PriceSnapshotStore = (*PriceSnapshotStore)(nil)

// InsertBulk appends snapshots. Intra-batch or stored duplicates of
// (pair_key, timestamp) fail the whole batch.
func (s *PriceSnapshotStore) InsertBulk(_ context.Context, snaps []*domain.PriceSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}
	for _, snap := range snaps {
		if snap == nil || snap.PairKey == "" {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	type key struct {
		pair string
		ts   int64
	}
	seen := make(map[key]struct{}, len(snaps))
	for _, snap := range snaps {
		k := key{snap.PairKey, snap.Timestamp.UnixNano()}
		if _, dup := seen[k]; dup {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
		for _, stored := range s.byPair[snap.PairKey] {
			if stored.Timestamp.Equal(snap.Timestamp) {
				return storage.ErrDuplicateKey
			}
		}
	}

	for _, snap := range snaps {
		cp := *snap
		s.byPair[snap.PairKey] = append(s.byPair[snap.PairKey], &cp)
	}
	return nil
}

// GetByPair retrieves snapshots for one pair within [start, end],
// ordered by timestamp ascending.
func (s *PriceSnapshotStore) GetByPair(_ context.Context, pairKey string, start, end time.Time) ([]*domain.PriceSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.PriceSnapshot
	for _, snap := range s.byPair[pairKey] {
		if snap.Timestamp.Before(start) || snap.Timestamp.After(end) {
			continue
		}
		cp := *snap
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}
