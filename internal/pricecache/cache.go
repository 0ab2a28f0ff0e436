// Package pricecache caches aggregated prices with TTL-based,
// self-expiring entries. Staleness, not memory pressure, drives
// eviction: pair cardinality is bounded and entries are small, so no
// LRU is needed.
package pricecache

import (
	"context"
	"sync"
	"time"

	"dex-route-engine/internal/domain"
)

// Cache serves aggregated prices while they are younger than the
// caller's staleness bound. Implementations must be safe for
// concurrent use.
type Cache interface {
	// Get returns the cached aggregate for pairKey if it is younger
	// than maxStale at time now.
	Get(ctx context.Context, pairKey string, now time.Time, maxStale time.Duration) (*domain.AggregatedPrice, bool)
	// Set stores the aggregate and schedules its removal after the
	// cache TTL.
	Set(ctx context.Context, price *domain.AggregatedPrice) error
	// Close releases pending expiry work.
	Close() error
}

// Memory is the default in-process Cache. Every write arms its own
// expiry timer.
type Memory struct {
	ttl time.Duration

	mu      sync.Mutex
	entries map[string]*memoryEntry
	closed  bool
}

type memoryEntry struct {
	price *domain.AggregatedPrice
	timer *time.Timer
}

var _ Cache = (*Memory)(nil)

// NewMemory creates an in-memory cache whose entries remove themselves
// after ttl.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		ttl:     ttl,
		entries: make(map[string]*memoryEntry),
	}
}

// Get implements Cache.
func (m *Memory) Get(_ context.Context, pairKey string, now time.Time, maxStale time.Duration) (*domain.AggregatedPrice, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[pairKey]
	if !ok {
		return nil, false
	}
	if now.Sub(entry.price.UpdatedAt) >= maxStale {
		// Present but too old for this caller: treated as a miss, the
		// expiry timer will collect it.
		return nil, false
	}
	return entry.price, true
}

// Set implements Cache. Overwriting an entry disarms the previous
// expiry timer.
func (m *Memory) Set(_ context.Context, price *domain.AggregatedPrice) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	if prev, ok := m.entries[price.PairKey]; ok {
		prev.timer.Stop()
	}

	key := price.PairKey
	m.entries[key] = &memoryEntry{
		price: price,
		timer: time.AfterFunc(m.ttl, func() { m.expire(key) }),
	}
	return nil
}

// Close stops all pending expiry timers.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	for key, entry := range m.entries {
		entry.timer.Stop()
		delete(m.entries, key)
	}
	return nil
}

func (m *Memory) expire(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
}

// Len returns the number of live entries.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
