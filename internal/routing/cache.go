package routing

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"dex-route-engine/internal/domain"
)

// cacheKey identifies one optimization request: pair, amount and
// objective all change the answer.
func cacheKey(tokenIn, tokenOut domain.Token, amountIn decimal.Decimal, objective domain.Objective) string {
	return fmt.Sprintf("%s|%s|%s", domain.PairKey(tokenIn, tokenOut), amountIn.String(), objective)
}

type cacheEntry struct {
	routes []*domain.OptimizedRoute
	timer  *time.Timer
}

// RouteCache is a short-TTL memo for ranked route lists. Entries
// expire themselves; an overwrite disarms the previous entry's timer.
type RouteCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]*cacheEntry
}

// NewRouteCache creates a route cache with the given TTL.
func NewRouteCache(ttl time.Duration) *RouteCache {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &RouteCache{
		ttl:     ttl,
		entries: make(map[string]*cacheEntry),
	}
}

// Get returns the cached ranked routes for a key.
func (c *RouteCache) Get(key string) ([]*domain.OptimizedRoute, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	return entry.routes, true
}

// Set stores ranked routes under a key for one TTL.
func (c *RouteCache) Set(key string, routes []*domain.OptimizedRoute) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.entries[key]; ok {
		old.timer.Stop()
	}
	entry := &cacheEntry{routes: routes}
	entry.timer = time.AfterFunc(c.ttl, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.entries[key] == entry {
			delete(c.entries, key)
		}
	})
	c.entries[key] = entry
}

// Len returns the number of live entries.
func (c *RouteCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Close disarms all expiry timers.
func (c *RouteCache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, entry := range c.entries {
		entry.timer.Stop()
		delete(c.entries, key)
	}
}
