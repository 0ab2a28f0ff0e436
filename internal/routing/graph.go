// Package routing discovers and ranks swap routes over a graph of
// liquidity pool snapshots: direct and multi-hop paths, triangular
// cycles, large-order splitting and outcome-based re-ranking.
package routing

import (
	"sync"

	"dex-route-engine/internal/domain"
)

// Graph indexes liquidity pool snapshots by the tokens they touch.
// Snapshots are replaced wholesale by address; a pool is treated as
// immutable once inserted.
type Graph struct {
	mu      sync.RWMutex
	byToken map[string][]*domain.LiquidityPool
	byAddr  map[string]*domain.LiquidityPool
}

// NewGraph creates an empty liquidity graph.
func NewGraph() *Graph {
	return &Graph{
		byToken: make(map[string][]*domain.LiquidityPool),
		byAddr:  make(map[string]*domain.LiquidityPool),
	}
}

// AddPool inserts a pool snapshot, replacing any previous snapshot at
// the same address.
func (g *Graph) AddPool(pool *domain.LiquidityPool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if old, ok := g.byAddr[pool.Address]; ok {
		g.unlink(old)
	}
	g.byAddr[pool.Address] = pool
	g.byToken[pool.Token0.Key()] = append(g.byToken[pool.Token0.Key()], pool)
	g.byToken[pool.Token1.Key()] = append(g.byToken[pool.Token1.Key()], pool)
}

// RemovePool drops a pool snapshot by address.
func (g *Graph) RemovePool(address string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if old, ok := g.byAddr[address]; ok {
		g.unlink(old)
		delete(g.byAddr, address)
	}
}

// unlink must be called with the write lock held.
func (g *Graph) unlink(pool *domain.LiquidityPool) {
	for _, key := range []string{pool.Token0.Key(), pool.Token1.Key()} {
		pools := g.byToken[key]
		for i, p := range pools {
			if p.Address == pool.Address {
				g.byToken[key] = append(pools[:i], pools[i+1:]...)
				break
			}
		}
		if len(g.byToken[key]) == 0 {
			delete(g.byToken, key)
		}
	}
}

// PoolsFor returns the pools touching a token.
func (g *Graph) PoolsFor(t domain.Token) []*domain.LiquidityPool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	pools := g.byToken[t.Key()]
	out := make([]*domain.LiquidityPool, len(pools))
	copy(out, pools)
	return out
}

// Pool returns a pool snapshot by address.
func (g *Graph) Pool(address string) (*domain.LiquidityPool, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	p, ok := g.byAddr[address]
	return p, ok
}

// Len returns the number of pools in the graph.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.byAddr)
}
