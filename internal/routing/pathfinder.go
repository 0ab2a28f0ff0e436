package routing

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"dex-route-engine/internal/amm"
	"dex-route-engine/internal/domain"
	"dex-route-engine/internal/routeid"
)

// Per-hop cost assumptions used when a venue reports nothing better.
const (
	hopGasEstimate = int64(150_000)
	hopExecTime    = 2 * time.Second
)

// hop is one pool traversal of a candidate path.
type hop struct {
	pool     *domain.LiquidityPool
	tokenIn  domain.Token
	tokenOut domain.Token
}

// PathFinder searches the liquidity graph breadth-first for paths from
// a start token to a target token, bounded by maxHops. Intermediate
// tokens can optionally be restricted to a stablecoin set, which keeps
// the fan-out small and favors deep, economically sensible corridors.
type PathFinder struct {
	graph      *Graph
	maxHops    int
	stableOnly bool
	stables    map[string]bool
}

// NewPathFinder creates a path finder over the given graph.
func NewPathFinder(graph *Graph, maxHops int, stableOnly bool, stablecoins []string) *PathFinder {
	stables := make(map[string]bool, len(stablecoins))
	for _, sym := range stablecoins {
		stables[strings.ToUpper(sym)] = true
	}
	if maxHops <= 0 {
		maxHops = 3
	}
	return &PathFinder{
		graph:      graph,
		maxHops:    maxHops,
		stableOnly: stableOnly,
		stables:    stables,
	}
}

// FindPaths returns every loop-free path from tokenIn to tokenOut
// within maxHops, each realized as a candidate route by replaying the
// constant-product formula along its hops. Paths whose replay fails
// (drained pool, wrong direction) are silently dropped.
func (f *PathFinder) FindPaths(tokenIn, tokenOut domain.Token, amountIn decimal.Decimal) []*domain.OptimizedRoute {
	if tokenIn.Equal(tokenOut) || !amountIn.IsPositive() {
		return nil
	}

	type state struct {
		token domain.Token
		hops  []hop
	}

	var routes []*domain.OptimizedRoute
	queue := []state{{token: tokenIn}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if len(cur.hops) == f.maxHops {
			continue
		}

		for _, pool := range f.graph.PoolsFor(cur.token) {
			if pathUsesPool(cur.hops, pool.Address) {
				continue
			}
			next, ok := pool.Other(cur.token)
			if !ok {
				continue
			}
			if next.Equal(tokenIn) || pathVisits(cur.hops, next) {
				continue
			}

			extended := make([]hop, len(cur.hops), len(cur.hops)+1)
			copy(extended, cur.hops)
			extended = append(extended, hop{pool: pool, tokenIn: cur.token, tokenOut: next})

			if next.Equal(tokenOut) {
				if route, err := buildRoute(extended, amountIn); err == nil {
					routes = append(routes, route)
				}
				continue
			}
			if f.stableOnly && !f.stables[strings.ToUpper(next.Symbol)] {
				continue
			}
			queue = append(queue, state{token: next, hops: extended})
		}
	}
	return routes
}

func pathUsesPool(hops []hop, address string) bool {
	for _, h := range hops {
		if h.pool.Address == address {
			return true
		}
	}
	return false
}

func pathVisits(hops []hop, t domain.Token) bool {
	for _, h := range hops {
		if h.tokenOut.Equal(t) {
			return true
		}
	}
	return false
}

// buildRoute replays the swap along every hop of the path, threading
// each hop's output into the next hop's input, and accumulates gas,
// fee and price impact.
func buildRoute(hops []hop, amountIn decimal.Decimal) (*domain.OptimizedRoute, error) {
	amount := amountIn
	steps := make([]domain.RouteStep, 0, len(hops))

	var gas int64
	var feePct, impactPct float64
	for _, h := range hops {
		res, err := amm.Quote(h.pool, h.tokenIn, amount)
		if err != nil {
			return nil, err
		}
		steps = append(steps, domain.RouteStep{
			Source:      h.pool.Source,
			TokenIn:     h.tokenIn,
			TokenOut:    h.tokenOut,
			AmountIn:    amount,
			AmountOut:   res.AmountOut,
			PoolAddress: h.pool.Address,
			FeeRate:     h.pool.FeeRate,
			PriceImpact: res.PriceImpactPct,
		})
		amount = res.AmountOut
		gas += hopGasEstimate
		feePct += h.pool.FeeRate * 100
		impactPct += res.PriceImpactPct
	}

	kind := domain.RouteMultiHop
	if len(steps) == 1 {
		kind = domain.RouteDirect
	}
	route := &domain.OptimizedRoute{
		ID:             uuid.NewString(),
		Kind:           kind,
		Steps:          steps,
		AmountIn:       amountIn,
		AmountOut:      amount,
		TotalGas:       gas,
		TotalFeePct:    feePct,
		TotalImpactPct: impactPct,
		EstimatedTime:  time.Duration(len(steps)) * hopExecTime,
	}
	route.Signature = routeid.RouteSignature(route.Sources())
	deriveQuality(route)
	return route, nil
}
