package routing

import (
	"github.com/shopspring/decimal"

	"dex-route-engine/internal/domain"
)

// TriangularBuilder searches the liquidity graph for profitable
// base→intermediate→final→base cycles. Used when a request asks to
// route a token back into itself.
type TriangularBuilder struct {
	graph         *Graph
	minProfitPct  float64
	lowRiskTVL    decimal.Decimal
	mediumRiskTVL decimal.Decimal
}

// NewTriangularBuilder creates a cycle builder. Risk is tiered by the
// average TVL across the three pools: low above lowRiskTVL, medium
// above mediumRiskTVL, high otherwise.
func NewTriangularBuilder(graph *Graph, minProfitPct, lowRiskTVL, mediumRiskTVL float64) *TriangularBuilder {
	return &TriangularBuilder{
		graph:         graph,
		minProfitPct:  minProfitPct,
		lowRiskTVL:    decimal.NewFromFloat(lowRiskTVL),
		mediumRiskTVL: decimal.NewFromFloat(mediumRiskTVL),
	}
}

// Build enumerates three-pool cycles starting and ending at base and
// returns those whose replayed net output clears the minimum profit
// margin. Cycles reusing a pool are skipped.
func (b *TriangularBuilder) Build(base domain.Token, amountIn decimal.Decimal) []*domain.OptimizedRoute {
	if !amountIn.IsPositive() {
		return nil
	}

	var routes []*domain.OptimizedRoute
	for _, p1 := range b.graph.PoolsFor(base) {
		mid, ok := p1.Other(base)
		if !ok || mid.Equal(base) {
			continue
		}
		for _, p2 := range b.graph.PoolsFor(mid) {
			if p2.Address == p1.Address {
				continue
			}
			final, ok := p2.Other(mid)
			if !ok || final.Equal(base) || final.Equal(mid) {
				continue
			}
			for _, p3 := range b.graph.PoolsFor(final) {
				if p3.Address == p1.Address || p3.Address == p2.Address {
					continue
				}
				if !p3.HasToken(base) {
					continue
				}

				cycle := []hop{
					{pool: p1, tokenIn: base, tokenOut: mid},
					{pool: p2, tokenIn: mid, tokenOut: final},
					{pool: p3, tokenIn: final, tokenOut: base},
				}
				route, err := buildCycle(cycle, amountIn)
				if err != nil {
					continue
				}

				profit := route.AmountOut.Sub(amountIn).
					Div(amountIn).
					Mul(decimal.NewFromInt(100))
				profitPct, _ := profit.Float64()
				if profitPct < b.minProfitPct {
					continue
				}
				route.RiskScore = b.riskTier(p1, p2, p3)
				routes = append(routes, route)
			}
		}
	}
	return routes
}

// buildCycle replays the three swaps and retags the route.
func buildCycle(cycle []hop, amountIn decimal.Decimal) (*domain.OptimizedRoute, error) {
	route, err := buildRoute(cycle, amountIn)
	if err != nil {
		return nil, err
	}
	route.Kind = domain.RouteArbitrage
	return route, nil
}

func (b *TriangularBuilder) riskTier(pools ...*domain.LiquidityPool) float64 {
	total := decimal.Zero
	for _, p := range pools {
		total = total.Add(p.TVL)
	}
	avg := total.Div(decimal.NewFromInt(int64(len(pools))))

	switch {
	case avg.GreaterThanOrEqual(b.lowRiskTVL):
		return 20
	case avg.GreaterThanOrEqual(b.mediumRiskTVL):
		return 50
	default:
		return 80
	}
}
