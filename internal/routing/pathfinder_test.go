package routing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dex-route-engine/internal/domain"
)

func twoHopGraph() (*Graph, domain.Token, domain.Token, domain.Token) {
	weth := tok("WETH", "0xweth")
	usdc := tok("USDC", "0xusdc")
	wbtc := tok("WBTC", "0xwbtc")

	g := NewGraph()
	g.AddPool(pool("0xweth-usdc", "dexA", weth, usdc, 1000, 2_000_000, 4_000_000))
	g.AddPool(pool("0xusdc-wbtc", "dexB", usdc, wbtc, 3_000_000, 100, 6_000_000))
	g.AddPool(pool("0xweth-wbtc", "dexC", weth, wbtc, 150, 10, 600_000))
	return g, weth, usdc, wbtc
}

func TestPathFinderFindsDirectAndMultiHop(t *testing.T) {
	g, weth, _, wbtc := twoHopGraph()
	f := NewPathFinder(g, 3, false, nil)

	routes := f.FindPaths(weth, wbtc, decimal.NewFromInt(1))
	require.Len(t, routes, 2)

	kinds := map[domain.RouteKind]int{}
	for _, r := range routes {
		kinds[r.Kind]++
	}
	assert.Equal(t, 1, kinds[domain.RouteDirect])
	assert.Equal(t, 1, kinds[domain.RouteMultiHop])
}

func TestPathFinderThreadsAmountsAcrossHops(t *testing.T) {
	g, weth, _, wbtc := twoHopGraph()
	f := NewPathFinder(g, 3, false, nil)

	routes := f.FindPaths(weth, wbtc, decimal.NewFromInt(1))
	for _, r := range routes {
		if r.Kind != domain.RouteMultiHop {
			continue
		}
		require.Len(t, r.Steps, 2)
		assert.True(t, r.Steps[1].AmountIn.Equal(r.Steps[0].AmountOut),
			"second hop input must equal first hop output")
		assert.True(t, r.AmountOut.Equal(r.Steps[1].AmountOut))
		assert.Equal(t, 2*hopGasEstimate, r.TotalGas)
	}
}

func TestPathFinderHonorsMaxHops(t *testing.T) {
	g, weth, _, wbtc := twoHopGraph()
	f := NewPathFinder(g, 1, false, nil)

	routes := f.FindPaths(weth, wbtc, decimal.NewFromInt(1))
	require.Len(t, routes, 1)
	assert.Equal(t, domain.RouteDirect, routes[0].Kind)
}

func TestPathFinderStablecoinRestriction(t *testing.T) {
	weth := tok("WETH", "0xweth")
	doge := tok("DOGE", "0xdoge")
	wbtc := tok("WBTC", "0xwbtc")

	g := NewGraph()
	g.AddPool(pool("0xweth-doge", "dexA", weth, doge, 1000, 10_000_000, 1_000_000))
	g.AddPool(pool("0xdoge-wbtc", "dexB", doge, wbtc, 30_000_000, 100, 1_000_000))

	unrestricted := NewPathFinder(g, 3, false, nil)
	require.Len(t, unrestricted.FindPaths(weth, wbtc, decimal.NewFromInt(1)), 1)

	restricted := NewPathFinder(g, 3, true, []string{"USDC", "USDT", "DAI"})
	assert.Empty(t, restricted.FindPaths(weth, wbtc, decimal.NewFromInt(1)),
		"non-stablecoin intermediates must be pruned")
}

func TestPathFinderNoPathReturnsNothing(t *testing.T) {
	g, weth, _, _ := twoHopGraph()
	f := NewPathFinder(g, 3, false, nil)

	assert.Empty(t, f.FindPaths(weth, tok("PEPE", "0xpepe"), decimal.NewFromInt(1)))
	assert.Empty(t, f.FindPaths(weth, weth, decimal.NewFromInt(1)), "cycles are not the path finder's job")
}
