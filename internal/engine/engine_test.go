package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dex-route-engine/internal/config"
	"dex-route-engine/internal/domain"
	"dex-route-engine/internal/observability"
	"dex-route-engine/internal/routeid"
	"dex-route-engine/internal/source/stub"
	"dex-route-engine/internal/storage"
	storagemem "dex-route-engine/internal/storage/memory"
)

func testTokens() (domain.Token, domain.Token) {
	weth := domain.Token{Symbol: "WETH", Address: "0xweth", ChainID: 1, Decimals: 18}
	usdc := domain.Token{Symbol: "USDC", Address: "0xusdc", ChainID: 1, Decimals: 6}
	return weth, usdc
}

func testConfig(venues map[string]*stub.Venue, mutate func(*config.Config)) *config.Config {
	cfg := config.Default()
	cfg.Routing.Objective = domain.ObjectivePrice
	for name, v := range venues {
		cfg.Sources = append(cfg.Sources, config.SourceConfig{
			Name:       name,
			Endpoint:   v.URL(),
			RateLimit:  100,
			RateWindow: config.Duration(time.Second),
			Weight:     1,
			Enabled:    true,
		})
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return &cfg
}

func TestEngineAggregatesAndPublishesEvents(t *testing.T) {
	dexA := stub.NewVenue("dexA", 100, 1_000_000)
	defer dexA.Close()
	dexB := stub.NewVenue("dexB", 102, 2_000_000)
	defer dexB.Close()

	snapshots := storagemem.NewPriceSnapshotStore()
	e, err := New(Options{
		Config:    testConfig(map[string]*stub.Venue{"dexA": dexA, "dexB": dexB}, nil),
		Snapshots: snapshots,
	})
	require.NoError(t, err)
	defer e.Stop()

	var mu sync.Mutex
	var prices []*domain.AggregatedPrice
	var opps []*domain.ArbitrageOpportunity
	e.OnPriceUpdate(func(p *domain.AggregatedPrice) {
		mu.Lock()
		prices = append(prices, p)
		mu.Unlock()
	})
	e.OnArbitrageOpportunity(func(o *domain.ArbitrageOpportunity) {
		mu.Lock()
		opps = append(opps, o)
		mu.Unlock()
	})

	weth, usdc := testTokens()
	price, err := e.GetAggregatedPrice(context.Background(), weth, usdc, decimal.NewFromInt(1))
	require.NoError(t, err)

	require.NotNil(t, price.Best)
	assert.Equal(t, "dexB", price.Best.Source, "larger output wins")
	require.Len(t, price.Opportunities, 1)
	assert.Equal(t, "dexA", price.Opportunities[0].BuySource)
	assert.Equal(t, "dexB", price.Opportunities[0].SellSource)

	mu.Lock()
	assert.Len(t, prices, 1)
	assert.Len(t, opps, 1)
	mu.Unlock()

	stored, err := snapshots.GetByPair(context.Background(), price.PairKey,
		price.UpdatedAt.Add(-time.Second), price.UpdatedAt.Add(time.Second))
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "dexB", stored[0].BestSource)
}

func TestEngineFindsDirectRoutesFromLiveQuotes(t *testing.T) {
	dexA := stub.NewVenue("dexA", 100, 1_000_000)
	defer dexA.Close()
	dexB := stub.NewVenue("dexB", 102, 2_000_000)
	defer dexB.Close()

	e, err := New(Options{
		Config: testConfig(map[string]*stub.Venue{"dexA": dexA, "dexB": dexB}, nil),
	})
	require.NoError(t, err)
	defer e.Stop()

	weth, usdc := testTokens()
	routes, err := e.FindOptimalRoutes(context.Background(), weth, usdc, decimal.NewFromInt(1))
	require.NoError(t, err)
	require.Len(t, routes, 2)

	assert.Equal(t, domain.RouteDirect, routes[0].Kind)
	assert.Equal(t, "dexB", routes[0].Steps[0].Source)
	assert.True(t, routes[0].AmountOut.GreaterThan(routes[1].AmountOut))
}

func TestEngineRouteSearchWithoutSources(t *testing.T) {
	e, err := New(Options{Config: testConfig(nil, nil)})
	require.NoError(t, err)
	defer e.Stop()

	weth, usdc := testTokens()
	routes, err := e.FindOptimalRoutes(context.Background(), weth, usdc, decimal.NewFromInt(1))
	require.NoError(t, err)
	assert.Empty(t, routes, "no quotes and an empty graph yield no routes")
}

func TestEngineTriangularArbitrageOverLoadedPools(t *testing.T) {
	e, err := New(Options{Config: testConfig(nil, nil)})
	require.NoError(t, err)
	defer e.Stop()

	weth, usdc := testTokens()
	dai := domain.Token{Symbol: "DAI", Address: "0xdai", ChainID: 1, Decimals: 18}
	e.LoadPools([]*domain.LiquidityPool{
		{
			Address: "0xweth-usdc", Source: "dexA", ChainID: 1,
			Token0: weth, Token1: usdc,
			Reserve0: decimal.NewFromInt(1000), Reserve1: decimal.NewFromInt(2_000_000),
			FeeRate: 0.003, TVL: decimal.NewFromInt(4_000_000),
		},
		{
			Address: "0xusdc-dai", Source: "dexB", ChainID: 1,
			Token0: usdc, Token1: dai,
			Reserve0: decimal.NewFromInt(1_000_000), Reserve1: decimal.NewFromInt(1_000_000),
			FeeRate: 0.003, TVL: decimal.NewFromInt(2_000_000),
		},
		{
			Address: "0xdai-weth", Source: "dexC", ChainID: 1,
			Token0: dai, Token1: weth,
			Reserve0: decimal.NewFromInt(2_000_000), Reserve1: decimal.NewFromInt(1100),
			FeeRate: 0.003, TVL: decimal.NewFromInt(3_000_000),
		},
	})

	routes, err := e.FindOptimalRoutes(context.Background(), weth, weth, decimal.NewFromInt(1))
	require.NoError(t, err)
	require.NotEmpty(t, routes)
	assert.Equal(t, domain.RouteArbitrage, routes[0].Kind)
	assert.True(t, routes[0].AmountOut.GreaterThan(routes[0].AmountIn))
}

func TestEngineRecordOutcomePersistsAndWarmStarts(t *testing.T) {
	dexB := stub.NewVenue("dexB", 102, 2_000_000)
	defer dexB.Close()

	outcomes := storagemem.NewRouteOutcomeStore()
	cfg := testConfig(map[string]*stub.Venue{"dexB": dexB}, nil)
	metrics := observability.NewMetrics("engine_outcome_test")

	first, err := New(Options{Config: cfg, Outcomes: outcomes, Metrics: metrics})
	require.NoError(t, err)

	sig := routeid.RouteSignature([]string{"dexB"})
	for i := 0; i < 5; i++ {
		require.NoError(t, first.RecordOutcome(context.Background(), domain.RouteOutcome{
			RouteID:    fmt.Sprintf("r%d", i),
			Signature:  sig,
			Success:    false,
			RecordedAt: time.Now(),
		}))
	}
	err = first.RecordOutcome(context.Background(), domain.RouteOutcome{
		RouteID: "r0", Signature: sig, Success: true, RecordedAt: time.Now(),
	})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.StoreErrors.WithLabelValues("outcomes")))
	first.Stop()

	// A fresh engine sharing the store starts with the history applied.
	second, err := New(Options{Config: cfg, Outcomes: outcomes})
	require.NoError(t, err)
	defer second.Stop()

	weth, usdc := testTokens()
	routes, err := second.FindOptimalRoutes(context.Background(), weth, usdc, decimal.NewFromInt(1))
	require.NoError(t, err)
	require.Len(t, routes, 1)
	assert.Equal(t, sig, routes[0].Signature)
	assert.Less(t, routes[0].Confidence, 50.0, "failing history must drag confidence down")
	assert.Equal(t, 100.0, routes[0].RiskScore)
}

func TestEngineSplitsLargeVolume(t *testing.T) {
	dexB := stub.NewVenue("dexB", 102, 2_000_000)
	defer dexB.Close()

	e, err := New(Options{
		Config: testConfig(map[string]*stub.Venue{"dexB": dexB}, func(cfg *config.Config) {
			cfg.Routing.LargeOrderThreshold = 50
			cfg.Routing.MaxSplitSize = 30
		}),
	})
	require.NoError(t, err)
	defer e.Stop()

	weth, usdc := testTokens()
	route, err := e.FindOptimalRouteForLargeVolume(context.Background(), weth, usdc, decimal.NewFromInt(100))
	require.NoError(t, err)
	require.NotNil(t, route)

	assert.Equal(t, domain.RouteSplit, route.Kind)
	assert.Len(t, route.Slices, 4, "ceil(100/30) slices")
	assert.True(t, route.AmountOut.Equal(decimal.NewFromInt(10200)))
}
