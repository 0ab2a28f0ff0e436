package routing

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"dex-route-engine/internal/config"
	"dex-route-engine/internal/domain"
	"dex-route-engine/internal/observability"
	"dex-route-engine/internal/routeid"
)

// Optimizer is the route discovery facade: direct routes from live
// quotes, multi-hop paths from the liquidity graph, triangular cycles
// when a request routes a token back into itself, all learner-adjusted
// and ranked under the configured objective. An exhausted search
// returns an empty list, never an error.
type Optimizer struct {
	graph    *Graph
	finder   *PathFinder
	triarb   *TriangularBuilder
	scorer   *Scorer
	learner  *Learner
	splitter *Splitter
	cache    *RouteCache
	metrics  *observability.Metrics
	logger   *zap.Logger

	maxRoutes int
}

// OptimizerOptions contains the dependencies for creating an Optimizer.
type OptimizerOptions struct {
	Graph   *Graph // optional, an empty graph is created when nil
	Config  config.RoutingConfig
	Metrics *observability.Metrics // optional
	Logger  *zap.Logger
}

// NewOptimizer builds the route discovery stack from configuration.
func NewOptimizer(opts OptimizerOptions) *Optimizer {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	graph := opts.Graph
	if graph == nil {
		graph = NewGraph()
	}
	cfg := opts.Config
	maxRoutes := cfg.MaxRoutes
	if maxRoutes <= 0 {
		maxRoutes = 5
	}

	return &Optimizer{
		graph:     graph,
		finder:    NewPathFinder(graph, cfg.MaxHops, cfg.StablecoinRouting, cfg.Stablecoins),
		triarb:    NewTriangularBuilder(graph, cfg.TriArbMinProfitPct, cfg.TriArbLowRiskTVL, cfg.TriArbMediumRiskTVL),
		scorer:    NewScorer(cfg.Objective, cfg.BalancedWeights),
		learner:   NewLearner(cfg.LearnerHistorySize),
		splitter:  NewSplitter(cfg.LargeOrderThreshold, cfg.MaxSplitSize),
		cache:     NewRouteCache(cfg.RouteCacheTTL.Std()),
		metrics:   opts.Metrics,
		logger:    logger,
		maxRoutes: maxRoutes,
	}
}

// Graph returns the underlying liquidity graph for snapshot loading.
func (o *Optimizer) Graph() *Graph { return o.graph }

// Learner returns the performance learner.
func (o *Optimizer) Learner() *Learner { return o.learner }

// FindOptimalRoutes discovers, adjusts and ranks candidate routes for
// one request. quotes seed direct single-venue routes alongside the
// graph search. The result is capped at maxRoutes and memoized for one
// route-cache TTL; no route within maxHops yields an empty slice.
func (o *Optimizer) FindOptimalRoutes(tokenIn, tokenOut domain.Token, amountIn decimal.Decimal, quotes []domain.Quote) []*domain.OptimizedRoute {
	key := cacheKey(tokenIn, tokenOut, amountIn, o.scorer.objective)
	if routes, ok := o.cache.Get(key); ok {
		if o.metrics != nil {
			o.metrics.RouteCacheHits.Inc()
		}
		return routes
	}

	start := time.Now()
	var candidates []*domain.OptimizedRoute
	if tokenIn.Equal(tokenOut) {
		candidates = o.triarb.Build(tokenIn, amountIn)
	} else {
		candidates = o.directFromQuotes(tokenIn, tokenOut, amountIn, quotes)
		candidates = append(candidates, o.finder.FindPaths(tokenIn, tokenOut, amountIn)...)
	}
	candidates = dedupeBySignature(candidates)

	for _, route := range candidates {
		o.learner.Adjust(route)
	}
	o.scorer.Rank(candidates)
	if len(candidates) > o.maxRoutes {
		candidates = candidates[:o.maxRoutes]
	}

	o.cache.Set(key, candidates)
	if o.metrics != nil {
		o.metrics.RouteComputeTime.Observe(time.Since(start).Seconds())
		for _, route := range candidates {
			o.metrics.RouteComputations.WithLabelValues(string(route.Kind)).Inc()
		}
	}
	o.logger.Debug("routes computed",
		zap.String("pair", domain.PairKey(tokenIn, tokenOut)),
		zap.Int("candidates", len(candidates)),
		zap.Duration("took", time.Since(start)),
	)
	return candidates
}

// FindOptimalRouteForLargeVolume routes one order, splitting it into
// independently routed equal slices above the large-order threshold.
// Returns nil when no route exists for the order or any slice.
func (o *Optimizer) FindOptimalRouteForLargeVolume(tokenIn, tokenOut domain.Token, amountIn decimal.Decimal, quotes []domain.Quote) *domain.OptimizedRoute {
	if !o.splitter.NeedsSplit(amountIn) {
		routes := o.FindOptimalRoutes(tokenIn, tokenOut, amountIn, rescaleQuotes(quotes, amountIn))
		if len(routes) == 0 {
			return nil
		}
		return routes[0]
	}

	amounts := o.splitter.SliceAmounts(amountIn)
	slices := make([]*domain.OptimizedRoute, 0, len(amounts))
	for _, amt := range amounts {
		routes := o.FindOptimalRoutes(tokenIn, tokenOut, amt, rescaleQuotes(quotes, amt))
		if len(routes) == 0 {
			return nil
		}
		slices = append(slices, routes[0])
	}

	combined := o.splitter.Combine(amountIn, slices)
	if o.metrics != nil {
		o.metrics.RoutesSplit.Inc()
	}
	o.logger.Debug("large order split",
		zap.String("pair", domain.PairKey(tokenIn, tokenOut)),
		zap.Int("slices", len(slices)),
	)
	return combined
}

// RecordOutcome feeds one execution result into the learner.
func (o *Optimizer) RecordOutcome(outcome domain.RouteOutcome) {
	o.learner.Record(outcome)
	if o.metrics != nil {
		result := "failure"
		if outcome.Success {
			result = "success"
		}
		o.metrics.OutcomesRecorded.WithLabelValues(result).Inc()
	}
}

// Close releases the route cache timers.
func (o *Optimizer) Close() {
	o.cache.Close()
}

// directFromQuotes turns live venue quotes for the requested pair into
// single-hop candidate routes.
func (o *Optimizer) directFromQuotes(tokenIn, tokenOut domain.Token, amountIn decimal.Decimal, quotes []domain.Quote) []*domain.OptimizedRoute {
	pair := domain.PairKey(tokenIn, tokenOut)
	out := make([]*domain.OptimizedRoute, 0, len(quotes))
	for _, q := range quotes {
		if domain.PairKey(q.TokenIn, q.TokenOut) != pair {
			continue
		}
		if err := q.Validate(); err != nil {
			continue
		}
		route := &domain.OptimizedRoute{
			ID:   uuid.NewString(),
			Kind: domain.RouteDirect,
			Steps: []domain.RouteStep{{
				Source:      q.Source,
				TokenIn:     q.TokenIn,
				TokenOut:    q.TokenOut,
				AmountIn:    q.AmountIn,
				AmountOut:   q.AmountOut,
				PoolAddress: q.PoolAddress,
				FeeRate:     q.FeeRate,
				PriceImpact: q.PriceImpact,
			}},
			AmountIn:       q.AmountIn,
			AmountOut:      q.AmountOut,
			TotalGas:       q.GasEstimate,
			TotalFeePct:    q.FeeRate * 100,
			TotalImpactPct: q.PriceImpact,
			EstimatedTime:  hopExecTime,
		}
		route.Signature = routeid.RouteSignature(route.Sources())
		deriveQuality(route)
		if q.Confidence > 0 {
			route.Confidence = clampPct(q.Confidence)
		}
		out = append(out, route)
	}
	return out
}

// dedupeBySignature keeps, per source sequence, the route with the
// largest output. Distinct pools through the same venues compete on
// realized output.
func dedupeBySignature(routes []*domain.OptimizedRoute) []*domain.OptimizedRoute {
	if len(routes) < 2 {
		return routes
	}
	best := make(map[string]*domain.OptimizedRoute, len(routes))
	order := make([]string, 0, len(routes))
	for _, route := range routes {
		cur, ok := best[route.Signature]
		if !ok {
			best[route.Signature] = route
			order = append(order, route.Signature)
			continue
		}
		if route.AmountOut.GreaterThan(cur.AmountOut) {
			best[route.Signature] = route
		}
	}
	out := make([]*domain.OptimizedRoute, 0, len(order))
	for _, sig := range order {
		out = append(out, best[sig])
	}
	return out
}

// rescaleQuotes re-prices venue quotes for a slice-sized input. Unit
// price is held constant; only the amounts change.
func rescaleQuotes(quotes []domain.Quote, amountIn decimal.Decimal) []domain.Quote {
	out := make([]domain.Quote, len(quotes))
	for i, q := range quotes {
		scaled := q
		scaled.AmountIn = amountIn
		scaled.AmountOut = amountIn.Mul(q.Price)
		out[i] = scaled
	}
	return out
}
