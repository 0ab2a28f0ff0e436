// Package engine assembles the aggregation and routing subsystems
// behind one facade owning all registries, caches and limiters.
package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"dex-route-engine/internal/aggregator"
	"dex-route-engine/internal/config"
	"dex-route-engine/internal/domain"
	"dex-route-engine/internal/feed"
	"dex-route-engine/internal/observability"
	"dex-route-engine/internal/pricecache"
	"dex-route-engine/internal/publish"
	"dex-route-engine/internal/routing"
	"dex-route-engine/internal/source"
	"dex-route-engine/internal/storage"
)

// persistTimeout bounds background writes triggered by bus events so a
// slow backend cannot stall listener dispatch indefinitely.
const persistTimeout = 5 * time.Second

// Engine is the public entry point: price aggregation, route
// optimization and the event surface, wired from one configuration.
type Engine struct {
	cfg       *config.Config
	logger    *zap.Logger
	metrics   *observability.Metrics
	registry  *source.Registry
	service   *aggregator.Service
	feeds     *feed.Manager
	optimizer *routing.Optimizer

	outcomes  storage.RouteOutcomeStore  // optional
	snapshots storage.PriceSnapshotStore // optional
	publisher *publish.OpportunityPublisher
}

// Options contains the dependencies for creating an Engine. Only
// Config is required.
type Options struct {
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *observability.Metrics

	Cache     pricecache.Cache // defaults to in-memory
	Outcomes  storage.RouteOutcomeStore
	Snapshots storage.PriceSnapshotStore
	Publisher *publish.OpportunityPublisher
}

// New wires an engine from configuration: one registry entry per
// configured source, the aggregation service, the feed manager and the
// route optimizer. Persistence and publishing listeners attach to the
// event bus when their backends are provided.
func New(opts Options) (*Engine, error) {
	cfg := opts.Config
	if cfg == nil {
		def := config.Default()
		cfg = &def
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	registry := source.NewRegistry()
	for _, sc := range cfg.Sources {
		registry.Register(sc, nil)
	}

	bus := aggregator.NewBus(logger)
	service := aggregator.New(aggregator.Options{
		Registry: registry,
		Cache:    opts.Cache,
		Bus:      bus,
		Metrics:  opts.Metrics,
		Logger:   logger,
		Config:   cfg.Aggregation,
	})

	optimizer := routing.NewOptimizer(routing.OptimizerOptions{
		Config:  cfg.Routing,
		Metrics: opts.Metrics,
		Logger:  logger,
	})

	feeds := feed.NewManager(feed.ManagerOptions{
		Registry:      registry,
		Sink:          service,
		Bus:           bus,
		Metrics:       opts.Metrics,
		Logger:        logger,
		MaxReconnects: cfg.Aggregation.FeedMaxReconnects,
		PingInterval:  cfg.Aggregation.FeedPingInterval.Std(),
	})

	e := &Engine{
		cfg:       cfg,
		logger:    logger,
		metrics:   opts.Metrics,
		registry:  registry,
		service:   service,
		feeds:     feeds,
		optimizer: optimizer,
		outcomes:  opts.Outcomes,
		snapshots: opts.Snapshots,
		publisher: opts.Publisher,
	}

	if e.snapshots != nil {
		bus.OnPriceUpdate(e.persistSnapshot)
	}
	if e.publisher != nil {
		bus.OnArbitrageOpportunity(e.publishOpportunity)
	}
	if e.outcomes != nil {
		if err := e.warmStartLearner(context.Background()); err != nil {
			logger.Warn("learner warm start failed", zap.Error(err))
		}
	}
	return e, nil
}

// Start opens the push-feed connections and the periodic refresh of
// requested pairs.
func (e *Engine) Start(ctx context.Context) {
	e.feeds.Start(ctx)
	e.service.StartAutoRefresh(ctx)
	e.logger.Info("engine started",
		zap.Int("sources", len(e.cfg.Sources)),
		zap.String("objective", string(e.cfg.Routing.Objective)),
	)
}

// Stop tears the engine down in dependency order.
func (e *Engine) Stop() {
	e.feeds.Stop()
	e.optimizer.Close()
	e.service.Close()
	if e.publisher != nil {
		e.publisher.Close()
	}
	e.logger.Info("engine stopped")
}

// Registry exposes the source registry so callers can install custom
// adapters before Start.
func (e *Engine) Registry() *source.Registry { return e.registry }

// LoadPools seeds the liquidity graph with pool snapshots.
func (e *Engine) LoadPools(pools []*domain.LiquidityPool) {
	for _, p := range pools {
		e.optimizer.Graph().AddPool(p)
	}
}

// GetAggregatedPrice returns the merged market view for a pair, served
// from cache when fresh enough.
func (e *Engine) GetAggregatedPrice(ctx context.Context, tokenIn, tokenOut domain.Token, amountIn decimal.Decimal) (*domain.AggregatedPrice, error) {
	requestID := uuid.NewString()
	price, err := e.service.GetAggregatedPrice(ctx, tokenIn, tokenOut, amountIn)
	if err != nil {
		e.logger.Warn("aggregation failed",
			zap.String("request_id", requestID),
			zap.String("pair", domain.PairKey(tokenIn, tokenOut)),
			zap.Error(err),
		)
		return nil, err
	}
	e.logger.Debug("aggregated price served",
		zap.String("request_id", requestID),
		zap.String("pair", price.PairKey),
		zap.Int("quotes", len(price.Quotes)),
	)
	return price, nil
}

// FindOptimalRoutes returns the ranked routes for a pair. Live quotes
// seed direct routes; the pass degrades to graph-only search when no
// source delivers. An exhausted search returns an empty slice.
func (e *Engine) FindOptimalRoutes(ctx context.Context, tokenIn, tokenOut domain.Token, amountIn decimal.Decimal) ([]*domain.OptimizedRoute, error) {
	quotes, err := e.liveQuotes(ctx, tokenIn, tokenOut, amountIn)
	if err != nil {
		return nil, err
	}
	return e.optimizer.FindOptimalRoutes(tokenIn, tokenOut, amountIn, quotes), nil
}

// FindOptimalRouteForLargeVolume routes one order with automatic
// splitting above the configured notional threshold. Returns nil when
// no route exists.
func (e *Engine) FindOptimalRouteForLargeVolume(ctx context.Context, tokenIn, tokenOut domain.Token, amountIn decimal.Decimal) (*domain.OptimizedRoute, error) {
	quotes, err := e.liveQuotes(ctx, tokenIn, tokenOut, amountIn)
	if err != nil {
		return nil, err
	}
	return e.optimizer.FindOptimalRouteForLargeVolume(tokenIn, tokenOut, amountIn, quotes), nil
}

// liveQuotes collects the pair's current quotes. A pass with zero
// valid prices is not fatal here: the graph may still know a route.
// Triangular requests skip aggregation entirely.
func (e *Engine) liveQuotes(ctx context.Context, tokenIn, tokenOut domain.Token, amountIn decimal.Decimal) ([]domain.Quote, error) {
	if tokenIn.Equal(tokenOut) || len(e.registry.Active(tokenIn.ChainID)) == 0 {
		return nil, nil
	}

	price, err := e.service.GetAggregatedPrice(ctx, tokenIn, tokenOut, amountIn)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, nil
	}
	quotes := make([]domain.Quote, 0, len(price.Quotes))
	for _, q := range price.Quotes {
		quotes = append(quotes, *q)
	}
	return quotes, nil
}

// RecordOutcome feeds one execution result into the learner and, when
// configured, the outcome store.
func (e *Engine) RecordOutcome(ctx context.Context, outcome domain.RouteOutcome) error {
	e.optimizer.RecordOutcome(outcome)
	if e.outcomes == nil {
		return nil
	}
	if err := e.outcomes.Insert(ctx, &outcome); err != nil {
		if e.metrics != nil {
			e.metrics.StoreErrors.WithLabelValues("outcomes").Inc()
		}
		return err
	}
	return nil
}

// OnPriceUpdate registers a listener for aggregation results.
func (e *Engine) OnPriceUpdate(fn func(*domain.AggregatedPrice)) {
	e.service.Bus().OnPriceUpdate(fn)
}

// OnArbitrageOpportunity registers a listener for detected spreads.
func (e *Engine) OnArbitrageOpportunity(fn func(*domain.ArbitrageOpportunity)) {
	e.service.Bus().OnArbitrageOpportunity(fn)
}

// OnError registers a listener for absorbed per-source failures.
func (e *Engine) OnError(fn func(error)) {
	e.service.Bus().OnError(fn)
}

// warmStartLearner replays persisted outcomes so route ranking does
// not start cold after a restart.
func (e *Engine) warmStartLearner(ctx context.Context) error {
	sigs, err := e.outcomes.Signatures(ctx)
	if err != nil {
		return err
	}
	for _, sig := range sigs {
		recent, err := e.outcomes.GetBySignature(ctx, sig, e.cfg.Routing.LearnerHistorySize)
		if err != nil {
			return err
		}
		// Newest first in storage; replay oldest first so the rolling
		// window evicts in the right order.
		for i := len(recent) - 1; i >= 0; i-- {
			e.optimizer.Learner().Record(*recent[i])
		}
	}
	e.logger.Info("learner warm started", zap.Int("signatures", len(sigs)))
	return nil
}

func (e *Engine) persistSnapshot(price *domain.AggregatedPrice) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := e.snapshots.InsertBulk(ctx, []*domain.PriceSnapshot{domain.SnapshotOf(price)}); err != nil {
		if e.metrics != nil {
			e.metrics.StoreErrors.WithLabelValues("snapshots").Inc()
		}
		e.logger.Warn("snapshot persist failed", zap.String("pair", price.PairKey), zap.Error(err))
	}
}

func (e *Engine) publishOpportunity(opp *domain.ArbitrageOpportunity) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := e.publisher.Publish(ctx, opp); err != nil {
		e.logger.Warn("opportunity publish failed", zap.String("pair", opp.PairKey), zap.Error(err))
	}
}
