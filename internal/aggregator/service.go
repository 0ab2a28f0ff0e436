// Package aggregator implements the fetch/filter/aggregate pipeline:
// concurrent fan-out to all admitted sources, settled collection,
// outlier rejection, best-price selection and arbitrage detection.
package aggregator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"dex-route-engine/internal/config"
	"dex-route-engine/internal/domain"
	"dex-route-engine/internal/observability"
	"dex-route-engine/internal/pricecache"
	"dex-route-engine/internal/source"
)

// Service runs aggregation passes and maintains the price cache.
type Service struct {
	registry *source.Registry
	fetcher  *source.Fetcher
	cache    pricecache.Cache
	detector *Detector
	bus      *Bus
	metrics  *observability.Metrics
	logger   *zap.Logger
	cfg      config.AggregationConfig

	trackMu sync.Mutex
	tracked map[string]trackedPair

	stop chan struct{}
	wg   sync.WaitGroup
}

// trackedPair remembers a requested pair so the background refresh can
// re-run its aggregation pass.
type trackedPair struct {
	tokenIn  domain.Token
	tokenOut domain.Token
	amountIn decimal.Decimal
}

// Options contains the dependencies for creating a Service.
type Options struct {
	Registry *source.Registry
	Fetcher  *source.Fetcher
	Cache    pricecache.Cache
	Bus      *Bus
	Metrics  *observability.Metrics // optional
	Logger   *zap.Logger
	Config   config.AggregationConfig
}

// New creates an aggregation service.
func New(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	bus := opts.Bus
	if bus == nil {
		bus = NewBus(logger)
	}
	fetcher := opts.Fetcher
	if fetcher == nil {
		fetcher = source.NewFetcher(
			source.WithTimeout(opts.Config.RequestTimeout.Std()),
			source.WithRetryAttempts(opts.Config.RetryAttempts),
			source.WithRetryBase(opts.Config.RetryBaseDelay.Std()),
			source.WithLogger(logger),
		)
	}
	cache := opts.Cache
	if cache == nil {
		cache = pricecache.NewMemory(opts.Config.CacheTTL.Std())
	}

	return &Service{
		registry: opts.Registry,
		fetcher:  fetcher,
		cache:    cache,
		detector: &Detector{
			ThresholdPct:    opts.Config.ArbitrageThresholdPct,
			MinLiquidityUSD: decimal.NewFromFloat(opts.Config.MinLiquidityUSD),
			FeeBufferPct:    opts.Config.FeeBufferPct,
		},
		bus:     bus,
		metrics: opts.Metrics,
		logger:  logger,
		cfg:     opts.Config,
		tracked: make(map[string]trackedPair),
		stop:    make(chan struct{}),
	}
}

// StartAutoRefresh re-runs an aggregation pass for every previously
// requested pair each update interval, keeping cached prices current
// between requests. No-op when the interval is not positive.
func (s *Service) StartAutoRefresh(ctx context.Context) {
	interval := s.cfg.UpdateInterval.Std()
	if interval <= 0 {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.refreshTracked(ctx)
			}
		}
	}()
}

func (s *Service) refreshTracked(ctx context.Context) {
	s.trackMu.Lock()
	pairs := make([]trackedPair, 0, len(s.tracked))
	for _, tp := range s.tracked {
		pairs = append(pairs, tp)
	}
	s.trackMu.Unlock()

	for _, tp := range pairs {
		if _, err := s.Refresh(ctx, tp.tokenIn, tp.tokenOut, tp.amountIn); err != nil {
			s.bus.PublishError(fmt.Errorf("auto refresh %s: %w", domain.PairKey(tp.tokenIn, tp.tokenOut), err))
		}
	}
}

// Bus returns the service's event bus.
func (s *Service) Bus() *Bus { return s.bus }

// GetAggregatedPrice serves the pair from cache when fresh enough,
// otherwise runs a full aggregation pass.
func (s *Service) GetAggregatedPrice(ctx context.Context, tokenIn, tokenOut domain.Token, amountIn decimal.Decimal) (*domain.AggregatedPrice, error) {
	pairKey := domain.PairKey(tokenIn, tokenOut)
	now := time.Now()

	if cached, ok := s.cache.Get(ctx, pairKey, now, s.cfg.MaxStaleTime.Std()); ok {
		if s.metrics != nil {
			s.metrics.PriceCacheHits.Inc()
		}
		return cached, nil
	}
	if s.metrics != nil {
		s.metrics.PriceCacheMisses.Inc()
	}

	return s.Refresh(ctx, tokenIn, tokenOut, amountIn)
}

// settled is one source's terminal fetch result, success or failure.
type settled struct {
	entry *source.Entry
	quote *domain.Quote
	err   error
}

// Refresh runs one aggregation pass, bypassing the cache read. It
// fails only when no source produced a valid quote.
func (s *Service) Refresh(ctx context.Context, tokenIn, tokenOut domain.Token, amountIn decimal.Decimal) (*domain.AggregatedPrice, error) {
	pairKey := domain.PairKey(tokenIn, tokenOut)
	now := time.Now()
	req := source.QuoteRequest{TokenIn: tokenIn, TokenOut: tokenOut, AmountIn: amountIn}

	s.trackMu.Lock()
	s.tracked[pairKey] = trackedPair{tokenIn: tokenIn, tokenOut: tokenOut, amountIn: amountIn}
	s.trackMu.Unlock()

	// Admission: sources over their window are skipped for this pass.
	var admitted []*source.Entry
	for _, entry := range s.registry.Active(tokenIn.ChainID) {
		if !entry.Admit(now) {
			s.bus.PublishError(fmt.Errorf("%w: %s skipped for this pass", source.ErrSourceRateLimited, entry.Config.Name))
			if s.metrics != nil {
				s.metrics.SourcesSkipped.WithLabelValues(entry.Config.Name, "rate_limited").Inc()
			}
			continue
		}
		admitted = append(admitted, entry)
	}

	// Concurrent fan-out, results collected as settled. The WaitGroup
	// is the barrier: no partial aggregate is published mid-pass.
	results := make([]settled, len(admitted))
	sem := make(chan struct{}, s.cfg.MaxConcurrent)
	var wg sync.WaitGroup
	for i, entry := range admitted {
		wg.Add(1)
		go func(i int, entry *source.Entry) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			started := time.Now()
			quote, err := s.fetcher.Fetch(ctx, entry, req)
			if s.metrics != nil {
				s.metrics.QuoteFetchLatency.WithLabelValues(entry.Config.Name).Observe(time.Since(started).Seconds())
				result := "ok"
				if err != nil {
					result = "error"
				}
				s.metrics.QuoteFetches.WithLabelValues(entry.Config.Name, result).Inc()
			}
			results[i] = settled{entry: entry, quote: quote, err: err}
		}(i, entry)
	}
	wg.Wait()

	var quotes []*domain.Quote
	for _, res := range results {
		if res.err != nil {
			// Absorbed: a failing source degrades coverage, not the pass.
			s.bus.PublishError(fmt.Errorf("source %s: %w", res.entry.Config.Name, res.err))
			continue
		}
		quotes = append(quotes, res.quote)
	}

	return s.assemble(ctx, pairKey, tokenIn, tokenOut, amountIn, quotes, time.Now())
}

// assemble partitions, filters and merges a quote set into the
// published aggregate.
func (s *Service) assemble(ctx context.Context, pairKey string, tokenIn, tokenOut domain.Token, amountIn decimal.Decimal, quotes []*domain.Quote, now time.Time) (*domain.AggregatedPrice, error) {
	// Partition out quotes that aged past the staleness bound. In a
	// request-driven pass everything is fresh; feed-patched rebuilds
	// can carry older entries.
	var fresh, rejected []*domain.Quote
	for _, q := range quotes {
		if !q.Fresh(now, s.cfg.MaxStaleTime.Std()) {
			rejected = append(rejected, q)
			if s.metrics != nil {
				s.metrics.QuotesFiltered.WithLabelValues("stale").Inc()
			}
			continue
		}
		fresh = append(fresh, q)
	}

	if s.cfg.OutlierDetection {
		var outliers []*domain.Quote
		fresh, outliers = FilterOutliers(fresh)
		rejected = append(rejected, outliers...)
		if s.metrics != nil && len(outliers) > 0 {
			s.metrics.QuotesFiltered.WithLabelValues("outlier").Add(float64(len(outliers)))
		}
		for _, q := range outliers {
			s.logger.Debug("quote rejected as outlier",
				zap.String("source", q.Source),
				zap.String("pair", pairKey),
				zap.String("price", q.Price.String()),
			)
		}
	}

	if len(fresh) == 0 {
		return nil, fmt.Errorf("%s: %w", pairKey, ErrNoValidPrices)
	}

	best := fresh[0]
	for _, q := range fresh[1:] {
		if q.AmountOut.GreaterThan(best.AmountOut) {
			best = q
		}
	}

	opportunities := s.detector.Detect(pairKey, fresh, now)

	agg := &domain.AggregatedPrice{
		PairKey:       pairKey,
		TokenIn:       tokenIn,
		TokenOut:      tokenOut,
		AmountIn:      amountIn,
		Best:          best,
		Quotes:        fresh,
		Rejected:      rejected,
		Stats:         ComputeSpreadStats(fresh),
		Opportunities: opportunities,
		UpdatedAt:     now,
	}

	if err := s.cache.Set(ctx, agg); err != nil {
		s.logger.Warn("price cache write failed", zap.String("pair", pairKey), zap.Error(err))
	}

	if s.metrics != nil {
		s.metrics.AggregationPasses.Inc()
		s.metrics.OpportunitiesFound.Add(float64(len(opportunities)))
	}

	s.bus.PublishPrice(agg)
	for _, opp := range opportunities {
		s.bus.PublishOpportunity(opp)
	}
	return agg, nil
}

// ApplyFeedUpdate patches the matching quote of a cached aggregate in
// place and republishes the recomputed aggregate, avoiding a full
// re-fetch. Updates for pairs with no live cache entry are dropped:
// the next request-driven pass will pick the price up anyway.
func (s *Service) ApplyFeedUpdate(ctx context.Context, update domain.PriceUpdate) {
	cached, ok := s.cache.Get(ctx, update.PairKey, time.Now(), s.cfg.MaxStaleTime.Std())
	if !ok {
		return
	}

	patched := false
	quotes := make([]*domain.Quote, 0, len(cached.Quotes))
	for _, q := range cached.Quotes {
		if q.Source == update.Source {
			quotes = append(quotes, q.WithPrice(update.Price, update.Timestamp))
			patched = true
			continue
		}
		quotes = append(quotes, q)
	}
	if !patched {
		return
	}
	if s.metrics != nil {
		s.metrics.FeedPatchedQuotes.Inc()
	}

	if _, err := s.assemble(ctx, update.PairKey, cached.TokenIn, cached.TokenOut, cached.AmountIn, quotes, time.Now()); err != nil {
		s.bus.PublishError(fmt.Errorf("feed update for %s: %w", update.PairKey, err))
	}
}

// Close stops the background refresh and releases the cache.
func (s *Service) Close() error {
	close(s.stop)
	s.wg.Wait()
	return s.cache.Close()
}
