// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the engine.
type Metrics struct {
	// Aggregation metrics
	QuoteFetches        *prometheus.CounterVec // by source, result
	QuoteFetchLatency   *prometheus.HistogramVec
	QuotesFiltered      *prometheus.CounterVec // by reason (stale|outlier|invalid)
	AggregationPasses   prometheus.Counter
	SourcesSkipped      *prometheus.CounterVec // by source, reason
	OpportunitiesFound  prometheus.Counter
	PriceCacheHits      prometheus.Counter
	PriceCacheMisses    prometheus.Counter

	// Feed metrics
	FeedMessages       *prometheus.CounterVec // by source
	FeedReconnects     *prometheus.CounterVec // by source
	FeedSourcesDropped prometheus.Counter
	FeedPatchedQuotes  prometheus.Counter

	// Routing metrics
	RouteComputations  *prometheus.CounterVec // by kind
	RouteComputeTime   prometheus.Histogram
	RouteCacheHits     prometheus.Counter
	RoutesSplit        prometheus.Counter
	OutcomesRecorded   *prometheus.CounterVec // by result

	// Storage metrics
	StoreErrors *prometheus.CounterVec // by store
}

// NewMetrics creates a Metrics instance with all metrics registered on
// the default registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "dex_route_engine"
	}

	return &Metrics{
		QuoteFetches: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "aggregation",
			Name:      "quote_fetches_total",
			Help:      "Total quote fetches by source and result",
		}, []string{"source", "result"}),
		QuoteFetchLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "aggregation",
			Name:      "quote_fetch_latency_seconds",
			Help:      "Quote fetch latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source"}),
		QuotesFiltered: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "aggregation",
			Name:      "quotes_filtered_total",
			Help:      "Quotes discarded before aggregation, by reason",
		}, []string{"reason"}),
		AggregationPasses: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "aggregation",
			Name:      "passes_total",
			Help:      "Total completed aggregation passes",
		}),
		SourcesSkipped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "aggregation",
			Name:      "sources_skipped_total",
			Help:      "Sources skipped per pass, by reason",
		}, []string{"source", "reason"}),
		OpportunitiesFound: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "aggregation",
			Name:      "arbitrage_opportunities_total",
			Help:      "Total arbitrage opportunities emitted",
		}),
		PriceCacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "aggregation",
			Name:      "price_cache_hits_total",
			Help:      "Aggregated price cache hits",
		}),
		PriceCacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "aggregation",
			Name:      "price_cache_misses_total",
			Help:      "Aggregated price cache misses",
		}),

		FeedMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "messages_total",
			Help:      "Push feed messages received by source",
		}, []string{"source"}),
		FeedReconnects: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "reconnects_total",
			Help:      "Feed reconnect attempts by source",
		}, []string{"source"}),
		FeedSourcesDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "sources_dropped_total",
			Help:      "Sources marked inactive after exhausting reconnects",
		}),
		FeedPatchedQuotes: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "patched_quotes_total",
			Help:      "Cached quotes patched in place from feed updates",
		}),

		RouteComputations: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "routing",
			Name:      "computations_total",
			Help:      "Route computations by kind",
		}, []string{"kind"}),
		RouteComputeTime: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "routing",
			Name:      "compute_seconds",
			Help:      "Route discovery wall time in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		RouteCacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "routing",
			Name:      "cache_hits_total",
			Help:      "Route cache hits",
		}),
		RoutesSplit: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "routing",
			Name:      "large_orders_split_total",
			Help:      "Large orders decomposed by the volume splitter",
		}),
		OutcomesRecorded: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "routing",
			Name:      "outcomes_recorded_total",
			Help:      "Route execution outcomes recorded, by result",
		}, []string{"result"}),

		StoreErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "errors_total",
			Help:      "Storage backend errors by store",
		}, []string{"store"}),
	}
}

// Handler returns the HTTP handler serving the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
