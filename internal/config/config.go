// Package config loads engine configuration from YAML with sane
// defaults for every field.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"dex-route-engine/internal/domain"
)

// Duration wraps time.Duration so YAML values can be written in the
// usual "500ms" / "10s" form.
type Duration time.Duration

// UnmarshalYAML implements yaml.v2 unmarshalling for Duration.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the full engine configuration.
type Config struct {
	Aggregation AggregationConfig `yaml:"aggregation"`
	Routing     RoutingConfig     `yaml:"routing"`
	Sources     []SourceConfig    `yaml:"sources"`
	Storage     StorageConfig     `yaml:"storage"`
	Publish     PublishConfig     `yaml:"publish"`
	Server      ServerConfig      `yaml:"server"`
}

// AggregationConfig controls the fetch/filter/aggregate pipeline.
type AggregationConfig struct {
	UpdateInterval   Duration `yaml:"update_interval"`
	MaxStaleTime     Duration `yaml:"max_stale_time"`
	CacheTTL         Duration `yaml:"cache_ttl"`
	MaxConcurrent    int      `yaml:"max_concurrent"`
	RequestTimeout   Duration `yaml:"request_timeout"`
	RetryAttempts    int      `yaml:"retry_attempts"`
	RetryBaseDelay   Duration `yaml:"retry_base_delay"`
	OutlierDetection bool     `yaml:"outlier_detection"`

	// Arbitrage detection bounds.
	ArbitrageThresholdPct float64 `yaml:"arbitrage_threshold_pct"`
	MinLiquidityUSD       float64 `yaml:"min_liquidity_usd"`

	// FeeBufferPct is subtracted from the raw spread when estimating
	// profit margin (assumed fees plus slippage).
	FeeBufferPct float64 `yaml:"fee_buffer_pct"`

	// Feed reconnection bounds.
	FeedMaxReconnects int      `yaml:"feed_max_reconnects"`
	FeedPingInterval  Duration `yaml:"feed_ping_interval"`
}

// RoutingConfig controls route discovery and scoring.
type RoutingConfig struct {
	Objective         domain.Objective `yaml:"objective"`
	MaxHops           int              `yaml:"max_hops"`
	MaxRoutes         int              `yaml:"max_routes"`
	StablecoinRouting bool             `yaml:"stablecoin_routing"`
	Stablecoins       []string         `yaml:"stablecoins"` // symbols allowed as intermediates
	RouteCacheTTL     Duration         `yaml:"route_cache_ttl"`

	// Large-order splitting.
	LargeOrderThreshold float64 `yaml:"large_order_threshold"` // notional USD
	MaxSplitSize        float64 `yaml:"max_split_size"`

	// Balanced-objective weights. Fixed constants in the original
	// calibration; kept configurable because no derivation is known.
	BalancedWeights BalancedWeights `yaml:"balanced_weights"`

	// Triangular-arbitrage TVL risk tiers, USD.
	TriArbLowRiskTVL    float64 `yaml:"triarb_low_risk_tvl"`
	TriArbMediumRiskTVL float64 `yaml:"triarb_medium_risk_tvl"`
	TriArbMinProfitPct  float64 `yaml:"triarb_min_profit_pct"`

	// Performance learner history depth per route signature.
	LearnerHistorySize int `yaml:"learner_history_size"`
}

// BalancedWeights are the component weights of the balanced objective.
// They should sum to 1.
type BalancedWeights struct {
	Output     float64 `yaml:"output"`
	Gas        float64 `yaml:"gas"`
	Speed      float64 `yaml:"speed"`
	Confidence float64 `yaml:"confidence"`
	Risk       float64 `yaml:"risk"`
}

// SourceConfig is the static per-exchange connection metadata.
type SourceConfig struct {
	Name         string   `yaml:"name"`
	Endpoint     string   `yaml:"endpoint"`
	FeedEndpoint string   `yaml:"feed_endpoint"` // empty when the source has no push feed
	Adapter      string   `yaml:"adapter"`       // "default" (quote API) or "pool_state" (reserve snapshots)
	RateLimit    int      `yaml:"rate_limit"`    // max requests per window
	RateWindow   Duration `yaml:"rate_window"`
	Weight       float64  `yaml:"weight"` // reliability weight, 0..1
	Chains       []int64  `yaml:"chains"`
	Enabled      bool     `yaml:"enabled"`
}

// StorageConfig selects optional persistent backends. Empty DSNs mean
// in-memory implementations.
type StorageConfig struct {
	PostgresDSN   string `yaml:"postgres_dsn"`
	ClickhouseDSN string `yaml:"clickhouse_dsn"`
	RedisAddr     string `yaml:"redis_addr"`
}

// PublishConfig configures the optional Kafka opportunity publisher.
type PublishConfig struct {
	KafkaBrokers []string `yaml:"kafka_brokers"`
	KafkaTopic   string   `yaml:"kafka_topic"`
}

// ServerConfig configures the HTTP surface of cmd/engine.
type ServerConfig struct {
	ListenAddr  string `yaml:"listen_addr"`
	MetricsAddr string `yaml:"metrics_addr"`
}

// Default returns the configuration used when a field (or the whole
// file) is absent.
func Default() Config {
	return Config{
		Aggregation: AggregationConfig{
			UpdateInterval:        Duration(10 * time.Second),
			MaxStaleTime:          Duration(30 * time.Second),
			CacheTTL:              Duration(60 * time.Second),
			MaxConcurrent:         8,
			RequestTimeout:        Duration(5 * time.Second),
			RetryAttempts:         3,
			RetryBaseDelay:        Duration(200 * time.Millisecond),
			OutlierDetection:      true,
			ArbitrageThresholdPct: 1.0,
			MinLiquidityUSD:       10_000,
			FeeBufferPct:          0.6,
			FeedMaxReconnects:     6,
			FeedPingInterval:      Duration(30 * time.Second),
		},
		Routing: RoutingConfig{
			Objective:           domain.ObjectiveBalanced,
			MaxHops:             3,
			MaxRoutes:           5,
			StablecoinRouting:   true,
			Stablecoins:         []string{"USDC", "USDT", "DAI"},
			RouteCacheTTL:       Duration(10 * time.Second),
			LargeOrderThreshold: 100_000,
			MaxSplitSize:        25_000,
			BalancedWeights: BalancedWeights{
				Output:     0.40,
				Gas:        0.20,
				Speed:      0.20,
				Confidence: 0.10,
				Risk:       0.10,
			},
			TriArbLowRiskTVL:    10_000_000,
			TriArbMediumRiskTVL: 1_000_000,
			TriArbMinProfitPct:  1.0,
			LearnerHistorySize:  50,
		},
		Server: ServerConfig{
			ListenAddr:  ":8080",
			MetricsAddr: ":9090",
		},
	}
}

// Load reads a YAML config file, applying defaults for absent fields.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.Aggregation.MaxConcurrent <= 0 {
		return fmt.Errorf("aggregation.max_concurrent must be positive")
	}
	if c.Aggregation.RequestTimeout <= 0 {
		return fmt.Errorf("aggregation.request_timeout must be positive")
	}
	if c.Routing.MaxHops <= 0 {
		return fmt.Errorf("routing.max_hops must be positive")
	}
	if c.Routing.MaxRoutes <= 0 {
		return fmt.Errorf("routing.max_routes must be positive")
	}
	switch c.Routing.Objective {
	case domain.ObjectivePrice, domain.ObjectiveGas, domain.ObjectiveSpeed, domain.ObjectiveBalanced:
	default:
		return fmt.Errorf("routing.objective %q unknown", c.Routing.Objective)
	}
	for _, s := range c.Sources {
		if s.Name == "" {
			return fmt.Errorf("source with empty name")
		}
		if s.RateLimit <= 0 || s.RateWindow <= 0 {
			return fmt.Errorf("source %s: rate_limit and rate_window must be positive", s.Name)
		}
		switch s.Adapter {
		case "", "default", "pool_state":
		default:
			return fmt.Errorf("source %s: adapter %q unknown", s.Name, s.Adapter)
		}
	}
	return nil
}
