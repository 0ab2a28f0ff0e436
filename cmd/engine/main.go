// Package main runs the price aggregation and route optimization
// engine behind a small HTTP API:
//   - GET  /price: aggregated price for a pair
//   - GET  /routes: ranked routes (add volume=large for auto-split)
//   - POST /outcomes: report a route execution result
//   - GET  /healthz: liveness
//
// Prometheus metrics are served on a separate listener.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"dex-route-engine/internal/aggregator"
	"dex-route-engine/internal/config"
	"dex-route-engine/internal/domain"
	"dex-route-engine/internal/engine"
	"dex-route-engine/internal/observability"
	"dex-route-engine/internal/pricecache"
	"dex-route-engine/internal/publish"
	"dex-route-engine/internal/source/stub"
	"dex-route-engine/internal/storage"
	chstore "dex-route-engine/internal/storage/clickhouse"
	"dex-route-engine/internal/storage/memory"
	"dex-route-engine/internal/storage/migrations"
	pgstore "dex-route-engine/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	demo := flag.Bool("demo", false, "Run with simulated exchanges instead of configured sources")
	listenAddr := flag.String("listen-addr", "", "HTTP API address (overrides config)")
	metricsAddr := flag.String("metrics-addr", "", "Prometheus metrics address (overrides config)")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg := loadConfig(logger, *configPath)
	if *listenAddr != "" {
		cfg.Server.ListenAddr = *listenAddr
	}
	if *metricsAddr != "" {
		cfg.Server.MetricsAddr = *metricsAddr
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("shutting down", zap.String("signal", sig.String()))
		cancel()
	}()

	metrics := observability.NewMetrics("dex_route_engine")

	var venues []*stub.Venue
	if *demo {
		venues = startDemoVenues(cfg)
		defer func() {
			for _, v := range venues {
				v.Close()
			}
		}()
	}

	eng, cleanup, err := buildEngine(ctx, cfg, logger, metrics)
	if err != nil {
		logger.Fatal("build engine", zap.Error(err))
	}
	defer cleanup()

	if *demo {
		eng.LoadPools(demoPools())
	}

	eng.OnError(func(err error) {
		logger.Debug("source error absorbed", zap.Error(err))
	})

	eng.Start(ctx)
	defer eng.Stop()

	go serveMetrics(logger, cfg.Server.MetricsAddr)
	serveAPI(ctx, logger, cfg.Server.ListenAddr, eng)
}

func loadConfig(logger *zap.Logger, path string) *config.Config {
	if path == "" {
		cfg := config.Default()
		return &cfg
	}
	cfg, err := config.Load(path)
	if err != nil {
		logger.Fatal("load config", zap.String("path", path), zap.Error(err))
	}
	return cfg
}

// buildEngine selects backends by DSN: empty means in-memory.
func buildEngine(ctx context.Context, cfg *config.Config, logger *zap.Logger, metrics *observability.Metrics) (*engine.Engine, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var outcomes storage.RouteOutcomeStore = memory.NewRouteOutcomeStore()
	if dsn := cfg.Storage.PostgresDSN; dsn != "" {
		pool, err := pgstore.NewPool(ctx, dsn)
		if err != nil {
			return nil, cleanup, fmt.Errorf("postgres: %w", err)
		}
		closers = append(closers, pool.Close)
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			return nil, cleanup, fmt.Errorf("postgres migrations: %w", err)
		}
		outcomes = pgstore.NewRouteOutcomeStore(pool)
		logger.Info("route outcomes on postgres")
	}

	var snapshots storage.PriceSnapshotStore = memory.NewPriceSnapshotStore()
	if dsn := cfg.Storage.ClickhouseDSN; dsn != "" {
		conn, err := chstore.NewConn(ctx, dsn)
		if err != nil {
			return nil, cleanup, fmt.Errorf("clickhouse: %w", err)
		}
		closers = append(closers, func() { conn.Close() })
		if err := migrations.RunClickhouseMigrations(ctx, conn); err != nil {
			return nil, cleanup, fmt.Errorf("clickhouse migrations: %w", err)
		}
		snapshots = chstore.NewPriceSnapshotStore(conn)
		logger.Info("price snapshots on clickhouse")
	}

	var cache pricecache.Cache
	if addr := cfg.Storage.RedisAddr; addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: addr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, cleanup, fmt.Errorf("redis: %w", err)
		}
		cache = pricecache.NewRedis(rdb, cfg.Aggregation.CacheTTL.Std())
		logger.Info("price cache on redis", zap.String("addr", addr))
	}

	var publisher *publish.OpportunityPublisher
	if len(cfg.Publish.KafkaBrokers) > 0 {
		publisher = publish.NewOpportunityPublisher(cfg.Publish.KafkaBrokers, cfg.Publish.KafkaTopic, logger)
		logger.Info("opportunity publisher on kafka",
			zap.Strings("brokers", cfg.Publish.KafkaBrokers),
			zap.String("topic", cfg.Publish.KafkaTopic),
		)
	}

	eng, err := engine.New(engine.Options{
		Config:    cfg,
		Logger:    logger,
		Metrics:   metrics,
		Cache:     cache,
		Outcomes:  outcomes,
		Snapshots: snapshots,
		Publisher: publisher,
	})
	if err != nil {
		return nil, cleanup, err
	}
	return eng, cleanup, nil
}

// startDemoVenues spins three simulated exchanges with a persistent
// spread and registers them as sources.
func startDemoVenues(cfg *config.Config) []*stub.Venue {
	venues := []*stub.Venue{
		stub.NewVenue("simswap", 2000, 8_000_000),
		stub.NewVenue("mockdex", 2032, 5_000_000),
		stub.NewVenue("fakeswap", 2011, 600_000),
	}
	cfg.Sources = nil
	names := []string{"simswap", "mockdex", "fakeswap"}
	for i, v := range venues {
		cfg.Sources = append(cfg.Sources, config.SourceConfig{
			Name:         names[i],
			Endpoint:     v.URL(),
			FeedEndpoint: v.FeedURL(),
			RateLimit:    50,
			RateWindow:   config.Duration(time.Second),
			Weight:       1,
			Enabled:      true,
		})
	}
	return venues
}

// demoPools seeds the liquidity graph so multi-hop and triangular
// discovery have something to chew on.
func demoPools() []*domain.LiquidityPool {
	weth := domain.Token{Symbol: "WETH", Address: "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2", ChainID: 1, Decimals: 18}
	usdc := domain.Token{Symbol: "USDC", Address: "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48", ChainID: 1, Decimals: 6}
	dai := domain.Token{Symbol: "DAI", Address: "0x6b175474e89094c44da98b954eedeac495271d0f", ChainID: 1, Decimals: 18}

	return []*domain.LiquidityPool{
		{
			Address: "0xpool-weth-usdc", Source: "simswap", ChainID: 1,
			Token0: weth, Token1: usdc,
			Reserve0: decimal.NewFromInt(4000), Reserve1: decimal.NewFromInt(8_000_000),
			FeeRate: 0.003, TVL: decimal.NewFromInt(16_000_000),
		},
		{
			Address: "0xpool-usdc-dai", Source: "mockdex", ChainID: 1,
			Token0: usdc, Token1: dai,
			Reserve0: decimal.NewFromInt(5_000_000), Reserve1: decimal.NewFromInt(5_000_000),
			FeeRate: 0.003, TVL: decimal.NewFromInt(10_000_000),
		},
		{
			Address: "0xpool-dai-weth", Source: "fakeswap", ChainID: 1,
			Token0: dai, Token1: weth,
			Reserve0: decimal.NewFromInt(4_100_000), Reserve1: decimal.NewFromInt(2100),
			FeeRate: 0.003, TVL: decimal.NewFromInt(8_200_000),
		},
	}
}

func serveMetrics(logger *zap.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())
	logger.Info("metrics listening", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server failed", zap.Error(err))
	}
}

func serveAPI(ctx context.Context, logger *zap.Logger, addr string, eng *engine.Engine) {
	mux := http.NewServeMux()
	mux.HandleFunc("/price", handlePrice(logger, eng))
	mux.HandleFunc("/routes", handleRoutes(logger, eng))
	mux.HandleFunc("/outcomes", handleOutcomes(logger, eng))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	logger.Info("api listening", zap.String("addr", addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("api server failed", zap.Error(err))
	}
}

// parseToken decodes the SYMBOL:address:decimals query form, e.g.
// WETH:0xc02a...:18.
func parseToken(raw string, chainID int64) (domain.Token, error) {
	parts := strings.Split(raw, ":")
	if len(parts) != 3 {
		return domain.Token{}, fmt.Errorf("token must be SYMBOL:address:decimals, got %q", raw)
	}
	decimals, err := strconv.Atoi(parts[2])
	if err != nil {
		return domain.Token{}, fmt.Errorf("bad decimals in %q: %w", raw, err)
	}
	return domain.Token{
		Symbol:   parts[0],
		Address:  parts[1],
		ChainID:  chainID,
		Decimals: decimals,
	}, nil
}

func parsePairRequest(r *http.Request) (domain.Token, domain.Token, decimal.Decimal, error) {
	q := r.URL.Query()

	chainID := int64(1)
	if raw := q.Get("chainId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return domain.Token{}, domain.Token{}, decimal.Zero, fmt.Errorf("bad chainId: %w", err)
		}
		chainID = id
	}

	tokenIn, err := parseToken(q.Get("tokenIn"), chainID)
	if err != nil {
		return domain.Token{}, domain.Token{}, decimal.Zero, err
	}
	tokenOut, err := parseToken(q.Get("tokenOut"), chainID)
	if err != nil {
		return domain.Token{}, domain.Token{}, decimal.Zero, err
	}
	amountIn, err := decimal.NewFromString(q.Get("amountIn"))
	if err != nil || !amountIn.IsPositive() {
		return domain.Token{}, domain.Token{}, decimal.Zero, fmt.Errorf("amountIn must be a positive number")
	}
	return tokenIn, tokenOut, amountIn, nil
}

func handlePrice(logger *zap.Logger, eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tokenIn, tokenOut, amountIn, err := parsePairRequest(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		price, err := eng.GetAggregatedPrice(r.Context(), tokenIn, tokenOut, amountIn)
		if err != nil {
			if errors.Is(err, aggregator.ErrNoValidPrices) {
				writeError(w, http.StatusServiceUnavailable, err)
				return
			}
			logger.Error("price request failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, price)
	}
}

func handleRoutes(logger *zap.Logger, eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tokenIn, tokenOut, amountIn, err := parsePairRequest(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		if r.URL.Query().Get("volume") == "large" {
			route, err := eng.FindOptimalRouteForLargeVolume(r.Context(), tokenIn, tokenOut, amountIn)
			if err != nil {
				logger.Error("large-volume route request failed", zap.Error(err))
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			if route == nil {
				writeJSON(w, http.StatusOK, []*domain.OptimizedRoute{})
				return
			}
			writeJSON(w, http.StatusOK, []*domain.OptimizedRoute{route})
			return
		}

		routes, err := eng.FindOptimalRoutes(r.Context(), tokenIn, tokenOut, amountIn)
		if err != nil {
			logger.Error("route request failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if routes == nil {
			routes = []*domain.OptimizedRoute{}
		}
		writeJSON(w, http.StatusOK, routes)
	}
}

func handleOutcomes(logger *zap.Logger, eng *engine.Engine) http.HandlerFunc {
	type outcomeRequest struct {
		RouteID   string `json:"routeId"`
		Signature string `json:"signature"`
		Success   bool   `json:"success"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("POST required"))
			return
		}
		var req outcomeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("bad body: %w", err))
			return
		}
		if req.RouteID == "" || req.Signature == "" {
			writeError(w, http.StatusBadRequest, fmt.Errorf("routeId and signature are required"))
			return
		}

		err := eng.RecordOutcome(r.Context(), domain.RouteOutcome{
			RouteID:    req.RouteID,
			Signature:  req.Signature,
			Success:    req.Success,
			RecordedAt: time.Now(),
		})
		if err != nil {
			if errors.Is(err, storage.ErrDuplicateKey) {
				writeError(w, http.StatusConflict, err)
				return
			}
			logger.Error("outcome record failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
