package pricecache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"dex-route-engine/internal/domain"
)

// Redis is a Cache backed by Redis, for deployments where several
// engine processes share one price view. Redis owns the TTL expiry;
// the staleness check still happens client-side so maxStale can be
// stricter than the TTL.
type Redis struct {
	rdb *redis.Client
	ttl time.Duration
}

var _ Cache = (*Redis)(nil)

// NewRedis creates a Redis-backed cache.
func NewRedis(rdb *redis.Client, ttl time.Duration) *Redis {
	return &Redis{rdb: rdb, ttl: ttl}
}

func redisKey(pairKey string) string {
	return fmt.Sprintf("aggprice:%s", pairKey)
}

// Get implements Cache.
func (r *Redis) Get(ctx context.Context, pairKey string, now time.Time, maxStale time.Duration) (*domain.AggregatedPrice, bool) {
	raw, err := r.rdb.Get(ctx, redisKey(pairKey)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			// Treat backend trouble as a miss; the pipeline recomputes.
			return nil, false
		}
		return nil, false
	}

	var price domain.AggregatedPrice
	if err := json.Unmarshal(raw, &price); err != nil {
		return nil, false
	}
	if now.Sub(price.UpdatedAt) >= maxStale {
		return nil, false
	}
	return &price, true
}

// Set implements Cache.
func (r *Redis) Set(ctx context.Context, price *domain.AggregatedPrice) error {
	raw, err := json.Marshal(price)
	if err != nil {
		return fmt.Errorf("marshal aggregated price: %w", err)
	}
	if err := r.rdb.Set(ctx, redisKey(price.PairKey), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("cache aggregated price: %w", err)
	}
	return nil
}

// Close closes the underlying client.
func (r *Redis) Close() error {
	return r.rdb.Close()
}
