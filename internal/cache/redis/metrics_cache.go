package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/alanyoungcy/tradesim/internal/domain"
	"github.com/redis/go-redis/v9"
)

// MetricsCache implements domain.MetricsCache as one JSON string per book at
// "estimate:{venue:instrument}:latest".
type MetricsCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewMetricsCache creates a MetricsCache. Entries expire after ttl; zero
// keeps them forever.
func NewMetricsCache(c *Client, ttl time.Duration) *MetricsCache {
	return &MetricsCache{rdb: c.Underlying(), ttl: ttl}
}

func latestEstimateKey(key string) string {
	return "estimate:" + key + ":latest"
}

// SetLatest stores m as the newest estimate for its book.
func (mc *MetricsCache) SetLatest(ctx context.Context, m domain.CostMetrics) error {
	key := domain.BookKey(m.Venue, m.Instrument)
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("redis: marshal estimate %s: %w", key, err)
	}
	if err := mc.rdb.Set(ctx, latestEstimateKey(key), data, mc.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set latest estimate %s: %w", key, err)
	}
	return nil
}

// GetLatest returns the newest estimate for key, or domain.ErrNotFound.
func (mc *MetricsCache) GetLatest(ctx context.Context, key string) (domain.CostMetrics, error) {
	data, err := mc.rdb.Get(ctx, latestEstimateKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.CostMetrics{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.CostMetrics{}, fmt.Errorf("redis: get latest estimate %s: %w", key, err)
	}
	var m domain.CostMetrics
	if err := json.Unmarshal(data, &m); err != nil {
		return domain.CostMetrics{}, fmt.Errorf("redis: decode estimate %s: %w", key, err)
	}
	return m, nil
}

// Compile-time interface check.
var _ domain.MetricsCache = (*MetricsCache)(nil)
