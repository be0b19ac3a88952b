package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/alanyoungcy/tradesim/internal/domain"
	"github.com/redis/go-redis/v9"
)

// OrderbookCache implements domain.OrderbookCache. Every snapshot is a full
// replacement written in one MULTI/EXEC, so readers never see a mix of two
// books.
//
// Key schema, where {key} is "venue:instrument":
//
//	book:{key}:snap - JSON snapshot with every level
//	book:{key}:bbo  - hash with "bid", "ask" and "mid", for external readers
//	book:{key}:meta - hash with "ts" (producer timestamp), "received_at"
//	                  (unix nanos) and "levels"
type OrderbookCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewOrderbookCache creates an OrderbookCache. Keys expire after ttl without
// a new snapshot; zero keeps them forever.
func NewOrderbookCache(c *Client, ttl time.Duration) *OrderbookCache {
	return &OrderbookCache{rdb: c.Underlying(), ttl: ttl}
}

func bookSnapKey(key string) string { return "book:" + key + ":snap" }
func bookBBOKey(key string) string  { return "book:" + key + ":bbo" }
func bookMetaKey(key string) string { return "book:" + key + ":meta" }

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// SetSnapshot atomically replaces the stored book.
func (oc *OrderbookCache) SetSnapshot(ctx context.Context, snap *domain.OrderbookSnapshot) error {
	key := snap.Key()
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("redis: marshal snapshot %s: %w", key, err)
	}

	snapKey, bboKey, metaKey := bookSnapKey(key), bookBBOKey(key), bookMetaKey(key)

	pipe := oc.rdb.TxPipeline()
	pipe.Del(ctx, bboKey, metaKey)
	pipe.Set(ctx, snapKey, data, oc.ttl)

	bbo := map[string]any{"mid": formatFloat(snap.MidPrice())}
	if bid, ok := snap.BestBid(); ok {
		bbo["bid"] = formatFloat(bid.Price)
	}
	if ask, ok := snap.BestAsk(); ok {
		bbo["ask"] = formatFloat(ask.Price)
	}
	pipe.HSet(ctx, bboKey, bbo)
	pipe.HSet(ctx, metaKey, map[string]any{
		"ts":          snap.Timestamp,
		"received_at": strconv.FormatInt(snap.ReceivedAt.UnixNano(), 10),
		"levels":      strconv.Itoa(len(snap.Asks) + len(snap.Bids)),
	})
	if oc.ttl > 0 {
		pipe.Expire(ctx, bboKey, oc.ttl)
		pipe.Expire(ctx, metaKey, oc.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set orderbook snapshot %s: %w", key, err)
	}
	return nil
}

// GetSnapshot returns the stored book, or domain.ErrNotFound.
func (oc *OrderbookCache) GetSnapshot(ctx context.Context, key string) (*domain.OrderbookSnapshot, error) {
	data, err := oc.rdb.Get(ctx, bookSnapKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis: get orderbook snapshot %s: %w", key, err)
	}

	var snap domain.OrderbookSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("redis: decode orderbook snapshot %s: %w", key, err)
	}
	return &snap, nil
}

// Compile-time interface check.
var _ domain.OrderbookCache = (*OrderbookCache)(nil)
