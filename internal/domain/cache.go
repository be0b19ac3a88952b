package domain

import (
	"context"
	"time"
)

// OrderbookCache mirrors the live book outside the process.
type OrderbookCache interface {
	SetSnapshot(ctx context.Context, snap *OrderbookSnapshot) error
	GetSnapshot(ctx context.Context, key string) (*OrderbookSnapshot, error)
}

// MetricsCache holds the most recent estimate for readers in other processes.
type MetricsCache interface {
	SetLatest(ctx context.Context, m CostMetrics) error
	GetLatest(ctx context.Context, key string) (CostMetrics, error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// SignalBus provides pub/sub fan-out of display events and capped durable
// streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan Message, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
	StreamRevRange(ctx context.Context, stream string, count int) ([]StreamMessage, error)
}

// StreamMessage is a single entry from a durable stream.
type StreamMessage struct {
	ID      string `json:"id"`
	Payload []byte `json:"payload"`
}

// Message is one payload received from a SignalBus subscription. Channel is
// the concrete channel it was published on, which differs from the
// subscription when a pattern was used.
type Message struct {
	Channel string
	Payload []byte
}
