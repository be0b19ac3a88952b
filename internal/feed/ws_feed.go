package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/tradesim/internal/domain"
	"github.com/alanyoungcy/tradesim/internal/platform/gomarket"
)

// Stream is one streaming connection. gomarket.WSClient satisfies it.
type Stream interface {
	Connect(ctx context.Context) error
	OnMessage(h gomarket.MessageHandler)
	Done() <-chan struct{}
	Err() error
	Close() error
}

// StreamFactory creates a fresh Stream for each connection attempt.
type StreamFactory func(url string) Stream

// FrameHandler consumes raw frames. Errors are per-frame and never stop the
// feed.
type FrameHandler interface {
	Handle(ctx context.Context, raw []byte) error
}

// WSFeedConfig controls reconnect and staleness behaviour.
type WSFeedConfig struct {
	URL                  string
	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration
	MaxReconnectAttempts int // 0 means retry forever
	StaleAfter           time.Duration
}

// WSFeed keeps a stream connected and hands every frame to a FrameHandler.
// It reconnects with exponential backoff and drops connections that go quiet
// for longer than StaleAfter.
type WSFeed struct {
	cfg       WSFeedConfig
	handler   FrameHandler
	newStream StreamFactory
	notifier  domain.Notifier
	now       func() time.Time
	logger    *slog.Logger

	connected   atomic.Bool
	lastMessage atomic.Int64 // unix nanos
	latency     atomic.Int64 // nanos between the last two frames
	reconnects  atomic.Uint64
}

// NewWSFeed creates a feed over gomarket websocket connections. notifier may
// be nil.
func NewWSFeed(cfg WSFeedConfig, handler FrameHandler, notifier domain.Notifier, logger *slog.Logger) *WSFeed {
	return &WSFeed{
		cfg:      cfg,
		handler:  handler,
		notifier: notifier,
		newStream: func(url string) Stream {
			return gomarket.NewWSClient(url)
		},
		now:    time.Now,
		logger: logger.With(slog.String("component", "ws_feed")),
	}
}

// Run connects and keeps the feed alive until ctx is cancelled or the
// reconnect budget is spent, in which case it returns domain.ErrFeedGaveUp.
// The attempt counter resets after any connection that delivered a frame.
func (f *WSFeed) Run(ctx context.Context) error {
	f.logger.InfoContext(ctx, "feed starting", slog.String("url", f.cfg.URL))
	defer f.logger.Info("feed stopped")

	attempt := 0
	for {
		delivered, err := f.runConnection(ctx)
		f.connected.Store(false)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if delivered {
			attempt = 0
		}
		attempt++

		if f.cfg.MaxReconnectAttempts > 0 && attempt > f.cfg.MaxReconnectAttempts {
			f.notify(ctx, "feed_down", fmt.Sprintf("giving up on %s after %d attempts: %v", f.cfg.URL, attempt-1, err))
			return fmt.Errorf("feed: %s: %w", f.cfg.URL, domain.ErrFeedGaveUp)
		}

		delay := Backoff(attempt-1, f.cfg.ReconnectBaseDelay, f.cfg.ReconnectMaxDelay)
		f.logger.WarnContext(ctx, "feed disconnected, reconnecting",
			slog.String("error", errString(err)),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
		)
		if delivered {
			f.notify(ctx, "feed_down", fmt.Sprintf("feed %s disconnected: %v", f.cfg.URL, err))
		}
		f.reconnects.Add(1)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// runConnection serves one connection until it drops, goes stale, or ctx is
// cancelled. delivered reports whether any frame arrived.
func (f *WSFeed) runConnection(ctx context.Context) (delivered bool, err error) {
	stream := f.newStream(f.cfg.URL)
	defer stream.Close()

	var got atomic.Bool
	var lastFrame atomic.Int64
	lastFrame.Store(f.now().UnixNano())

	stream.OnMessage(func(raw []byte) {
		now := f.now().UnixNano()
		if prev := lastFrame.Swap(now); got.Load() {
			f.latency.Store(now - prev)
		}
		f.lastMessage.Store(now)
		got.Store(true)
		_ = f.handler.Handle(ctx, raw)
	})

	if err := stream.Connect(ctx); err != nil {
		return false, err
	}
	f.connected.Store(true)
	f.logger.InfoContext(ctx, "feed connected", slog.String("url", f.cfg.URL))

	check := f.cfg.StaleAfter / 2
	if check <= 0 {
		check = time.Second
	}
	ticker := time.NewTicker(check)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return got.Load(), ctx.Err()
		case <-stream.Done():
			return got.Load(), stream.Err()
		case <-ticker.C:
			if f.cfg.StaleAfter <= 0 {
				continue
			}
			idle := time.Duration(f.now().UnixNano() - lastFrame.Load())
			if idle > f.cfg.StaleAfter {
				return got.Load(), fmt.Errorf("feed: no message for %s: %w", idle.Round(time.Millisecond), domain.ErrWSDisconnect)
			}
		}
	}
}

func (f *WSFeed) notify(ctx context.Context, event, msg string) {
	if f.notifier == nil {
		return
	}
	if err := f.notifier.Notify(ctx, event, msg); err != nil && !errors.Is(err, context.Canceled) {
		f.logger.WarnContext(ctx, "feed notification failed", slog.String("error", err.Error()))
	}
}

// Connected reports whether a connection is currently up.
func (f *WSFeed) Connected() bool { return f.connected.Load() }

// URL is the configured endpoint.
func (f *WSFeed) URL() string { return f.cfg.URL }

// LastMessageAt is the receive time of the newest frame.
func (f *WSFeed) LastMessageAt() time.Time {
	n := f.lastMessage.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// MessageLatency is the gap between the two most recent frames on the
// current connection.
func (f *WSFeed) MessageLatency() time.Duration {
	return time.Duration(f.latency.Load())
}

// Reconnects counts reconnect attempts since start.
func (f *WSFeed) Reconnects() uint64 { return f.reconnects.Load() }

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
