package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/alanyoungcy/tradesim/internal/domain"
)

// bookEventDepth is the number of levels per side sent to display clients.
const bookEventDepth = 5

// BookService mirrors published snapshots into the orderbook cache and
// announces them on the instrument's book channel. Writes happen on the Run
// goroutine; OnBookUpdated only records the newest snapshot, so a slow cache
// never holds up ingestion and intermediate snapshots may be skipped.
type BookService struct {
	cache  domain.OrderbookCache
	bus    domain.SignalBus
	logger *slog.Logger

	pending atomic.Pointer[domain.OrderbookSnapshot]
	wake    chan struct{}
	written atomic.Uint64
}

// NewBookService creates a BookService.
func NewBookService(cache domain.OrderbookCache, bus domain.SignalBus, logger *slog.Logger) *BookService {
	return &BookService{
		cache:  cache,
		bus:    bus,
		logger: logger.With(slog.String("component", "book_service")),
		wake:   make(chan struct{}, 1),
	}
}

// OnBookUpdated queues snap for mirroring, replacing any snapshot not yet
// written.
func (s *BookService) OnBookUpdated(snap *domain.OrderbookSnapshot) {
	s.pending.Store(snap)
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run writes queued snapshots until ctx is cancelled.
func (s *BookService) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.wake:
			snap := s.pending.Swap(nil)
			if snap == nil {
				continue
			}
			if err := s.HandleBookUpdate(ctx, snap); err != nil {
				s.logger.WarnContext(ctx, "mirror book update failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Written counts snapshots mirrored so far.
func (s *BookService) Written() uint64 {
	return s.written.Load()
}

// HandleBookUpdate stores the full snapshot and publishes a top-of-book
// event. A failed publish is logged but does not fail the update.
func (s *BookService) HandleBookUpdate(ctx context.Context, snap *domain.OrderbookSnapshot) error {
	if err := s.cache.SetSnapshot(ctx, snap); err != nil {
		return fmt.Errorf("book_service: set snapshot %q: %w", snap.Key(), err)
	}
	s.written.Add(1)

	top := snap.Top(bookEventDepth)
	evt := map[string]any{
		"event":       "book_update",
		"exchange":    snap.Venue,
		"symbol":      snap.Instrument,
		"timestamp":   snap.Timestamp,
		"received_at": snap.ReceivedAt,
		"mid_price":   snap.MidPrice(),
		"asks":        top.Asks,
		"bids":        top.Bids,
	}
	if ask, ok := snap.BestAsk(); ok {
		evt["best_ask"] = ask.Price
	}
	if bid, ok := snap.BestBid(); ok {
		evt["best_bid"] = bid.Price
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("book_service: marshal event: %w", err)
	}
	if pubErr := s.bus.Publish(ctx, domain.BookChannel(snap.Instrument), payload); pubErr != nil {
		s.logger.WarnContext(ctx, "publish book update event failed",
			slog.String("symbol", snap.Instrument),
			slog.String("error", pubErr.Error()),
		)
	}
	return nil
}

// GetSnapshot reads the mirrored snapshot for key ("venue:instrument").
func (s *BookService) GetSnapshot(ctx context.Context, key string) (*domain.OrderbookSnapshot, error) {
	snap, err := s.cache.GetSnapshot(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("book_service: get snapshot %q: %w", key, err)
	}
	return snap, nil
}
