package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/alanyoungcy/tradesim/internal/domain"
)

// FeedStatsSource reports ingestion statistics.
type FeedStatsSource interface {
	FeedStats() domain.FeedStats
}

// StatusService assembles ServiceStatus for the API and publishes it
// periodically on the status channel.
type StatusService struct {
	mode       string
	venue      string
	instrument string
	started    time.Time

	feed      FeedStatsSource
	version   func() uint64
	estimates func() uint64
	bus       domain.SignalBus
	logger    *slog.Logger
}

// NewStatusService creates a StatusService. bus may be nil when nothing
// listens for status events.
func NewStatusService(
	mode, venue, instrument string,
	feed FeedStatsSource,
	version, estimates func() uint64,
	bus domain.SignalBus,
	logger *slog.Logger,
) *StatusService {
	return &StatusService{
		mode:       mode,
		venue:      venue,
		instrument: instrument,
		started:    time.Now(),
		feed:       feed,
		version:    version,
		estimates:  estimates,
		bus:        bus,
		logger:     logger.With(slog.String("component", "status")),
	}
}

// Status returns the current status.
func (s *StatusService) Status() domain.ServiceStatus {
	return domain.ServiceStatus{
		Mode:          s.mode,
		Venue:         s.venue,
		Instrument:    s.instrument,
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		BookVersion:   s.version(),
		Estimates:     s.estimates(),
		Feed:          s.feed.FeedStats(),
	}
}

// Run publishes the status every interval until ctx is cancelled.
func (s *StatusService) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			st := s.Status()
			s.logger.DebugContext(ctx, "status",
				slog.Bool("feed_connected", st.Feed.Connected),
				slog.Uint64("book_version", st.BookVersion),
				slog.Uint64("estimates", st.Estimates),
				slog.Uint64("rejected", st.Feed.Rejected),
			)
			if s.bus == nil {
				continue
			}
			payload, err := json.Marshal(map[string]any{"event": "status", "data": st})
			if err != nil {
				continue
			}
			if err := s.bus.Publish(ctx, domain.ChannelStatus, payload); err != nil {
				s.logger.WarnContext(ctx, "publish status failed", slog.String("error", err.Error()))
			}
		}
	}
}
