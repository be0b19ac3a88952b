package feed

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/tradesim/internal/domain"
)

// maxLoggedPayload bounds how much of a rejected frame is logged.
const maxLoggedPayload = 256

// Publisher receives accepted snapshots. book.State satisfies it.
type Publisher interface {
	Publish(*domain.OrderbookSnapshot)
}

// ParseErrorHandler is told about every rejected frame.
type ParseErrorHandler func(raw []byte, err error)

// Ingestor normalizes frames and publishes the accepted ones. A rejected
// frame leaves the published state untouched.
type Ingestor struct {
	normalizer   *Normalizer
	state        Publisher
	onParseError ParseErrorHandler
	now          func() time.Time
	logger       *slog.Logger

	accepted atomic.Uint64
	rejected atomic.Uint64
	lastErr  atomic.Pointer[string]
}

// NewIngestor creates an Ingestor publishing into state. onParseError may be
// nil.
func NewIngestor(state Publisher, onParseError ParseErrorHandler, logger *slog.Logger) *Ingestor {
	return &Ingestor{
		normalizer:   NewNormalizer(),
		state:        state,
		onParseError: onParseError,
		now:          time.Now,
		logger:       logger.With(slog.String("component", "ingestor")),
	}
}

// Handle processes one frame. The returned error only describes the rejected
// frame; the caller should carry on with the next one.
func (in *Ingestor) Handle(ctx context.Context, raw []byte) error {
	snap, err := in.normalizer.Normalize(raw)
	if err != nil {
		in.rejected.Add(1)
		msg := err.Error()
		in.lastErr.Store(&msg)
		in.logger.WarnContext(ctx, "rejected feed message",
			slog.String("error", msg),
			slog.String("payload", truncate(raw, maxLoggedPayload)),
		)
		if in.onParseError != nil {
			in.onParseError(raw, err)
		}
		return err
	}

	snap.ReceivedAt = in.now()
	in.state.Publish(snap)
	in.accepted.Add(1)
	return nil
}

// Accepted counts published frames.
func (in *Ingestor) Accepted() uint64 { return in.accepted.Load() }

// Rejected counts dropped frames.
func (in *Ingestor) Rejected() uint64 { return in.rejected.Load() }

// LastError is the most recent rejection reason, or "".
func (in *Ingestor) LastError() string {
	if p := in.lastErr.Load(); p != nil {
		return *p
	}
	return ""
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
