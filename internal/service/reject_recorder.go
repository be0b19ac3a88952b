package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/alanyoungcy/tradesim/internal/domain"
)

const (
	rejectQueueSize = 64
	maxStoredFrame  = 4096
)

// RejectRecorder keeps recently rejected feed frames in a capped stream so
// operators can inspect them. OnParseError never blocks: frames arriving
// while the queue is full are dropped and counted.
type RejectRecorder struct {
	bus     domain.SignalBus
	queue   chan domain.RejectedFrame
	dropped atomic.Uint64
	now     func() time.Time
	logger  *slog.Logger
}

// NewRejectRecorder creates a RejectRecorder writing to bus.
func NewRejectRecorder(bus domain.SignalBus, logger *slog.Logger) *RejectRecorder {
	return &RejectRecorder{
		bus:    bus,
		queue:  make(chan domain.RejectedFrame, rejectQueueSize),
		now:    time.Now,
		logger: logger.With(slog.String("component", "reject_recorder")),
	}
}

// OnParseError matches feed.ParseErrorHandler.
func (r *RejectRecorder) OnParseError(raw []byte, err error) {
	raw = truncateFrame(raw, maxStoredFrame)
	rec := domain.RejectedFrame{
		Error:      err.Error(),
		Raw:        string(raw),
		RejectedAt: r.now().UTC(),
	}
	select {
	case r.queue <- rec:
	default:
		r.dropped.Add(1)
	}
}

// truncateFrame cuts raw to at most n bytes without splitting a UTF-8
// sequence.
func truncateFrame(raw []byte, n int) []byte {
	if len(raw) <= n {
		return raw
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(raw[cut]) {
		cut--
	}
	return raw[:cut]
}

// Dropped counts frames that did not fit in the queue.
func (r *RejectRecorder) Dropped() uint64 {
	return r.dropped.Load()
}

// Run drains the queue into the rejects stream until ctx is cancelled.
func (r *RejectRecorder) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case rec := <-r.queue:
			payload, err := json.Marshal(rec)
			if err != nil {
				continue
			}
			if err := r.bus.StreamAppend(ctx, domain.StreamFeedRejects, payload); err != nil {
				r.logger.WarnContext(ctx, "store rejected frame failed", slog.String("error", err.Error()))
			}
		}
	}
}
