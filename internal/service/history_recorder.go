package service

import (
	"context"
	"fmt"
	"time"

	"github.com/alanyoungcy/tradesim/internal/domain"
)

// HistoryRecorder is a MetricsSink that persists estimates, at most one per
// interval. Estimates are produced for every book update, which is far more
// often than a history view needs.
type HistoryRecorder struct {
	store    domain.EstimateStore
	interval time.Duration
	last     time.Time
}

// NewHistoryRecorder creates a HistoryRecorder. An interval of zero records
// every estimate.
func NewHistoryRecorder(store domain.EstimateStore, interval time.Duration) *HistoryRecorder {
	return &HistoryRecorder{store: store, interval: interval}
}

// OnMetrics implements domain.MetricsSink. It is called only from the
// estimator loop, so it needs no locking.
func (h *HistoryRecorder) OnMetrics(ctx context.Context, m domain.CostMetrics) error {
	if !h.last.IsZero() && m.ComputedAt.Sub(h.last) < h.interval {
		return nil
	}
	if err := h.store.Insert(ctx, m); err != nil {
		return fmt.Errorf("history_recorder: insert %s: %w", m.ID, err)
	}
	h.last = m.ComputedAt
	return nil
}

var _ domain.MetricsSink = (*HistoryRecorder)(nil)
