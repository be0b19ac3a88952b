package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/tradesim/internal/domain"
)

// MetricsPublisher is a MetricsSink that caches each estimate and announces
// it on the estimate channel.
type MetricsPublisher struct {
	cache  domain.MetricsCache
	bus    domain.SignalBus
	logger *slog.Logger
}

// NewMetricsPublisher creates a MetricsPublisher.
func NewMetricsPublisher(cache domain.MetricsCache, bus domain.SignalBus, logger *slog.Logger) *MetricsPublisher {
	return &MetricsPublisher{
		cache:  cache,
		bus:    bus,
		logger: logger.With(slog.String("component", "metrics_publisher")),
	}
}

// OnMetrics implements domain.MetricsSink.
func (p *MetricsPublisher) OnMetrics(ctx context.Context, m domain.CostMetrics) error {
	if err := p.cache.SetLatest(ctx, m); err != nil {
		return fmt.Errorf("metrics_publisher: cache latest: %w", err)
	}

	payload, err := json.Marshal(map[string]any{
		"event": "estimate",
		"data":  m,
	})
	if err != nil {
		return fmt.Errorf("metrics_publisher: marshal: %w", err)
	}
	if err := p.bus.Publish(ctx, domain.ChannelEstimate, payload); err != nil {
		return fmt.Errorf("metrics_publisher: publish: %w", err)
	}
	return nil
}

var _ domain.MetricsSink = (*MetricsPublisher)(nil)
