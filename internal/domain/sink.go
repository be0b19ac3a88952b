package domain

import "context"

// MetricsSink receives every estimate the orchestrator produces. Sinks are
// called sequentially from the compute loop and should return quickly.
type MetricsSink interface {
	OnMetrics(ctx context.Context, m CostMetrics) error
}

// MetricsSinkFunc adapts a function to MetricsSink.
type MetricsSinkFunc func(ctx context.Context, m CostMetrics) error

func (f MetricsSinkFunc) OnMetrics(ctx context.Context, m CostMetrics) error {
	return f(ctx, m)
}

// Notifier sends operator notifications.
type Notifier interface {
	Notify(ctx context.Context, event, message string) error
}
