package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/tradesim/internal/costmodel"
	"github.com/alanyoungcy/tradesim/internal/domain"
)

// BookSource exposes the current snapshot. book.State satisfies it.
type BookSource interface {
	Current() (*domain.OrderbookSnapshot, bool)
}

// EstimatorConfig holds the tunables for the Estimator.
type EstimatorConfig struct {
	InitialParams domain.TradeParameters
	// AlertThresholdBps fires a cost_alert when net cost relative to the
	// order size exceeds it. Zero disables alerts.
	AlertThresholdBps float64
	AlertCooldown     time.Duration
}

// Estimator recomputes cost metrics whenever the book or the trade
// parameters change. Triggers are coalesced through a single-slot channel:
// when updates arrive faster than estimates complete, intermediate books are
// skipped and the next estimate uses whatever is current.
type Estimator struct {
	cfg      EstimatorConfig
	model    *costmodel.Model
	book     BookSource
	audit    domain.AuditStore
	notifier domain.Notifier
	sinks    []domain.MetricsSink
	now      func() time.Time
	logger   *slog.Logger

	params    atomic.Pointer[domain.TradeParameters]
	latest    atomic.Pointer[domain.CostMetrics]
	computed  atomic.Uint64
	trigger   chan struct{}
	lastAlert time.Time
}

// NewEstimator creates an Estimator. audit and notifier may be nil.
func NewEstimator(
	cfg EstimatorConfig,
	model *costmodel.Model,
	book BookSource,
	audit domain.AuditStore,
	notifier domain.Notifier,
	logger *slog.Logger,
) *Estimator {
	e := &Estimator{
		cfg:      cfg,
		model:    model,
		book:     book,
		audit:    audit,
		notifier: notifier,
		now:      time.Now,
		logger:   logger.With(slog.String("component", "estimator")),
		trigger:  make(chan struct{}, 1),
	}
	p := cfg.InitialParams
	e.params.Store(&p)
	return e
}

// AddSink registers a sink for every computed estimate. It must be called
// before Run.
func (e *Estimator) AddSink(s domain.MetricsSink) {
	e.sinks = append(e.sinks, s)
}

// OnBookUpdated requests a recompute. It never blocks, so it is safe to
// subscribe directly to the book state.
func (e *Estimator) OnBookUpdated(*domain.OrderbookSnapshot) {
	e.requestRecompute()
}

func (e *Estimator) requestRecompute() {
	select {
	case e.trigger <- struct{}{}:
	default:
	}
}

// SetParameters validates and stores new parameters and requests a
// recompute. The fee tier is normalised; unknown tiers are kept and priced
// at the highest rate.
func (e *Estimator) SetParameters(ctx context.Context, p domain.TradeParameters) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("estimator: set parameters: %w", err)
	}
	tier, known := domain.ParseFeeTier(string(p.FeeTier))
	p.FeeTier = tier
	if !known {
		e.logger.WarnContext(ctx, "unknown fee tier, using highest rate",
			slog.String("fee_tier", string(tier)),
		)
	}

	prev := e.params.Swap(&p)
	e.logger.InfoContext(ctx, "trade parameters changed",
		slog.Float64("quantity_usd", p.QuantityUSD),
		slog.Float64("volatility", p.Volatility),
		slog.String("fee_tier", string(p.FeeTier)),
	)

	if e.audit != nil {
		detail := map[string]any{
			"quantity_usd":      p.QuantityUSD,
			"volatility":        p.Volatility,
			"fee_tier":          string(p.FeeTier),
			"prev_quantity_usd": prev.QuantityUSD,
			"prev_volatility":   prev.Volatility,
			"prev_fee_tier":     string(prev.FeeTier),
		}
		if err := e.audit.Log(ctx, "params_changed", detail); err != nil {
			e.logger.WarnContext(ctx, "audit log failed", slog.String("error", err.Error()))
		}
	}

	e.requestRecompute()
	return nil
}

// Parameters returns the parameters used by the compute loop.
func (e *Estimator) Parameters() domain.TradeParameters {
	return *e.params.Load()
}

// Latest returns the most recent estimate, or false before the first one.
func (e *Estimator) Latest() (domain.CostMetrics, bool) {
	m := e.latest.Load()
	if m == nil {
		return domain.CostMetrics{}, false
	}
	return *m, true
}

// Computed counts estimates produced by the compute loop.
func (e *Estimator) Computed() uint64 {
	return e.computed.Load()
}

// Estimate computes metrics for p against the current book without touching
// the stored parameters or sinks.
func (e *Estimator) Estimate(_ context.Context, p domain.TradeParameters) (domain.CostMetrics, error) {
	snap, ok := e.book.Current()
	if !ok {
		return domain.CostMetrics{}, domain.ErrNoSnapshot
	}
	tier, _ := domain.ParseFeeTier(string(p.FeeTier))
	p.FeeTier = tier
	return e.model.Compute(snap, p)
}

// Run is the compute loop. It returns when ctx is cancelled.
func (e *Estimator) Run(ctx context.Context) error {
	e.logger.InfoContext(ctx, "estimator started")
	defer e.logger.Info("estimator stopped")

	// Cover a book published before Run started.
	e.requestRecompute()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.trigger:
			e.recompute(ctx)
		}
	}
}

func (e *Estimator) recompute(ctx context.Context) {
	snap, ok := e.book.Current()
	if !ok {
		return
	}
	params := *e.params.Load()

	m, err := e.model.Compute(snap, params)
	if err != nil {
		e.logger.WarnContext(ctx, "estimate failed", slog.String("error", err.Error()))
		return
	}
	e.latest.Store(&m)
	e.computed.Add(1)

	if m.Flags.Degenerate() {
		e.logger.DebugContext(ctx, "degenerate estimate",
			slog.String("flags", m.Flags.String()),
			slog.String("book_timestamp", m.BookTimestamp),
		)
	}

	for _, s := range e.sinks {
		if err := s.OnMetrics(ctx, m); err != nil && !errors.Is(err, context.Canceled) {
			e.logger.WarnContext(ctx, "metrics sink failed", slog.String("error", err.Error()))
		}
	}

	e.maybeAlert(ctx, m)
}

func (e *Estimator) maybeAlert(ctx context.Context, m domain.CostMetrics) {
	if e.notifier == nil || e.cfg.AlertThresholdBps <= 0 {
		return
	}
	bps := m.NetCostBps()
	if bps <= e.cfg.AlertThresholdBps {
		return
	}
	now := e.now()
	if !e.lastAlert.IsZero() && now.Sub(e.lastAlert) < e.cfg.AlertCooldown {
		return
	}
	e.lastAlert = now

	msg := fmt.Sprintf("%s %s: net cost %.2f bps (%.4f on %.2f USD, tier %s) exceeds %.2f bps",
		m.Venue, m.Instrument, bps, m.NetCost, m.Params.QuantityUSD, m.Params.FeeTier, e.cfg.AlertThresholdBps)
	if err := e.notifier.Notify(ctx, "cost_alert", msg); err != nil {
		e.logger.WarnContext(ctx, "cost alert failed", slog.String("error", err.Error()))
	}
}
