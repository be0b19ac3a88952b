package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/tradesim/internal/book"
	"github.com/alanyoungcy/tradesim/internal/costmodel"
	"github.com/alanyoungcy/tradesim/internal/domain"
	"github.com/alanyoungcy/tradesim/internal/feed"
	"github.com/alanyoungcy/tradesim/internal/notify"
	"github.com/alanyoungcy/tradesim/internal/pipeline"
	"github.com/alanyoungcy/tradesim/internal/server"
	"github.com/alanyoungcy/tradesim/internal/server/handler"
	"github.com/alanyoungcy/tradesim/internal/server/ws"
	"github.com/alanyoungcy/tradesim/internal/service"
)

// core is the ingestion and estimation path shared by every mode.
type core struct {
	state     *book.State
	ingestor  *feed.Ingestor
	feed      *feed.WSFeed
	estimator *service.Estimator
	status    *service.StatusService
	mirror    *service.BookService    // nil without Redis
	rejects   *service.RejectRecorder // nil without Redis
	archiver  *pipeline.Archiver      // nil unless archiving is enabled
}

// buildCore wires feed -> book state -> estimator -> sinks. Nothing is
// started.
func (a *App) buildCore(deps *Dependencies) *core {
	c := &core{state: book.NewState()}

	var notifier domain.Notifier
	if deps.Notifier != nil {
		notifier = deps.Notifier
	}

	c.estimator = service.NewEstimator(
		service.EstimatorConfig{
			InitialParams:     a.cfg.Trade.Params(),
			AlertThresholdBps: a.cfg.Alert.NetCostBps,
			AlertCooldown:     a.cfg.Alert.Cooldown.Duration,
		},
		costmodel.New(),
		c.state,
		deps.AuditStore,
		notifier,
		a.logger,
	)
	c.state.Subscribe(c.estimator.OnBookUpdated)

	var onParseError feed.ParseErrorHandler
	if deps.SignalBus != nil {
		c.mirror = service.NewBookService(deps.BookCache, deps.SignalBus, a.logger)
		c.state.Subscribe(c.mirror.OnBookUpdated)
		c.estimator.AddSink(service.NewMetricsPublisher(deps.MetricsCache, deps.SignalBus, a.logger))

		c.rejects = service.NewRejectRecorder(deps.SignalBus, a.logger)
		onParseError = c.rejects.OnParseError
	}
	if deps.EstimateStore != nil {
		c.estimator.AddSink(service.NewHistoryRecorder(deps.EstimateStore, a.cfg.Postgres.HistoryInterval.Duration))
	}

	c.ingestor = feed.NewIngestor(c.state, onParseError, a.logger)
	c.feed = feed.NewWSFeed(feed.WSFeedConfig{
		URL:                  a.cfg.Feed.URL,
		ReconnectBaseDelay:   a.cfg.Feed.ReconnectBaseDelay.Duration,
		ReconnectMaxDelay:    a.cfg.Feed.ReconnectMaxDelay.Duration,
		MaxReconnectAttempts: a.cfg.Feed.MaxReconnectAttempts,
		StaleAfter:           a.cfg.Feed.StaleAfter.Duration,
	}, c.ingestor, notifier, a.logger)

	c.status = service.NewStatusService(
		a.cfg.Mode, a.cfg.Feed.Venue, a.cfg.Feed.Instrument,
		feed.Stats{Feed: c.feed, Ingestor: c.ingestor},
		c.state.Version, c.estimator.Computed,
		deps.SignalBus,
		a.logger,
	)

	if deps.Archiver != nil {
		c.archiver = pipeline.NewArchiver(deps.Archiver, deps.LockManager, a.cfg.Archive.Retention(), a.logger)
	}
	return c
}

// start launches the core goroutines on g.
func (a *App) start(ctx context.Context, g *errgroup.Group, c *core) {
	g.Go(func() error { return c.estimator.Run(ctx) })
	g.Go(func() error { return c.status.Run(ctx, a.cfg.Server.StatusInterval.Duration) })
	if c.mirror != nil {
		g.Go(func() error { return c.mirror.Run(ctx) })
	}
	if c.rejects != nil {
		g.Go(func() error { return c.rejects.Run(ctx) })
	}
	if c.archiver != nil {
		g.Go(func() error { return c.archiver.RunCron(ctx, a.cfg.Archive.Cron) })
	}
	g.Go(func() error {
		if err := c.feed.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("feed: %w", err)
		}
		return ctx.Err()
	})
}

// HeadlessMode runs ingestion, estimation and the Redis/Postgres sinks
// without the HTTP server. Each estimate is also logged.
func (a *App) HeadlessMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting headless mode")

	g, ctx := errgroup.WithContext(ctx)

	c := a.buildCore(deps)
	c.estimator.AddSink(domain.MetricsSinkFunc(func(ctx context.Context, m domain.CostMetrics) error {
		a.logger.InfoContext(ctx, "estimate",
			slog.String("id", m.ID),
			slog.Float64("slippage", m.ExpectedSlippage),
			slog.Float64("fees", m.ExpectedFees),
			slog.Float64("impact", m.ExpectedMarketImpact),
			slog.Float64("net_cost", m.NetCost),
			slog.Float64("net_cost_bps", m.NetCostBps()),
			slog.Float64("maker_proportion", m.MakerProportion),
			slog.String("flags", m.Flags.String()),
			slog.Duration("latency", m.Latency),
		)
		return nil
	}))
	a.start(ctx, g, c)
	a.announce(ctx, deps)

	return g.Wait()
}

// FullMode runs everything in headless mode plus the HTTP API and the
// websocket hub.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	c := a.buildCore(deps)
	a.start(ctx, g, c)
	a.startHTTPServer(ctx, g, deps, c)
	a.announce(ctx, deps)

	return g.Wait()
}

// startHTTPServer adds the websocket hub and the HTTP server to g. The server
// is shut down gracefully when the context is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, c *core) {
	handlers := server.Handlers{
		Health:   handler.NewHealthHandler(deps.Pingers, a.logger),
		Status:   handler.NewStatusHandler(c.status),
		Book:     handler.NewBookHandler(c.state),
		Estimate: handler.NewEstimateHandler(c.estimator, a.logger),
	}

	if c.mirror != nil {
		key := domain.BookKey(a.cfg.Feed.Venue, a.cfg.Feed.Instrument)
		handlers.Book.WithMirror(c.mirror, key, a.logger)
		handlers.Estimate.WithMirror(deps.MetricsCache, key)
	}

	var hub *ws.Hub
	if deps.SignalBus != nil {
		hub = ws.NewHub(deps.SignalBus, c.status.Status, a.cfg.Server.CORSOrigins, a.logger)
		g.Go(func() error { return hub.Run(ctx) })
		handlers.Feed = handler.NewFeedHandler(deps.SignalBus, a.logger)
	}
	if deps.EstimateStore != nil {
		handlers.History = handler.NewHistoryHandler(deps.EstimateStore, deps.AuditStore, a.logger)
	}
	if c.archiver != nil && deps.BlobReader != nil {
		handlers.Archive = handler.NewArchiveHandler(deps.BlobReader, c.archiver, a.logger)
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		a.logger.InfoContext(ctx, "HTTP server listening",
			slog.Int("port", a.cfg.Server.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", a.cfg.Server.Port)))
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// announce sends the startup notification without blocking startup.
func (a *App) announce(ctx context.Context, deps *Dependencies) {
	if deps.Notifier == nil || !deps.Notifier.Enabled() {
		return
	}
	msg := fmt.Sprintf("tradesim started in %s mode: %s %s, %.2f USD %s",
		a.cfg.Mode, a.cfg.Feed.Venue, a.cfg.Feed.Instrument,
		a.cfg.Trade.QuantityUSD, a.cfg.Trade.FeeTier)
	go func() {
		if err := deps.Notifier.Notify(ctx, notify.EventStartup, msg); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.WarnContext(ctx, "startup notification failed", slog.String("error", err.Error()))
		}
	}()
}
