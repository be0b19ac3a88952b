package app

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradesim/internal/config"
	"github.com/alanyoungcy/tradesim/internal/domain"
)

const scenarioFrame = `{
	"timestamp": "2025-05-04T10:39:13Z",
	"exchange": "OKX",
	"symbol": "BTC-USDT-SWAP",
	"asks": [["100", "2"], ["101", "3"]],
	"bids": [["99", "5"], ["98", "2"]]
}`

func testConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Mode = config.ModeHeadless
	cfg.Redis.Enabled = false
	cfg.Trade = config.TradeConfig{QuantityUSD: 150, Volatility: 0.05, FeeTier: "VIP1"}
	return &cfg
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBuildCore_WithoutBackends(t *testing.T) {
	a := New(testConfig(), discardLogger())
	c := a.buildCore(&Dependencies{})
	assert.Nil(t, c.mirror)
	assert.Nil(t, c.rejects)
	assert.Nil(t, c.archiver)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = c.estimator.Run(ctx) }()

	require.NoError(t, c.ingestor.Handle(ctx, []byte(scenarioFrame)))
	assert.Error(t, c.ingestor.Handle(ctx, []byte(`{"asks":"nope"}`)))

	require.Eventually(t, func() bool {
		_, ok := c.estimator.Latest()
		return ok
	}, 2*time.Second, 5*time.Millisecond)

	m, _ := c.estimator.Latest()
	assert.InDelta(t, 1.1396, m.NetCost, 1e-4)
	assert.Equal(t, "BTC-USDT-SWAP", m.Instrument)

	st := c.status.Status()
	assert.Equal(t, uint64(1), st.BookVersion)
	assert.Equal(t, uint64(1), st.Feed.Accepted)
	assert.Equal(t, uint64(1), st.Feed.Rejected)
	assert.Equal(t, config.ModeHeadless, st.Mode)
}

func TestWire_RedisOnly(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig()
	cfg.Redis.Enabled = true
	cfg.Redis.Addr = mr.Addr()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deps, cleanup, err := Wire(ctx, cfg, discardLogger())
	require.NoError(t, err)
	defer cleanup()

	assert.NotNil(t, deps.SignalBus)
	assert.NotNil(t, deps.LockManager)
	assert.Nil(t, deps.EstimateStore)
	assert.Nil(t, deps.Archiver)
	assert.NotNil(t, deps.Notifier)
	require.Contains(t, deps.Pingers, "redis")
	assert.NoError(t, deps.Pingers["redis"].Ping(ctx))

	a := New(cfg, discardLogger())
	c := a.buildCore(deps)
	require.NotNil(t, c.mirror)
	require.NotNil(t, c.rejects)

	go func() { _ = c.estimator.Run(ctx) }()
	go func() { _ = c.mirror.Run(ctx) }()
	go func() { _ = c.rejects.Run(ctx) }()

	require.NoError(t, c.ingestor.Handle(ctx, []byte(scenarioFrame)))
	_ = c.ingestor.Handle(ctx, []byte(`not json`))

	require.Eventually(t, func() bool {
		snap, err := deps.BookCache.GetSnapshot(ctx, "OKX:BTC-USDT-SWAP")
		return err == nil && len(snap.Asks) == 2
	}, 2*time.Second, 10*time.Millisecond, "book mirrored to redis")

	require.Eventually(t, func() bool {
		m, err := deps.MetricsCache.GetLatest(ctx, "OKX:BTC-USDT-SWAP")
		return err == nil && m.ExpectedFees > 0
	}, 2*time.Second, 10*time.Millisecond, "latest estimate cached")

	require.Eventually(t, func() bool {
		msgs, err := deps.SignalBus.StreamRevRange(ctx, domain.StreamFeedRejects, 10)
		return err == nil && len(msgs) == 1
	}, 2*time.Second, 10*time.Millisecond, "rejected frame recorded")
}

func TestWire_RedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig()
	cfg.Redis.Enabled = true
	cfg.Redis.Addr = mr.Addr()
	cfg.Redis.MaxRetries = -1
	mr.Close()

	_, _, err := Wire(context.Background(), cfg, discardLogger())
	assert.ErrorContains(t, err, "wire: redis")
}
