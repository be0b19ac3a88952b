package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradesim/internal/domain"
)

// newIntegrationClient connects to TRADESIM_TEST_POSTGRES_DSN and applies
// migrations. Tests are skipped when it is unset.
func newIntegrationClient(t *testing.T) *Client {
	t.Helper()
	dsn := os.Getenv("TRADESIM_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TRADESIM_TEST_POSTGRES_DSN not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c, err := New(ctx, ClientConfig{DSN: dsn, MaxConns: 4})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	require.NoError(t, c.RunMigrations(ctx))
	require.NoError(t, c.RunMigrations(ctx), "migrations are idempotent")

	_, err = c.Pool().Exec(ctx, `TRUNCATE estimates, audit_log`)
	require.NoError(t, err)
	return c
}

func sampleEstimate(computedAt time.Time) domain.CostMetrics {
	return domain.CostMetrics{
		ID:                   uuid.NewString(),
		ExpectedSlippage:     0.0050251,
		ExpectedFees:         0.12,
		ExpectedMarketImpact: 0.0017722,
		NetCost:              0.1267973,
		MakerProportion:      0.8,
		MakerTakerRatio:      4,
		MidPrice:             99.5,
		Flags:                domain.FlagBookExhausted,
		Params:               domain.TradeParameters{QuantityUSD: 150, Volatility: 0.02, FeeTier: domain.FeeTierVIP1},
		Venue:                "OKX",
		Instrument:           "BTC-USDT-SWAP",
		BookTimestamp:        "2025-05-04T10:39:13Z",
		ComputedAt:           computedAt.UTC().Truncate(time.Microsecond),
		Latency:              1234 * time.Nanosecond,
	}
}

func TestEstimateStore_Integration(t *testing.T) {
	c := newIntegrationClient(t)
	store := NewEstimateStore(c.Pool())
	ctx := context.Background()

	base := time.Date(2025, 5, 4, 10, 0, 0, 0, time.UTC)
	var ids []string
	for i := range 5 {
		m := sampleEstimate(base.Add(time.Duration(i) * time.Minute))
		ids = append(ids, m.ID)
		require.NoError(t, store.Insert(ctx, m))
	}

	first := sampleEstimate(base)
	first.ID = ids[0]
	require.NoError(t, store.Insert(ctx, first), "duplicate insert is a no-op")

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	got, err := store.GetByID(ctx, ids[2])
	require.NoError(t, err)
	assert.Equal(t, domain.FlagBookExhausted, got.Flags)
	assert.Equal(t, domain.FeeTierVIP1, got.Params.FeeTier)
	assert.Equal(t, 1234*time.Nanosecond, got.Latency)
	assert.True(t, base.Add(2*time.Minute).Equal(got.ComputedAt))

	_, err = store.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	page, err := store.List(ctx, domain.ListOpts{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, ids[4], page[0].ID, "newest first")

	old, err := store.ListBefore(ctx, base.Add(3*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, old, 3)
	assert.Equal(t, ids[0], old[0].ID, "oldest first")

	deleted, err := store.DeleteByIDs(ctx, []string{ids[0], ids[1], "missing"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	deleted, err = store.DeleteByIDs(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestAuditStore_Integration(t *testing.T) {
	c := newIntegrationClient(t)
	store := NewAuditStore(c.Pool())
	ctx := context.Background()

	require.NoError(t, store.Log(ctx, "params_changed", map[string]any{"quantity_usd": 200.0}))
	require.NoError(t, store.Log(ctx, "archive_run", map[string]any{"archived": 3.0}))

	entries, err := store.List(ctx, domain.ListOpts{Limit: 10})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "archive_run", entries[0].Event)
	assert.Equal(t, 200.0, entries[1].Detail["quantity_usd"])
}
