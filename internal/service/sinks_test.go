package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alanyoungcy/tradesim/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsPublisher(t *testing.T) {
	cache := &fakeMetricsCache{}
	bus := &fakeBus{}
	pub := NewMetricsPublisher(cache, bus, discardLogger())

	m := domain.CostMetrics{ID: "e1", Venue: "OKX", Instrument: "BTC-USDT-SWAP", NetCost: 1.5}
	require.NoError(t, pub.OnMetrics(context.Background(), m))

	got, err := cache.GetLatest(context.Background(), "OKX:BTC-USDT-SWAP")
	require.NoError(t, err)
	assert.Equal(t, "e1", got.ID)

	msgs := bus.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.ChannelEstimate, msgs[0].channel)

	var evt struct {
		Event string             `json:"event"`
		Data  domain.CostMetrics `json:"data"`
	}
	require.NoError(t, json.Unmarshal(msgs[0].payload, &evt))
	assert.Equal(t, "estimate", evt.Event)
	assert.Equal(t, 1.5, evt.Data.NetCost)
}

func TestHistoryRecorder_Interval(t *testing.T) {
	store := &fakeEstimateStore{}
	rec := NewHistoryRecorder(store, time.Second)
	t0 := time.Unix(1000, 0)

	for i, offset := range []time.Duration{0, 200 * time.Millisecond, 900 * time.Millisecond, time.Second, 1500 * time.Millisecond, 2 * time.Second} {
		m := domain.CostMetrics{ID: string(rune('a' + i)), ComputedAt: t0.Add(offset)}
		require.NoError(t, rec.OnMetrics(context.Background(), m))
	}

	n, _ := store.Count(context.Background())
	assert.Equal(t, int64(3), n)
	rows, _ := store.List(context.Background(), domain.ListOpts{})
	assert.Equal(t, "a", rows[0].ID)
	assert.Equal(t, "d", rows[1].ID)
	assert.Equal(t, "f", rows[2].ID)
}

func TestHistoryRecorder_ZeroIntervalRecordsAll(t *testing.T) {
	store := &fakeEstimateStore{}
	rec := NewHistoryRecorder(store, 0)
	ts := time.Unix(1000, 0)
	for i := 0; i < 3; i++ {
		require.NoError(t, rec.OnMetrics(context.Background(), domain.CostMetrics{ComputedAt: ts}))
	}
	n, _ := store.Count(context.Background())
	assert.Equal(t, int64(3), n)
}

type staticStats domain.FeedStats

func (s staticStats) FeedStats() domain.FeedStats { return domain.FeedStats(s) }

func TestStatusService(t *testing.T) {
	bus := &fakeBus{}
	svc := NewStatusService("full", "OKX", "BTC-USDT-SWAP",
		staticStats{Connected: true, Accepted: 7},
		func() uint64 { return 7 }, func() uint64 { return 3 },
		bus, discardLogger())

	st := svc.Status()
	assert.Equal(t, "full", st.Mode)
	assert.Equal(t, uint64(7), st.BookVersion)
	assert.Equal(t, uint64(3), st.Estimates)
	assert.True(t, st.Feed.Connected)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx, 5*time.Millisecond) }()
	require.Eventually(t, func() bool { return len(bus.messages()) > 0 }, time.Second, time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, domain.ChannelStatus, bus.messages()[0].channel)
}
