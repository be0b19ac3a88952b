package costmodel

import (
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/tradesim/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scenarioBook() *domain.OrderbookSnapshot {
	return &domain.OrderbookSnapshot{
		Timestamp:  "2025-05-04T10:39:13Z",
		Venue:      "OKX",
		Instrument: "BTC-USDT-SWAP",
		Asks:       []domain.PriceLevel{{Price: 100, Size: 2}, {Price: 101, Size: 3}},
		Bids:       []domain.PriceLevel{{Price: 99, Size: 5}, {Price: 98, Size: 2}},
	}
}

func scenarioParams() domain.TradeParameters {
	return domain.TradeParameters{QuantityUSD: 150, Volatility: 0.05, FeeTier: domain.FeeTierVIP1}
}

func fixedModel() *Model {
	t0 := time.Date(2025, 5, 4, 10, 0, 0, 0, time.UTC)
	calls := 0
	return New(
		WithClock(func() time.Time {
			calls++
			return t0.Add(time.Duration(calls) * time.Microsecond)
		}),
		WithIDGenerator(func() string { return "est-1" }),
	)
}

func assertFinite(t *testing.T, m domain.CostMetrics) {
	t.Helper()
	for name, v := range map[string]float64{
		"slippage": m.ExpectedSlippage,
		"fees":     m.ExpectedFees,
		"impact":   m.ExpectedMarketImpact,
		"net_cost": m.NetCost,
		"ratio":    m.MakerTakerRatio,
		"mid":      m.MidPrice,
	} {
		assert.False(t, math.IsNaN(v) || math.IsInf(v, 0), "%s is %v", name, v)
	}
}

func TestCompute_Scenario(t *testing.T) {
	m, err := fixedModel().Compute(scenarioBook(), scenarioParams())
	require.NoError(t, err)

	assert.Equal(t, 99.5, m.MidPrice)
	assert.InDelta(t, 0.0050251, m.ExpectedSlippage, 1e-7)
	assert.InDelta(t, 0.12, m.ExpectedFees, 1e-12)
	assert.InDelta(t, 0.0017722, m.ExpectedMarketImpact, 1e-7)
	assert.InDelta(t, 0.8, m.MakerProportion, 1e-12)
	assert.InDelta(t, 4.0, m.MakerTakerRatio, 1e-9)
	assert.InDelta(t, 1.1396, m.NetCost, 1e-4)
	assert.Equal(t, domain.EstimateFlags(0), m.Flags)

	assert.Equal(t, "est-1", m.ID)
	assert.Equal(t, "2025-05-04T10:39:13Z", m.BookTimestamp)
	assert.Equal(t, "OKX", m.Venue)
	assert.Equal(t, "BTC-USDT-SWAP", m.Instrument)
	assert.Equal(t, scenarioParams(), m.Params)
	assert.Equal(t, time.Microsecond, m.Latency)
}

func TestCompute_NetCostIsAggregate(t *testing.T) {
	m, err := New().Compute(scenarioBook(), scenarioParams())
	require.NoError(t, err)
	want := (m.ExpectedSlippage+m.ExpectedMarketImpact)*150 + m.ExpectedFees
	assert.InDelta(t, want, m.NetCost, 1e-12)
}

func TestCompute_BookExhausted(t *testing.T) {
	p := scenarioParams()
	p.QuantityUSD = 1000

	m, err := New().Compute(scenarioBook(), p)
	require.NoError(t, err)

	assert.InDelta(t, 0.0105429, m.ExpectedSlippage, 1e-7)
	assert.InDelta(t, 0.0045758, m.ExpectedMarketImpact, 1e-7)
	assert.True(t, m.Flags.Has(domain.FlagBookExhausted))
	assert.False(t, m.Flags.Degenerate())
}

func TestCompute_EmptyAsks(t *testing.T) {
	book := scenarioBook()
	book.Asks = nil

	m, err := New().Compute(book, scenarioParams())
	require.NoError(t, err)
	assertFinite(t, m)

	assert.Equal(t, 0.0, m.MidPrice)
	assert.Equal(t, 0.0, m.ExpectedSlippage)
	assert.Equal(t, 0.0, m.ExpectedMarketImpact)
	assert.True(t, m.Flags.Has(domain.FlagNoMidPrice|domain.FlagEmptyAsks|domain.FlagImpactUnavailable))
	assert.True(t, m.Flags.Degenerate())
	assert.InDelta(t, 0.12, m.NetCost, 1e-12)
}

func TestCompute_EmptyBids(t *testing.T) {
	book := scenarioBook()
	book.Bids = nil

	m, err := New().Compute(book, scenarioParams())
	require.NoError(t, err)
	assertFinite(t, m)

	assert.Equal(t, 0.0, m.ExpectedSlippage)
	assert.True(t, m.Flags.Has(domain.FlagNoMidPrice))
	assert.False(t, m.Flags.Has(domain.FlagEmptyAsks))
	assert.Equal(t, 0.0, m.MakerTakerRatio)
}

func TestCompute_EmptyBook(t *testing.T) {
	m, err := New().Compute(&domain.OrderbookSnapshot{}, scenarioParams())
	require.NoError(t, err)
	assertFinite(t, m)
	assert.Equal(t, 0.0, m.ExpectedSlippage)
	assert.Equal(t, 0.0, m.ExpectedMarketImpact)
	assert.Equal(t, 0.0, m.MakerProportion)
}

func TestCompute_CrossedBook(t *testing.T) {
	book := scenarioBook()
	book.Bids = []domain.PriceLevel{{Price: 100.5, Size: 1}}

	m, err := New().Compute(book, scenarioParams())
	require.NoError(t, err)
	assertFinite(t, m)
	assert.True(t, m.Flags.Has(domain.FlagCrossedBook))
}

func TestCompute_Errors(t *testing.T) {
	_, err := New().Compute(nil, scenarioParams())
	assert.True(t, errors.Is(err, domain.ErrNoSnapshot))

	p := scenarioParams()
	p.QuantityUSD = -5
	_, err = New().Compute(scenarioBook(), p)
	assert.True(t, errors.Is(err, domain.ErrInvalidParameters))

	p = scenarioParams()
	p.Volatility = 0
	_, err = New().Compute(scenarioBook(), p)
	assert.True(t, errors.Is(err, domain.ErrInvalidParameters))
}

func TestCompute_OverflowingBookIsRejected(t *testing.T) {
	// Each level is finite but the mid overflows float64.
	book := &domain.OrderbookSnapshot{
		Asks: []domain.PriceLevel{{Price: math.MaxFloat64, Size: 1}},
		Bids: []domain.PriceLevel{{Price: math.MaxFloat64, Size: 1}},
	}
	_, err := New().Compute(book, scenarioParams())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNonFiniteEstimate), "got %v", err)
}

func TestCompute_Idempotent(t *testing.T) {
	model := New(WithClock(func() time.Time { return time.Unix(0, 0) }), WithIDGenerator(func() string { return "x" }))
	book := scenarioBook()

	a, err := model.Compute(book, scenarioParams())
	require.NoError(t, err)
	b, err := model.Compute(book, scenarioParams())
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestCompute_ConcurrentCalls(t *testing.T) {
	model := New()
	book := scenarioBook()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m, err := model.Compute(book, scenarioParams())
			assert.NoError(t, err)
			assert.InDelta(t, 1.1396, m.NetCost, 1e-4)
		}()
	}
	wg.Wait()
}

func TestMidPrice(t *testing.T) {
	mid, flags := MidPrice(scenarioBook())
	assert.Equal(t, (100.0+99.0)/2, mid)
	assert.Zero(t, flags)

	mid, flags = MidPrice(&domain.OrderbookSnapshot{Asks: []domain.PriceLevel{{Price: 1, Size: 1}}})
	assert.Zero(t, mid)
	assert.Equal(t, domain.FlagNoMidPrice, flags)
}

func TestSlippage_StopsAtFillingLevel(t *testing.T) {
	asks := []domain.PriceLevel{{Price: 100, Size: 2}, {Price: 200, Size: 100}}
	// 200 of notional fits in the first level; the second must not be touched.
	s, flags := Slippage(asks, 99.5, 200)
	assert.InDelta(t, 100/99.5-1, s, 1e-12)
	assert.Zero(t, flags)
}

func TestSlippage_NonNegativeAboveMid(t *testing.T) {
	book := scenarioBook()
	for _, q := range []float64{0.01, 1, 150, 200, 350, 503, 10_000} {
		s, _ := Slippage(book.Asks, book.MidPrice(), q)
		assert.GreaterOrEqual(t, s, 0.0, "q=%v", q)
	}
}

func TestSlippage_MonotonicWithinVisibleDepth(t *testing.T) {
	book := scenarioBook()
	mid := book.MidPrice()
	prev := -1.0
	for q := 10.0; q <= 503; q += 10 {
		s, flags := Slippage(book.Asks, mid, q)
		require.False(t, flags.Has(domain.FlagBookExhausted))
		assert.GreaterOrEqual(t, s, prev-1e-15, "q=%v", q)
		prev = s
	}
}

func TestFees(t *testing.T) {
	tests := []struct {
		tier domain.FeeTier
		want float64
	}{
		{domain.FeeTierVIP1, 0.8},
		{domain.FeeTierVIP2, 0.7},
		{domain.FeeTierVIP3, 0.6},
		{domain.FeeTierVIP4, 0.5},
		{domain.FeeTierVIP5, 0.4},
		{"UNKNOWN", 0.8},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, Fees(1000, tt.tier), 1e-12, "tier %s", tt.tier)
	}
}

func TestMarketImpact_Monotonic(t *testing.T) {
	book := scenarioBook()
	mid := book.MidPrice()

	base, _ := MarketImpact(book, mid, 150, 0.05)

	higherVol, _ := MarketImpact(book, mid, 150, 0.10)
	assert.Greater(t, higherVol, base)

	larger, _ := MarketImpact(book, mid, 300, 0.05)
	assert.Greater(t, larger, base)

	deeper := scenarioBook()
	for i := range deeper.Asks {
		deeper.Asks[i].Size *= 2
	}
	for i := range deeper.Bids {
		deeper.Bids[i].Size *= 2
	}
	deeperImpact, _ := MarketImpact(deeper, deeper.MidPrice(), 150, 0.05)
	assert.Less(t, deeperImpact, base)
}

func TestMarketImpact_FallbackDepth(t *testing.T) {
	book := &domain.OrderbookSnapshot{
		Asks: []domain.PriceLevel{{Price: 100, Size: 0}},
		Bids: []domain.PriceLevel{{Price: 99, Size: 0}},
	}
	impact, flags := MarketImpact(book, 99.5, 150, 0.05)
	assert.True(t, flags.Has(domain.FlagFallbackDepth))
	assert.InDelta(t, 0.05*math.Sqrt((150/99.5)/(150*1000)), impact, 1e-15)
}

func TestMakerTaker_FiniteAndCapped(t *testing.T) {
	book := scenarioBook()
	for _, q := range []float64{0.001, 1, 150, 1e6, 1e12} {
		p, r := MakerTaker(book, q)
		assert.LessOrEqual(t, p, MaxMakerProportion)
		assert.GreaterOrEqual(t, r, 0.0)
		assert.False(t, math.IsInf(r, 0) || math.IsNaN(r))
	}

	// 2 levels * 1194 notional / (1e6 * 10)
	p, r := MakerTaker(book, 1e6)
	assert.InDelta(t, 2*1194.0/1e7, p, 1e-12)
	assert.InDelta(t, p/(1-p), r, 1e-12)
}
