package costmodel

import (
	"fmt"
	"math"
	"time"

	"github.com/alanyoungcy/tradesim/internal/domain"
	"github.com/google/uuid"
)

// Model runs the full estimate. It holds no state between calls beyond its
// clock and ID source, both of which tests may replace.
type Model struct {
	now   func() time.Time
	newID func() string
}

// Option configures a Model.
type Option func(*Model)

// WithClock overrides the time source used for ComputedAt and Latency.
func WithClock(now func() time.Time) Option {
	return func(m *Model) { m.now = now }
}

// WithIDGenerator overrides the estimate ID source.
func WithIDGenerator(newID func() string) Option {
	return func(m *Model) { m.newID = newID }
}

// New returns a Model using the wall clock and random UUIDs.
func New(opts ...Option) *Model {
	m := &Model{
		now:   time.Now,
		newID: func() string { return uuid.New().String() },
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Compute recomputes every metric for params against snap. It returns
// ErrNoSnapshot for a nil snapshot and a wrapped ErrInvalidParameters when
// params do not validate. Degenerate books still produce metrics; the Flags
// field records which fallbacks were taken. A book whose levels overflow
// float64 arithmetic yields ErrNonFiniteEstimate instead of metrics.
func (m *Model) Compute(snap *domain.OrderbookSnapshot, params domain.TradeParameters) (domain.CostMetrics, error) {
	if snap == nil {
		return domain.CostMetrics{}, domain.ErrNoSnapshot
	}
	if err := params.Validate(); err != nil {
		return domain.CostMetrics{}, fmt.Errorf("costmodel: compute: %w", err)
	}

	start := m.now()
	q := params.QuantityUSD

	mid, flags := MidPrice(snap)
	if snap.Crossed() {
		flags |= domain.FlagCrossedBook
	}

	slippage, f := Slippage(snap.Asks, mid, q)
	flags |= f
	impact, f := MarketImpact(snap, mid, q, params.Volatility)
	flags |= f
	fees := Fees(q, params.FeeTier)
	proportion, ratio := MakerTaker(snap, q)

	net := NetCost(slippage, impact, q, fees)
	for _, v := range [...]float64{mid, slippage, impact, fees, net, proportion, ratio} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return domain.CostMetrics{}, fmt.Errorf("costmodel: compute: %w", domain.ErrNonFiniteEstimate)
		}
	}

	end := m.now()
	return domain.CostMetrics{
		ID:                   m.newID(),
		ExpectedSlippage:     slippage,
		ExpectedFees:         fees,
		ExpectedMarketImpact: impact,
		NetCost:              net,
		MakerProportion:      proportion,
		MakerTakerRatio:      ratio,
		MidPrice:             mid,
		Flags:                flags,
		Params:               params,
		Venue:                snap.Venue,
		Instrument:           snap.Instrument,
		BookTimestamp:        snap.Timestamp,
		ComputedAt:           end,
		Latency:              end.Sub(start),
	}, nil
}
