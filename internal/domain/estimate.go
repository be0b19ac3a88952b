package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// FeeTier is an exchange fee discount tier.
type FeeTier string

const (
	FeeTierVIP1 FeeTier = "VIP1"
	FeeTierVIP2 FeeTier = "VIP2"
	FeeTierVIP3 FeeTier = "VIP3"
	FeeTierVIP4 FeeTier = "VIP4"
	FeeTierVIP5 FeeTier = "VIP5"
)

// FeeTiers lists the known tiers from least to most favourable.
var FeeTiers = []FeeTier{FeeTierVIP1, FeeTierVIP2, FeeTierVIP3, FeeTierVIP4, FeeTierVIP5}

// Rate returns the taker fee rate for the tier. Unknown tiers pay the VIP1
// rate, the highest one.
func (t FeeTier) Rate() float64 {
	switch t {
	case FeeTierVIP2:
		return 0.0007
	case FeeTierVIP3:
		return 0.0006
	case FeeTierVIP4:
		return 0.0005
	case FeeTierVIP5:
		return 0.0004
	default:
		return 0.0008
	}
}

// Known reports whether t is one of the enumerated tiers.
func (t FeeTier) Known() bool {
	for _, k := range FeeTiers {
		if t == k {
			return true
		}
	}
	return false
}

// ParseFeeTier normalises s ("vip3", " VIP3 ") into a FeeTier. The second
// result is false when the tier is not recognised; the returned value then
// still prices at the VIP1 rate.
func ParseFeeTier(s string) (FeeTier, bool) {
	t := FeeTier(strings.ToUpper(strings.TrimSpace(s)))
	return t, t.Known()
}

// TradeParameters describe the hypothetical order being costed. Only a buy
// walking the ask side is modelled.
type TradeParameters struct {
	QuantityUSD float64 `json:"quantity_usd"`
	Volatility  float64 `json:"volatility"`
	FeeTier     FeeTier `json:"fee_tier"`
}

// Validate rejects parameters that would produce negative or non-finite
// metrics.
func (p TradeParameters) Validate() error {
	if !(p.QuantityUSD > 0) || math.IsInf(p.QuantityUSD, 0) {
		return fmt.Errorf("%w: quantity_usd must be a finite value > 0, got %v", ErrInvalidParameters, p.QuantityUSD)
	}
	if !(p.Volatility > 0) || math.IsInf(p.Volatility, 0) {
		return fmt.Errorf("%w: volatility must be a finite value > 0, got %v", ErrInvalidParameters, p.Volatility)
	}
	return nil
}

// EstimateFlags marks the approximations and degenerate paths taken while
// computing an estimate.
type EstimateFlags uint16

const (
	// FlagNoMidPrice: one side of the book is empty, so there is no mid price.
	FlagNoMidPrice EstimateFlags = 1 << iota
	// FlagEmptyAsks: nothing to walk; slippage is reported as zero.
	FlagEmptyAsks
	// FlagBookExhausted: the order is larger than the visible ask notional and
	// the remainder was charged the flat penalty rate.
	FlagBookExhausted
	// FlagImpactUnavailable: impact needs a mid price and was reported as zero.
	FlagImpactUnavailable
	// FlagCrossedBook: best ask below best bid.
	FlagCrossedBook
	// FlagFallbackDepth: no visible size, impact used the quantity fallback.
	FlagFallbackDepth
)

var flagNames = []struct {
	flag EstimateFlags
	name string
}{
	{FlagNoMidPrice, "no_mid_price"},
	{FlagEmptyAsks, "empty_asks"},
	{FlagBookExhausted, "book_exhausted"},
	{FlagImpactUnavailable, "impact_unavailable"},
	{FlagCrossedBook, "crossed_book"},
	{FlagFallbackDepth, "fallback_depth"},
}

// Has reports whether every bit in f2 is set.
func (f EstimateFlags) Has(f2 EstimateFlags) bool {
	return f&f2 == f2
}

// Degenerate reports whether the estimate rests on a book that cannot be
// priced normally. Walking off the visible book alone is not degenerate.
func (f EstimateFlags) Degenerate() bool {
	return f&^FlagBookExhausted != 0
}

// Names lists the set flags in declaration order.
func (f EstimateFlags) Names() []string {
	names := []string{}
	for _, fn := range flagNames {
		if f.Has(fn.flag) {
			names = append(names, fn.name)
		}
	}
	return names
}

func (f EstimateFlags) String() string {
	return strings.Join(f.Names(), "|")
}

// MarshalJSON renders the flags as a list of names.
func (f EstimateFlags) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.Names())
}

// UnmarshalJSON accepts the list form produced by MarshalJSON.
func (f *EstimateFlags) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	*f = 0
	for _, n := range names {
		for _, fn := range flagNames {
			if fn.name == n {
				*f |= fn.flag
			}
		}
	}
	return nil
}

// CostMetrics is the output of one cost estimation. Every field is computed
// from scratch for each estimate.
type CostMetrics struct {
	ID                   string          `json:"id"`
	ExpectedSlippage     float64         `json:"expected_slippage"`
	ExpectedFees         float64         `json:"expected_fees"`
	ExpectedMarketImpact float64         `json:"expected_market_impact"`
	NetCost              float64         `json:"net_cost"`
	MakerProportion      float64         `json:"maker_proportion"`
	MakerTakerRatio      float64         `json:"maker_taker_ratio"`
	MidPrice             float64         `json:"mid_price"`
	Flags                EstimateFlags   `json:"flags"`
	Params               TradeParameters `json:"params"`
	Venue                string          `json:"exchange"`
	Instrument           string          `json:"symbol"`
	BookTimestamp        string          `json:"book_timestamp"`
	ComputedAt           time.Time       `json:"computed_at"`
	Latency              time.Duration   `json:"latency_ns"`
}

// NetCostBps expresses net cost relative to notional in basis points.
func (m CostMetrics) NetCostBps() float64 {
	if m.Params.QuantityUSD <= 0 {
		return 0
	}
	return m.NetCost / m.Params.QuantityUSD * 10_000
}
