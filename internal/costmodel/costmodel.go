// Package costmodel estimates the execution cost of a hypothetical buy order
// against an order book snapshot.
//
// Every function here is pure and reads only the snapshot it is handed, so
// estimates can run concurrently with the publication of newer books. Only
// the buy side is modelled: the order walks the asks. Depth beyond what the
// feed delivered is unknown, and orders larger than the visible ask notional
// are charged a flat penalty on the remainder, which understates the cost of
// large orders against truncated books.
package costmodel

import (
	"math"

	"github.com/alanyoungcy/tradesim/internal/domain"
)

const (
	// UnfilledPenaltyRate is charged on the part of the order that does not
	// fit in the visible asks.
	UnfilledPenaltyRate = 0.01

	// DepthScale turns visible size into a tradable volume proxy for impact.
	DepthScale = 100

	// FallbackDepthFactor times the quantity stands in for depth when the book
	// shows no size at all.
	FallbackDepthFactor = 1000

	// MaxMakerProportion caps the share of the order assumed to rest as maker.
	MaxMakerProportion = 0.8

	makerLiquidityDivisor = 10
)

// MidPrice returns the mean of best bid and best ask. When either side is
// empty it returns 0 and FlagNoMidPrice.
func MidPrice(snap *domain.OrderbookSnapshot) (float64, domain.EstimateFlags) {
	mid := snap.MidPrice()
	if mid <= 0 {
		return 0, domain.FlagNoMidPrice
	}
	return mid, 0
}

// Slippage walks the asks in order, consuming quantity (in quote currency)
// against each level's notional, and returns the cost relative to mid as a
// fraction of quantity.
//
// Without asks, or without a mid price, slippage is reported as 0 and the
// returned flags say so.
func Slippage(asks []domain.PriceLevel, mid, quantity float64) (float64, domain.EstimateFlags) {
	if len(asks) == 0 {
		return 0, domain.FlagEmptyAsks
	}
	if mid <= 0 {
		return 0, domain.FlagNoMidPrice
	}

	var flags domain.EstimateFlags
	remaining := quantity
	cost := 0.0
	for _, lvl := range asks {
		notional := lvl.Notional()
		premium := lvl.Price/mid - 1
		if remaining <= notional {
			cost += remaining * premium
			remaining = 0
			break
		}
		cost += notional * premium
		remaining -= notional
	}

	if remaining > 0 {
		cost += remaining * UnfilledPenaltyRate
		flags |= domain.FlagBookExhausted
	}
	return cost / quantity, flags
}

// Fees is the taker fee for quantity at the tier's rate.
func Fees(quantity float64, tier domain.FeeTier) float64 {
	return quantity * tier.Rate()
}

// MarketImpact applies the square-root impact model:
//
//	impact = volatility * sqrt((quantity / mid) / depth)
//
// where depth is DepthScale times the total visible size on both sides. A
// book with no visible size uses quantity*FallbackDepthFactor instead. Impact
// needs a mid price to convert quantity into base units; without one it is 0
// with FlagImpactUnavailable.
func MarketImpact(snap *domain.OrderbookSnapshot, mid, quantity, volatility float64) (float64, domain.EstimateFlags) {
	if mid <= 0 {
		return 0, domain.FlagImpactUnavailable
	}

	var flags domain.EstimateFlags
	depth := DepthScale * (totalSize(snap.Asks) + totalSize(snap.Bids))
	if depth <= 0 {
		depth = quantity * FallbackDepthFactor
		flags |= domain.FlagFallbackDepth
	}

	base := quantity / mid
	return volatility * math.Sqrt(base/depth), flags
}

// MakerTaker estimates the share of the order that could rest as a maker and
// returns it together with the maker/taker ratio. The proportion scales with
// the number of two-sided levels and the visible notional, capped at
// MaxMakerProportion so the ratio stays finite.
func MakerTaker(snap *domain.OrderbookSnapshot, quantity float64) (proportion, ratio float64) {
	levels := float64(snap.Depth())
	liquidity := totalNotional(snap.Asks) + totalNotional(snap.Bids)

	proportion = min(MaxMakerProportion, levels*liquidity/(quantity*makerLiquidityDivisor))
	return proportion, proportion / (1 - proportion)
}

// NetCost combines the fractional costs and the fee into one currency amount.
func NetCost(slippage, impact, quantity, fees float64) float64 {
	return (slippage+impact)*quantity + fees
}

func totalSize(levels []domain.PriceLevel) float64 {
	sum := 0.0
	for _, l := range levels {
		sum += l.Size
	}
	return sum
}

func totalNotional(levels []domain.PriceLevel) float64 {
	sum := 0.0
	for _, l := range levels {
		sum += l.Notional()
	}
	return sum
}
