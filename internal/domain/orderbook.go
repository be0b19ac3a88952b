package domain

import "time"

// PriceLevel is a single price+size entry in an orderbook.
type PriceLevel struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// Notional returns price * size, the quote-currency value resting at the level.
func (l PriceLevel) Notional() float64 {
	return l.Price * l.Size
}

// OrderbookSnapshot is one complete replacement of a venue/instrument book.
// Asks are ascending by price, bids descending. Once published a snapshot is
// shared between goroutines and must not be modified.
type OrderbookSnapshot struct {
	// Timestamp is the producer's event time, kept verbatim.
	Timestamp  string       `json:"timestamp"`
	Venue      string       `json:"exchange"`
	Instrument string       `json:"symbol"`
	Asks       []PriceLevel `json:"asks"`
	Bids       []PriceLevel `json:"bids"`
	ReceivedAt time.Time    `json:"received_at"`
}

// BookKey is the cache key for a venue's instrument, "venue:instrument".
func BookKey(venue, instrument string) string {
	return venue + ":" + instrument
}

// Key identifies the book for caches and channels.
func (s *OrderbookSnapshot) Key() string {
	return BookKey(s.Venue, s.Instrument)
}

// BestAsk returns the lowest ask, if any.
func (s *OrderbookSnapshot) BestAsk() (PriceLevel, bool) {
	if len(s.Asks) == 0 {
		return PriceLevel{}, false
	}
	return s.Asks[0], true
}

// BestBid returns the highest bid, if any.
func (s *OrderbookSnapshot) BestBid() (PriceLevel, bool) {
	if len(s.Bids) == 0 {
		return PriceLevel{}, false
	}
	return s.Bids[0], true
}

// MidPrice is the mean of best bid and best ask, or 0 when either side is
// empty. Zero means "no valid mid price", never a real price.
func (s *OrderbookSnapshot) MidPrice() float64 {
	ask, okAsk := s.BestAsk()
	bid, okBid := s.BestBid()
	if !okAsk || !okBid {
		return 0
	}
	return (ask.Price + bid.Price) / 2
}

// Crossed reports whether the best ask is below the best bid.
func (s *OrderbookSnapshot) Crossed() bool {
	ask, okAsk := s.BestAsk()
	bid, okBid := s.BestBid()
	return okAsk && okBid && ask.Price < bid.Price
}

// Depth is the number of levels present on both sides.
func (s *OrderbookSnapshot) Depth() int {
	return min(len(s.Asks), len(s.Bids))
}

// Top returns a copy truncated to at most n levels per side. It is meant for
// display; cost estimation always uses every level received.
func (s *OrderbookSnapshot) Top(n int) OrderbookSnapshot {
	if n < 0 {
		n = 0
	}
	out := *s
	out.Asks = append([]PriceLevel(nil), s.Asks[:min(n, len(s.Asks))]...)
	out.Bids = append([]PriceLevel(nil), s.Bids[:min(n, len(s.Bids))]...)
	return out
}
