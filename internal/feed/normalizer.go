// Package feed turns raw order book frames into published snapshots and runs
// the streaming connection that delivers them.
package feed

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"

	"github.com/alanyoungcy/tradesim/internal/domain"
	"github.com/shopspring/decimal"
)

// wireBook is the frame layout. Fields stay raw so that presence and JSON
// type can be checked before anything is converted.
type wireBook struct {
	Timestamp json.RawMessage   `json:"timestamp"`
	Exchange  json.RawMessage   `json:"exchange"`
	Symbol    json.RawMessage   `json:"symbol"`
	Asks      []json.RawMessage `json:"asks"`
	Bids      []json.RawMessage `json:"bids"`
}

// Normalizer validates frames of the form
//
//	{"timestamp": "...", "exchange": "OKX", "symbol": "BTC-USDT-SWAP",
//	 "asks": [["95445.5", "9.06"], ...], "bids": [["95445.4", "1104.23"], ...]}
//
// Levels are [price, size] pairs of decimal strings; trailing elements are
// ignored. Asks must ascend and bids descend; levels are never re-sorted.
type Normalizer struct{}

// NewNormalizer returns a Normalizer.
func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// Normalize parses one frame. Any problem rejects the whole frame with an
// error wrapping domain.ErrMalformedMessage.
func (n *Normalizer) Normalize(raw []byte) (*domain.OrderbookSnapshot, error) {
	var w wireBook
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, malformed("decode: %v", err)
	}

	ts, err := timestampText(w.Timestamp)
	if err != nil {
		return nil, err
	}
	venue, err := requiredString("exchange", w.Exchange)
	if err != nil {
		return nil, err
	}
	symbol, err := requiredString("symbol", w.Symbol)
	if err != nil {
		return nil, err
	}
	if w.Asks == nil {
		return nil, malformed("missing field %q", "asks")
	}
	if w.Bids == nil {
		return nil, malformed("missing field %q", "bids")
	}

	asks, err := parseSide("asks", w.Asks)
	if err != nil {
		return nil, err
	}
	bids, err := parseSide("bids", w.Bids)
	if err != nil {
		return nil, err
	}

	for i := 1; i < len(asks); i++ {
		if asks[i].Price < asks[i-1].Price {
			return nil, unsorted("asks", i)
		}
	}
	for i := 1; i < len(bids); i++ {
		if bids[i].Price > bids[i-1].Price {
			return nil, unsorted("bids", i)
		}
	}

	return &domain.OrderbookSnapshot{
		Timestamp:  ts,
		Venue:      venue,
		Instrument: symbol,
		Asks:       asks,
		Bids:       bids,
	}, nil
}

// timestampText keeps the producer's timestamp verbatim: strings are
// unquoted, numbers keep their literal text.
func timestampText(raw json.RawMessage) (string, error) {
	if isAbsent(raw) {
		return "", malformed("missing field %q", "timestamp")
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", malformed("timestamp: %v", err)
		}
		return s, nil
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		var num json.Number
		if err := json.Unmarshal(raw, &num); err != nil {
			return "", malformed("timestamp: %v", err)
		}
		return num.String(), nil
	default:
		return "", malformed("timestamp: want string or number, got %s", raw)
	}
}

func requiredString(field string, raw json.RawMessage) (string, error) {
	if isAbsent(raw) {
		return "", malformed("missing field %q", field)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", malformed("%s: want string, got %s", field, raw)
	}
	return s, nil
}

func parseSide(side string, raw []json.RawMessage) ([]domain.PriceLevel, error) {
	levels := make([]domain.PriceLevel, 0, len(raw))
	for i, r := range raw {
		var fields []json.RawMessage
		if err := json.Unmarshal(r, &fields); err != nil || len(fields) < 2 {
			return nil, malformed("%s[%d]: want [price, size], got %s", side, i, r)
		}
		price, err := decimalField(fields[0])
		if err != nil {
			return nil, malformed("%s[%d] price: %v", side, i, err)
		}
		size, err := decimalField(fields[1])
		if err != nil {
			return nil, malformed("%s[%d] size: %v", side, i, err)
		}
		// Checked after conversion: extreme exponents become Inf or 0.
		p, sz := price.InexactFloat64(), size.InexactFloat64()
		if math.IsInf(p, 0) || p <= 0 {
			return nil, malformed("%s[%d] price must be finite and > 0, got %s", side, i, price)
		}
		if math.IsInf(sz, 0) || sz < 0 {
			return nil, malformed("%s[%d] size must be finite and >= 0, got %s", side, i, size)
		}
		levels = append(levels, domain.PriceLevel{Price: p, Size: sz})
	}
	return levels, nil
}

func decimalField(raw json.RawMessage) (decimal.Decimal, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return decimal.Decimal{}, fmt.Errorf("want decimal string, got %s", raw)
	}
	return decimal.NewFromString(s)
}

func isAbsent(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("feed: %w: %s", domain.ErrMalformedMessage, fmt.Sprintf(format, args...))
}

func unsorted(side string, i int) error {
	return fmt.Errorf("feed: %w: %w: %s[%d]", domain.ErrMalformedMessage, domain.ErrUnsortedBook, side, i)
}
