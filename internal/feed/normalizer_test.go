package feed

import (
	"errors"
	"testing"

	"github.com/alanyoungcy/tradesim/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validFrame = `{
	"timestamp": "2025-05-04T10:39:13Z",
	"exchange": "OKX",
	"symbol": "BTC-USDT-SWAP",
	"asks": [["95445.5", "9.06"], ["95448", "2.05"]],
	"bids": [["95445.4", "1104.23"], ["95445.3", "0.02"]]
}`

func TestNormalize_Valid(t *testing.T) {
	snap, err := NewNormalizer().Normalize([]byte(validFrame))
	require.NoError(t, err)

	assert.Equal(t, "2025-05-04T10:39:13Z", snap.Timestamp)
	assert.Equal(t, "OKX", snap.Venue)
	assert.Equal(t, "BTC-USDT-SWAP", snap.Instrument)
	assert.Equal(t, []domain.PriceLevel{{Price: 95445.5, Size: 9.06}, {Price: 95448, Size: 2.05}}, snap.Asks)
	assert.Equal(t, []domain.PriceLevel{{Price: 95445.4, Size: 1104.23}, {Price: 95445.3, Size: 0.02}}, snap.Bids)
}

func TestNormalize_TimestampRoundTrips(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"string", `"2025-05-04T10:39:13.123456Z"`, "2025-05-04T10:39:13.123456Z"},
		{"epoch millis", `1714819153123`, "1714819153123"},
		{"fractional epoch", `1714819153.123`, "1714819153.123"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame := `{"timestamp":` + tt.raw + `,"exchange":"x","symbol":"y","asks":[],"bids":[]}`
			snap, err := NewNormalizer().Normalize([]byte(frame))
			require.NoError(t, err)
			assert.Equal(t, tt.want, snap.Timestamp)
		})
	}
}

func TestNormalize_EmptySidesAccepted(t *testing.T) {
	snap, err := NewNormalizer().Normalize([]byte(`{"timestamp":"t","exchange":"x","symbol":"y","asks":[],"bids":[["1","1"]]}`))
	require.NoError(t, err)
	assert.Empty(t, snap.Asks)
	assert.Len(t, snap.Bids, 1)
}

func TestNormalize_ExtraLevelFieldsIgnored(t *testing.T) {
	snap, err := NewNormalizer().Normalize([]byte(`{"timestamp":"t","exchange":"x","symbol":"y","asks":[["10","1","0","4"]],"bids":[]}`))
	require.NoError(t, err)
	assert.Equal(t, []domain.PriceLevel{{Price: 10, Size: 1}}, snap.Asks)
}

func TestNormalize_ZeroSizeAccepted(t *testing.T) {
	_, err := NewNormalizer().Normalize([]byte(`{"timestamp":"t","exchange":"x","symbol":"y","asks":[["10","0"]],"bids":[]}`))
	assert.NoError(t, err)
}

func TestNormalize_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		frame string
	}{
		{"not json", `{"timestamp":`},
		{"not an object", `[1,2]`},
		{"missing timestamp", `{"exchange":"x","symbol":"y","asks":[],"bids":[]}`},
		{"null timestamp", `{"timestamp":null,"exchange":"x","symbol":"y","asks":[],"bids":[]}`},
		{"bool timestamp", `{"timestamp":true,"exchange":"x","symbol":"y","asks":[],"bids":[]}`},
		{"missing exchange", `{"timestamp":"t","symbol":"y","asks":[],"bids":[]}`},
		{"numeric symbol", `{"timestamp":"t","exchange":"x","symbol":7,"asks":[],"bids":[]}`},
		{"missing asks", `{"timestamp":"t","exchange":"x","symbol":"y","bids":[]}`},
		{"missing bids", `{"timestamp":"t","exchange":"x","symbol":"y","asks":[]}`},
		{"level too short", `{"timestamp":"t","exchange":"x","symbol":"y","asks":[["1"]],"bids":[]}`},
		{"level not array", `{"timestamp":"t","exchange":"x","symbol":"y","asks":["1"],"bids":[]}`},
		{"numeric price", `{"timestamp":"t","exchange":"x","symbol":"y","asks":[[1,"1"]],"bids":[]}`},
		{"non numeric size", `{"timestamp":"t","exchange":"x","symbol":"y","asks":[["1","abc"]],"bids":[]}`},
		{"nan price", `{"timestamp":"t","exchange":"x","symbol":"y","asks":[["NaN","1"]],"bids":[]}`},
		{"empty price", `{"timestamp":"t","exchange":"x","symbol":"y","asks":[["","1"]],"bids":[]}`},
		{"zero price", `{"timestamp":"t","exchange":"x","symbol":"y","asks":[["0","1"]],"bids":[]}`},
		{"negative price", `{"timestamp":"t","exchange":"x","symbol":"y","asks":[],"bids":[["-1","1"]]}`},
		{"negative size", `{"timestamp":"t","exchange":"x","symbol":"y","asks":[["1","-0.5"]],"bids":[]}`},
		{"bad later level", `{"timestamp":"t","exchange":"x","symbol":"y","asks":[["1","1"],["2","x"]],"bids":[]}`},
		{"price overflows float", `{"timestamp":"t","exchange":"x","symbol":"y","asks":[["1e400","1"]],"bids":[]}`},
		{"negative price overflows float", `{"timestamp":"t","exchange":"x","symbol":"y","asks":[],"bids":[["-1e400","1"]]}`},
		{"price underflows to zero", `{"timestamp":"t","exchange":"x","symbol":"y","asks":[["1e-400","1"]],"bids":[]}`},
		{"size overflows float", `{"timestamp":"t","exchange":"x","symbol":"y","asks":[["100","1e400"]],"bids":[]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap, err := NewNormalizer().Normalize([]byte(tt.frame))
			require.Error(t, err)
			assert.Nil(t, snap)
			assert.True(t, errors.Is(err, domain.ErrMalformedMessage), "got %v", err)
		})
	}
}

func TestNormalize_RejectsUnsorted(t *testing.T) {
	frames := []string{
		`{"timestamp":"t","exchange":"x","symbol":"y","asks":[["2","1"],["1","1"]],"bids":[]}`,
		`{"timestamp":"t","exchange":"x","symbol":"y","asks":[],"bids":[["1","1"],["2","1"]]}`,
	}
	for _, f := range frames {
		_, err := NewNormalizer().Normalize([]byte(f))
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrUnsortedBook))
		assert.True(t, errors.Is(err, domain.ErrMalformedMessage))
	}

	// Equal prices are not out of order.
	_, err := NewNormalizer().Normalize([]byte(`{"timestamp":"t","exchange":"x","symbol":"y","asks":[["1","1"],["1","2"]],"bids":[]}`))
	assert.NoError(t, err)
}
