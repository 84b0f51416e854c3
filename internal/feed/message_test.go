package feed

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/costsim/internal/domain"
)

func TestDecodeValidMessage(t *testing.T) {
	raw := []byte(`{
		"timestamp": "2025-05-04T10:39:13Z",
		"exchange": "OKX",
		"symbol": "BTC-USDT-SWAP",
		"asks": [["95445.5", "9.06"], ["95448.0", "2.05"]],
		"bids": [["95445.4", "1104.23"], ["95445.3", "0.02"]]
	}`)

	update, err := Decode(raw)
	require.NoError(t, err)

	assert.Equal(t, time.Date(2025, 5, 4, 10, 39, 13, 0, time.UTC), update.Timestamp)

	require.Len(t, update.Asks, 2)
	assert.Equal(t, domain.PriceLevel{Price: 95445.5, Quantity: 9.06}, update.Asks[0])

	require.Len(t, update.Bids, 2)
	assert.Equal(t, domain.PriceLevel{Price: 95445.4, Quantity: 1104.23}, update.Bids[0])
}

func TestDecodeEmptySidesAllowed(t *testing.T) {
	raw := []byte(`{"timestamp": "2025-05-04T10:39:13Z", "bids": [], "asks": []}`)

	update, err := Decode(raw)
	require.NoError(t, err)
	assert.Empty(t, update.Bids)
	assert.Empty(t, update.Asks)
}

func TestDecodeRejectsMalformed(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"not json", `{`},
		{"missing timestamp", `{"bids": [], "asks": []}`},
		{"missing bids", `{"timestamp": "2025-05-04T10:39:13Z", "asks": []}`},
		{"missing asks", `{"timestamp": "2025-05-04T10:39:13Z", "bids": []}`},
		{"bad timestamp", `{"timestamp": "not-a-time", "bids": [], "asks": []}`},
		{"non-numeric price", `{"timestamp": "2025-05-04T10:39:13Z", "bids": [["abc", "1"]], "asks": []}`},
		{"non-numeric quantity", `{"timestamp": "2025-05-04T10:39:13Z", "bids": [], "asks": [["100", "xyz"]]}`},
		{"short level pair", `{"timestamp": "2025-05-04T10:39:13Z", "bids": [["100"]], "asks": []}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode([]byte(tc.raw))
			assert.ErrorIs(t, err, domain.ErrDecode)
		})
	}
}
