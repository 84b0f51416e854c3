package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/costsim/internal/domain"
)

func TestFeeOKXTakerTiers(t *testing.T) {
	c := NewFeeCalculator()

	// 50k notional lands on the zero-floor threshold rate 0.0008.
	fee, err := c.Calculate(50_000, "OKX", 1, false)
	require.NoError(t, err)
	assert.InDelta(t, 40.0, fee, 1e-9)

	// Tier 3 applies a 0.8 multiplier.
	fee, err = c.Calculate(50_000, "OKX", 3, false)
	require.NoError(t, err)
	assert.InDelta(t, 32.0, fee, 1e-9)
}

func TestFeeVolumeThresholds(t *testing.T) {
	c := NewFeeCalculator()

	cases := []struct {
		notional float64
		rate     float64
	}{
		{50_000, 0.0008},
		{100_000, 0.00075},
		{999_999, 0.00075},
		{1_000_000, 0.0007},
		{10_000_000, 0.0006},
		{50_000_000, 0.0006},
	}
	for _, tc := range cases {
		fee, err := c.Calculate(tc.notional, "OKX", 1, false)
		require.NoError(t, err)
		assert.InDelta(t, tc.rate*tc.notional, fee, 1e-6, "notional %v", tc.notional)
	}
}

func TestFeeEffectiveRateNonIncreasing(t *testing.T) {
	c := NewFeeCalculator()

	for _, exchange := range []string{"OKX", "Binance"} {
		prev := 1.0
		for _, notional := range []float64{1_000, 100_000, 1_000_000, 10_000_000, 200_000_000} {
			fee, err := c.Calculate(notional, exchange, 1, false)
			require.NoError(t, err)
			rate := fee / notional
			assert.LessOrEqual(t, rate, prev, "%s rate must not rise with volume", exchange)
			prev = rate
		}
	}
}

func TestFeeBinanceSchedule(t *testing.T) {
	c := NewFeeCalculator()

	fee, err := c.Calculate(1_000, "Binance", 1, false)
	require.NoError(t, err)
	assert.InDelta(t, 0.0002*1_000, fee, 1e-9)

	fee, err = c.Calculate(150_000_000, "Binance", 1, false)
	require.NoError(t, err)
	assert.InDelta(t, 0.0001*150_000_000, fee, 1e-3)
}

func TestFeeMakerRateWithoutThresholdHit(t *testing.T) {
	c := NewFeeCalculator()
	c.RegisterExchange("Deribit", 0.0001, 0.0005, nil)

	// With only the auto-added zero floor (at taker rate), a maker trade still
	// resolves through the threshold scan.
	fee, err := c.Calculate(10_000, "Deribit", 1, true)
	require.NoError(t, err)
	assert.InDelta(t, 0.0005*10_000, fee, 1e-9)
}

func TestFeeTierClamping(t *testing.T) {
	c := NewFeeCalculator()

	// Tier below 1 behaves like tier 1.
	low, err := c.Calculate(50_000, "OKX", 0, false)
	require.NoError(t, err)
	base, err := c.Calculate(50_000, "OKX", 1, false)
	require.NoError(t, err)
	assert.Equal(t, base, low)

	// Tiers 4 and beyond cap the discount at 0.7.
	tier4, err := c.Calculate(50_000, "OKX", 4, false)
	require.NoError(t, err)
	assert.InDelta(t, 0.7*base, tier4, 1e-9)

	tier9, err := c.Calculate(50_000, "OKX", 9, false)
	require.NoError(t, err)
	assert.Equal(t, tier4, tier9)
}

func TestFeeZeroNotional(t *testing.T) {
	c := NewFeeCalculator()

	fee, err := c.Calculate(0, "OKX", 1, false)
	require.NoError(t, err)
	assert.Zero(t, fee)

	fee, err = c.Calculate(-100, "nowhere", 1, false)
	require.NoError(t, err, "non-positive notional short-circuits the exchange lookup")
	assert.Zero(t, fee)
}

func TestFeeUnsupportedExchange(t *testing.T) {
	c := NewFeeCalculator()

	_, err := c.Calculate(1_000, "Kraken", 1, false)
	assert.ErrorIs(t, err, domain.ErrUnsupportedExchange)

	_, err = c.Schedule("Kraken")
	assert.ErrorIs(t, err, domain.ErrUnsupportedExchange)
}

func TestFeeExchangeNameNormalization(t *testing.T) {
	c := NewFeeCalculator()

	a, err := c.Calculate(50_000, "okx", 1, false)
	require.NoError(t, err)
	b, err := c.Calculate(50_000, "  OKX ", 1, false)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestRegisterExchangeNormalizesThresholds(t *testing.T) {
	c := NewFeeCalculator()
	c.RegisterExchange("Bybit", 0.0001, 0.0006, []VolumeThreshold{
		{MinNotional: 1_000, Rate: 0.0005},
		{MinNotional: 1_000_000, Rate: 0.0003},
	})

	sched, err := c.Schedule("Bybit")
	require.NoError(t, err)

	require.Len(t, sched.Thresholds, 3, "a zero floor is appended")
	assert.Equal(t, 1_000_000.0, sched.Thresholds[0].MinNotional)
	assert.Equal(t, 0.0, sched.Thresholds[2].MinNotional)
	assert.Equal(t, 0.0006, sched.Thresholds[2].Rate)

	// Below every explicit threshold the floor (taker) rate applies.
	fee, err := c.Calculate(500, "Bybit", 1, false)
	require.NoError(t, err)
	assert.InDelta(t, 0.0006*500, fee, 1e-9)
}
