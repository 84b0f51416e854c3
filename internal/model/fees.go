package model

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/alanyoungcy/costsim/internal/domain"
)

// VolumeThreshold maps a minimum 30-day notional to the discounted rate that
// applies at or above it.
type VolumeThreshold struct {
	MinNotional float64
	Rate        float64
}

// FeeSchedule is the maker/taker rate pair and volume discount table for one
// exchange. Thresholds are kept sorted descending by MinNotional and always
// include a zero floor so a rate resolves for any notional.
type FeeSchedule struct {
	MakerRate  float64
	TakerRate  float64
	Thresholds []VolumeThreshold
}

// FeeCalculator resolves trading fees from per-exchange tiered schedules.
// OKX and Binance are seeded at construction; further exchanges can be
// registered (or overwritten) at runtime.
type FeeCalculator struct {
	mu        sync.RWMutex
	schedules map[string]FeeSchedule
}

// NewFeeCalculator creates a calculator seeded with the built-in exchange
// schedules.
func NewFeeCalculator() *FeeCalculator {
	c := &FeeCalculator{
		schedules: make(map[string]FeeSchedule),
	}
	c.RegisterExchange("OKX", 0.0008, 0.0010, []VolumeThreshold{
		{MinNotional: 10_000_000, Rate: 0.0006},
		{MinNotional: 1_000_000, Rate: 0.0007},
		{MinNotional: 100_000, Rate: 0.00075},
		{MinNotional: 0, Rate: 0.0008},
	})
	c.RegisterExchange("Binance", 0.0002, 0.0004, []VolumeThreshold{
		{MinNotional: 150_000_000, Rate: 0.0001},
		{MinNotional: 50_000_000, Rate: 0.00012},
		{MinNotional: 5_000_000, Rate: 0.00016},
		{MinNotional: 0, Rate: 0.0002},
	})
	return c
}

// RegisterExchange adds or overwrites a fee schedule. The exchange name is
// case-insensitive. Thresholds are normalized to descending order and a zero
// floor at the taker rate is appended if the table lacks one.
func (c *FeeCalculator) RegisterExchange(name string, makerRate, takerRate float64, thresholds []VolumeThreshold) {
	sorted := make([]VolumeThreshold, len(thresholds))
	copy(sorted, thresholds)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].MinNotional > sorted[j].MinNotional
	})

	if len(sorted) == 0 || sorted[len(sorted)-1].MinNotional != 0 {
		sorted = append(sorted, VolumeThreshold{MinNotional: 0, Rate: takerRate})
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.schedules[normalizeExchange(name)] = FeeSchedule{
		MakerRate:  makerRate,
		TakerRate:  takerRate,
		Thresholds: sorted,
	}
}

// Schedule returns the registered schedule for an exchange.
func (c *FeeCalculator) Schedule(exchange string) (FeeSchedule, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	sched, ok := c.schedules[normalizeExchange(exchange)]
	if !ok {
		return FeeSchedule{}, fmt.Errorf("model: fees: %w: %q", domain.ErrUnsupportedExchange, exchange)
	}
	return sched, nil
}

// Calculate returns the fee amount in quote currency for a trade of the given
// notional. The maker or taker base rate is selected first, then the volume
// table is scanned from the highest threshold down and the first threshold the
// notional meets overrides the rate. Tiers 1-4 map to multipliers 1.0, 0.9,
// 0.8, 0.7; higher tiers do not discount further. A non-positive notional
// costs nothing.
func (c *FeeCalculator) Calculate(notional float64, exchange string, feeTier int, isMaker bool) (float64, error) {
	if notional <= 0 {
		return 0, nil
	}

	sched, err := c.Schedule(exchange)
	if err != nil {
		return 0, err
	}

	rate := sched.TakerRate
	if isMaker {
		rate = sched.MakerRate
	}

	for _, t := range sched.Thresholds {
		if notional >= t.MinNotional {
			rate = t.Rate
			break
		}
	}

	if feeTier < 1 {
		feeTier = 1
	}
	discountSteps := feeTier - 1
	if discountSteps > 3 {
		discountSteps = 3
	}
	multiplier := 1.0 - 0.1*float64(discountSteps)

	return rate * multiplier * notional, nil
}

func normalizeExchange(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}
