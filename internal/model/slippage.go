// Package model implements the three trade-cost models: order-book slippage,
// Almgren-Chriss market impact, and tiered exchange fees.
package model

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/gammazero/deque"

	"github.com/alanyoungcy/costsim/internal/domain"
)

// Slippage model names.
const (
	ModelLinear      = "linear"
	ModelExponential = "exponential"
	ModelQuantile    = "quantile"
)

// Side selects which ladder a trade consumes.
type Side int

const (
	// SideBuy consumes asks.
	SideBuy Side = iota
	// SideSell consumes bids.
	SideSell
)

// minQuantileSamples is how much rolling history the quantile model needs
// before it switches from the instantaneous estimate to the 90th percentile.
const minQuantileSamples = 10

// SlippageEstimator estimates the fractional cost of consuming a given
// quantity from the current book, relative to mid price. The quantile model
// keeps a bounded rolling history of past estimates; that history is
// read-modify-write state, so a single estimator instance must not be driven
// by concurrent Estimate calls without the internal lock it carries.
type SlippageEstimator struct {
	windowSize int
	alpha      float64

	mu      sync.Mutex
	history deque.Deque[float64]
}

// NewSlippageEstimator creates an estimator with the given rolling-history
// capacity and exponential depth-decay factor.
func NewSlippageEstimator(windowSize int, alpha float64) *SlippageEstimator {
	return &SlippageEstimator{
		windowSize: windowSize,
		alpha:      alpha,
	}
}

// Estimate returns the signed fractional slippage for filling quantity against
// the given book snapshot, using the named model. A non-positive quantity
// costs nothing. If the walked side cannot fully fill the quantity, the
// average is taken over whatever was filled; insufficient depth is best-effort,
// not an error.
func (e *SlippageEstimator) Estimate(snap domain.BookSnapshot, quantity float64, model string, side Side) (float64, error) {
	if quantity <= 0 {
		return 0, nil
	}

	if len(snap.Bids) == 0 || len(snap.Asks) == 0 {
		return 0, domain.ErrEmptyBook
	}
	mid := (snap.Bids[0].Price + snap.Asks[0].Price) / 2
	if mid <= 0 {
		return 0, fmt.Errorf("model: slippage: non-positive mid price %v", mid)
	}

	ladder := snap.Asks
	if side == SideSell {
		ladder = snap.Bids
	}

	switch model {
	case ModelLinear:
		return e.linear(ladder, quantity, mid, side), nil
	case ModelExponential:
		return e.exponential(ladder, quantity, mid, side), nil
	case ModelQuantile:
		return e.quantile(ladder, quantity, mid, side), nil
	default:
		return 0, fmt.Errorf("model: %w: %q", domain.ErrUnknownModel, model)
	}
}

// signedFraction orients the slippage so an unfavorable fill is positive for
// both sides: buys fill above mid, sells below.
func signedFraction(avgPrice, mid float64, side Side) float64 {
	if side == SideSell {
		return (mid - avgPrice) / mid
	}
	return (avgPrice - mid) / mid
}

// linear greedily fills quantity level by level and returns the
// volume-weighted average fill price as a fraction of mid.
func (e *SlippageEstimator) linear(ladder []domain.PriceLevel, quantity, mid float64, side Side) float64 {
	remaining := quantity
	var cost, filled float64

	for _, lvl := range ladder {
		if remaining <= 0 {
			break
		}
		fill := math.Min(lvl.Quantity, remaining)
		cost += lvl.Price * fill
		filled += fill
		remaining -= fill
	}

	if filled == 0 {
		return 0
	}
	return signedFraction(cost/filled, mid, side)
}

// exponential is the same greedy walk with each level's contribution weighted
// by exp(-alpha * depthIndex), modelling diminishing confidence in deep-book
// liquidity.
func (e *SlippageEstimator) exponential(ladder []domain.PriceLevel, quantity, mid float64, side Side) float64 {
	remaining := quantity
	var cost, weightSum float64

	for depth, lvl := range ladder {
		if remaining <= 0 {
			break
		}
		fill := math.Min(lvl.Quantity, remaining)
		weight := math.Exp(-e.alpha * float64(depth))
		cost += lvl.Price * fill * weight
		weightSum += fill * weight
		remaining -= fill
	}

	if weightSum == 0 {
		return 0
	}
	return signedFraction(cost/weightSum, mid, side)
}

// quantile takes the more conservative of the linear and exponential
// estimates, appends it to the rolling history, and once enough samples exist
// returns the 90th percentile of that history instead of the instantaneous
// value.
func (e *SlippageEstimator) quantile(ladder []domain.PriceLevel, quantity, mid float64, side Side) float64 {
	current := math.Max(
		e.linear(ladder, quantity, mid, side),
		e.exponential(ladder, quantity, mid, side),
	)

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.history.Len() >= e.windowSize {
		e.history.PopFront()
	}
	e.history.PushBack(current)

	if e.history.Len() < minQuantileSamples {
		return current
	}

	samples := make([]float64, 0, e.history.Len())
	for i := 0; i < e.history.Len(); i++ {
		samples = append(samples, e.history.At(i))
	}
	return percentile(samples, 0.9)
}

// Observe appends an externally measured slippage value to the rolling
// history, letting realized fills sharpen the quantile model.
func (e *SlippageEstimator) Observe(actual float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.history.Len() >= e.windowSize {
		e.history.PopFront()
	}
	e.history.PushBack(actual)
}

// HistoryLen reports how many samples the rolling window currently holds.
func (e *SlippageEstimator) HistoryLen() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.Len()
}

// percentile returns the q-quantile of values using linear interpolation
// between closest ranks. values is copied before sorting.
func percentile(values []float64, q float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}
