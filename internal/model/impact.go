package model

import (
	"fmt"
	"math"
	"sync"

	"github.com/gammazero/deque"

	"github.com/alanyoungcy/costsim/internal/domain"
)

const (
	// priceWindowCap bounds the rolling price history used for volatility
	// estimation; the oldest observation is evicted first.
	priceWindowCap = 100

	// defaultVolatility is used when fewer than two prices have been observed.
	defaultVolatility = 0.02

	// tradingDaysPerYear annualizes the realized standard deviation.
	tradingDaysPerYear = 252
)

// AlmgrenChriss is the closed-form Almgren-Chriss market impact model. The
// permanent component captures information leakage, the temporary component
// liquidity demand; the optimal horizon balances impact cost against price
// risk.
type AlmgrenChriss struct {
	eta          float64
	gamma        float64
	riskAversion float64
	sigma        float64 // fixed volatility, 0 = estimate from price history

	mu     sync.Mutex
	prices deque.Deque[float64]
}

// NewAlmgrenChriss creates a model with the given permanent-impact coefficient
// eta, temporary-impact coefficient gamma, risk-aversion kappa, and optional
// fixed annualized volatility sigma (pass 0 to estimate from observed prices).
func NewAlmgrenChriss(eta, gamma, riskAversion, sigma float64) *AlmgrenChriss {
	return &AlmgrenChriss{
		eta:          eta,
		gamma:        gamma,
		riskAversion: riskAversion,
		sigma:        sigma,
	}
}

// Calculate evaluates the impact of trading quantity against a market with the
// given total resting volume. volatility and horizon are optional: pass 0 to
// resolve volatility from the fixed sigma or the rolling price window, and 0
// to derive the optimal execution horizon from the model coefficients. A
// negative horizon is rejected.
//
// A non-positive quantity or total volume yields an all-zero estimate.
func (m *AlmgrenChriss) Calculate(quantity, totalVolume, volatility, horizon float64) (domain.ImpactEstimate, error) {
	if quantity <= 0 || totalVolume <= 0 {
		return domain.ImpactEstimate{}, nil
	}

	if horizon < 0 {
		return domain.ImpactEstimate{}, fmt.Errorf("model: impact: %w: %v", domain.ErrInvalidHorizon, horizon)
	}

	if volatility == 0 {
		if m.sigma != 0 {
			volatility = m.sigma
		} else {
			volatility = m.estimateVolatility()
		}
	}
	if volatility <= 0 {
		return domain.ImpactEstimate{}, fmt.Errorf("model: impact: %w: %v", domain.ErrInvalidVolatility, volatility)
	}

	x := quantity / totalVolume

	permanent := m.eta * volatility * x

	if horizon == 0 {
		horizon = m.optimalHorizon(x, volatility)
	}
	// Degenerate coefficients (e.g. gamma 0) can collapse the computed
	// horizon to 0; dividing by it would poison the estimate with NaN.
	if horizon <= 0 || math.IsNaN(horizon) {
		return domain.ImpactEstimate{}, fmt.Errorf("model: impact: %w: computed %v", domain.ErrInvalidHorizon, horizon)
	}

	temporary := m.gamma * volatility * x / horizon

	return domain.ImpactEstimate{
		Permanent:      permanent,
		Temporary:      temporary,
		Total:          permanent + temporary,
		OptimalHorizon: horizon,
	}, nil
}

// optimalHorizon computes T = (3*gamma*x^2 / (2*eta*sigma^2*kappa))^(1/3), the
// execution time that minimizes combined impact cost and risk exposure.
func (m *AlmgrenChriss) optimalHorizon(x, volatility float64) float64 {
	numerator := 3 * m.gamma * x * x
	denominator := 2 * m.eta * volatility * volatility * m.riskAversion
	return math.Cbrt(numerator / denominator)
}

// ObservePrice appends a price to the rolling window used for volatility
// estimation when no explicit volatility is supplied.
func (m *AlmgrenChriss) ObservePrice(price float64) {
	if price <= 0 {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.prices.Len() >= priceWindowCap {
		m.prices.PopFront()
	}
	m.prices.PushBack(price)
}

// estimateVolatility returns the annualized standard deviation of log returns
// over the rolling price window, or the default when fewer than two prices
// have been observed.
func (m *AlmgrenChriss) estimateVolatility() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := m.prices.Len()
	if n < 2 {
		return defaultVolatility
	}

	returns := make([]float64, 0, n-1)
	for i := 1; i < n; i++ {
		returns = append(returns, math.Log(m.prices.At(i)/m.prices.At(i-1)))
	}

	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	var variance float64
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(returns))

	return math.Sqrt(variance) * math.Sqrt(tradingDaysPerYear)
}
