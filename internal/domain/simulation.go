package domain

import "time"

// SimulationParameters describes one cost-estimation scenario. The quantity is
// expressed in quote currency (e.g. USD) and converted to base units against
// the live mid price at computation time.
type SimulationParameters struct {
	Exchange      string
	Symbol        string
	QuantityQuote float64
	Volatility    float64
	FeeTier       int
	SlippageModel string
	OrderType     string
	LimitPrice    float64
	IsMaker       bool
}

// ParameterUpdate is a partial overwrite of SimulationParameters. Nil fields
// leave the current value untouched.
type ParameterUpdate struct {
	Exchange      *string
	Symbol        *string
	QuantityQuote *float64
	Volatility    *float64
	FeeTier       *int
	SlippageModel *string
	OrderType     *string
	LimitPrice    *float64
	IsMaker       *bool
}

// Apply merges the update into p field by field.
func (u ParameterUpdate) Apply(p *SimulationParameters) {
	if u.Exchange != nil {
		p.Exchange = *u.Exchange
	}
	if u.Symbol != nil {
		p.Symbol = *u.Symbol
	}
	if u.QuantityQuote != nil {
		p.QuantityQuote = *u.QuantityQuote
	}
	if u.Volatility != nil {
		p.Volatility = *u.Volatility
	}
	if u.FeeTier != nil {
		p.FeeTier = *u.FeeTier
	}
	if u.SlippageModel != nil {
		p.SlippageModel = *u.SlippageModel
	}
	if u.OrderType != nil {
		p.OrderType = *u.OrderType
	}
	if u.LimitPrice != nil {
		p.LimitPrice = *u.LimitPrice
	}
	if u.IsMaker != nil {
		p.IsMaker = *u.IsMaker
	}
}

// ImpactEstimate is the result of one Almgren-Chriss evaluation. All impact
// figures are fractions of the traded notional.
type ImpactEstimate struct {
	Permanent      float64
	Temporary      float64
	Total          float64
	OptimalHorizon float64
}

// MetricsSnapshot bundles every cost metric for one request. Immutable once
// produced.
type MetricsSnapshot struct {
	RunID           string
	Exchange        string
	Symbol          string
	Slippage        float64
	FeeAmount       float64
	MarketImpact    float64
	NetCost         float64
	MakerTakerRatio float64
	LatencyMs       float64
	BookSequenceID  uint64
	ComputedAt      time.Time
}

// ConnState describes a feed connectivity transition.
type ConnState int

const (
	ConnConnected ConnState = iota
	ConnDisconnected
	ConnTerminal
)

// String returns the lowercase name of the state.
func (s ConnState) String() string {
	switch s {
	case ConnConnected:
		return "connected"
	case ConnDisconnected:
		return "disconnected"
	case ConnTerminal:
		return "terminal"
	default:
		return "unknown"
	}
}

// StatusHandler receives connectivity transitions from the feed transport.
type StatusHandler func(state ConnState, err error)
