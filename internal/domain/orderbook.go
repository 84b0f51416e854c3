package domain

import "time"

// PriceLevel is a single price+quantity entry in an orderbook side.
type PriceLevel struct {
	Price    float64
	Quantity float64
}

// BookUpdate is one decoded feed message: a full replacement of both sides of
// the book. Levels arrive in feed order; sorting is the book's job.
type BookUpdate struct {
	Timestamp time.Time
	Bids      []PriceLevel
	Asks      []PriceLevel
}

// BookSnapshot is a read-only copy of the book state at one sequence number.
type BookSnapshot struct {
	Symbol     string
	Bids       []PriceLevel
	Asks       []PriceLevel
	SequenceID uint64
	Timestamp  time.Time
}

// BestBid returns the highest bid level, or false if there are no bids.
func (s BookSnapshot) BestBid() (PriceLevel, bool) {
	if len(s.Bids) == 0 {
		return PriceLevel{}, false
	}
	return s.Bids[0], true
}

// BestAsk returns the lowest ask level, or false if there are no asks.
func (s BookSnapshot) BestAsk() (PriceLevel, bool) {
	if len(s.Asks) == 0 {
		return PriceLevel{}, false
	}
	return s.Asks[0], true
}
