// Package book maintains the authoritative depth-limited order book for one
// symbol. Every feed message replaces both sides wholesale, so the book is
// always sorted and depth-bounded after each apply; readers never observe a
// half-updated state.
package book

import (
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/costsim/internal/domain"
)

// Store holds the bid and ask ladders for a single symbol. Apply replaces both
// sides under a write lock; all reads take a read lock, so a snapshot-style
// feed never exposes mixed old/new sides.
type Store struct {
	symbol   string
	maxDepth int

	mu        sync.RWMutex
	bids      []domain.PriceLevel
	asks      []domain.PriceLevel
	timestamp time.Time
	seq       uint64
}

// New creates an empty Store bound to symbol, keeping at most maxDepth levels
// per side.
func New(symbol string, maxDepth int) *Store {
	return &Store{
		symbol:   symbol,
		maxDepth: maxDepth,
	}
}

// Symbol returns the immutable symbol this book tracks.
func (s *Store) Symbol() string {
	return s.symbol
}

// Apply replaces both sides of the book with the levels in update, sorts bids
// descending and asks ascending by price, truncates each side to the
// configured depth, advances the sequence counter, and records the feed
// timestamp. The swap is atomic with respect to readers.
//
// Crossed updates (best bid above best ask) are applied as-is: the book
// mirrors the feed, it does not validate it.
func (s *Store) Apply(update domain.BookUpdate) {
	bids := sortAndLimit(update.Bids, false, s.maxDepth)
	asks := sortAndLimit(update.Asks, true, s.maxDepth)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.bids = bids
	s.asks = asks
	s.timestamp = update.Timestamp
	s.seq++
}

// sortAndLimit copies, sorts, and truncates one side. Sorting a copy keeps the
// caller's slice untouched and keeps all mutation outside the lock.
func sortAndLimit(levels []domain.PriceLevel, ascending bool, maxDepth int) []domain.PriceLevel {
	out := make([]domain.PriceLevel, len(levels))
	copy(out, levels)

	if ascending {
		sort.Slice(out, func(i, j int) bool { return out[i].Price < out[j].Price })
	} else {
		sort.Slice(out, func(i, j int) bool { return out[i].Price > out[j].Price })
	}

	if len(out) > maxDepth {
		out = out[:maxDepth]
	}
	return out
}

// BestBid returns the highest bid level.
func (s *Store) BestBid() (domain.PriceLevel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.bids) == 0 {
		return domain.PriceLevel{}, domain.ErrEmptyBook
	}
	return s.bids[0], nil
}

// BestAsk returns the lowest ask level.
func (s *Store) BestAsk() (domain.PriceLevel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.asks) == 0 {
		return domain.PriceLevel{}, domain.ErrEmptyBook
	}
	return s.asks[0], nil
}

// MidPrice returns (best bid + best ask) / 2. It fails with ErrEmptyBook when
// either side has no levels.
func (s *Store) MidPrice() (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.bids) == 0 || len(s.asks) == 0 {
		return 0, domain.ErrEmptyBook
	}
	return (s.bids[0].Price + s.asks[0].Price) / 2, nil
}

// Spread returns best ask minus best bid. A crossed feed yields a negative
// spread; it is reported, not corrected.
func (s *Store) Spread() (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.bids) == 0 || len(s.asks) == 0 {
		return 0, domain.ErrEmptyBook
	}
	return s.asks[0].Price - s.bids[0].Price, nil
}

// TotalVolume returns the summed quantity across both sides.
func (s *Store) TotalVolume() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return sumQuantity(s.bids) + sumQuantity(s.asks)
}

// BidVolume returns the summed bid quantity.
func (s *Store) BidVolume() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sumQuantity(s.bids)
}

// AskVolume returns the summed ask quantity.
func (s *Store) AskVolume() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sumQuantity(s.asks)
}

func sumQuantity(levels []domain.PriceLevel) float64 {
	var total float64
	for _, lvl := range levels {
		total += lvl.Quantity
	}
	return total
}

// SequenceID returns the number of successfully applied updates.
func (s *Store) SequenceID() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seq
}

// LastUpdate returns the feed timestamp of the most recent applied update, or
// the zero time if nothing has been applied yet.
func (s *Store) LastUpdate() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.timestamp
}

// Snapshot returns a consistent copy of the full book state. The returned
// slices are owned by the caller.
func (s *Store) Snapshot() domain.BookSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bids := make([]domain.PriceLevel, len(s.bids))
	asks := make([]domain.PriceLevel, len(s.asks))
	copy(bids, s.bids)
	copy(asks, s.asks)

	return domain.BookSnapshot{
		Symbol:     s.symbol,
		Bids:       bids,
		Asks:       asks,
		SequenceID: s.seq,
		Timestamp:  s.timestamp,
	}
}
