package book

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/costsim/internal/domain"
)

func levels(pairs ...[2]float64) []domain.PriceLevel {
	out := make([]domain.PriceLevel, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, domain.PriceLevel{Price: p[0], Quantity: p[1]})
	}
	return out
}

func TestApplySortsAndLimits(t *testing.T) {
	s := New("BTC-USDT-SWAP", 3)

	s.Apply(domain.BookUpdate{
		Timestamp: time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC),
		Bids:      levels([2]float64{98, 1}, [2]float64{100, 2}, [2]float64{99, 3}, [2]float64{97, 4}),
		Asks:      levels([2]float64{103, 1}, [2]float64{101, 2}, [2]float64{102, 3}, [2]float64{104, 4}),
	})

	snap := s.Snapshot()

	require.Len(t, snap.Bids, 3, "bids should be truncated to max depth")
	require.Len(t, snap.Asks, 3, "asks should be truncated to max depth")

	for i := 1; i < len(snap.Bids); i++ {
		assert.Greater(t, snap.Bids[i-1].Price, snap.Bids[i].Price, "bids must be strictly descending")
	}
	for i := 1; i < len(snap.Asks); i++ {
		assert.Less(t, snap.Asks[i-1].Price, snap.Asks[i].Price, "asks must be strictly ascending")
	}

	assert.Equal(t, 100.0, snap.Bids[0].Price)
	assert.Equal(t, 101.0, snap.Asks[0].Price)
	assert.Equal(t, uint64(1), snap.SequenceID)
}

func TestApplyAdvancesSequence(t *testing.T) {
	s := New("BTC-USDT-SWAP", 10)

	for i := 0; i < 5; i++ {
		s.Apply(domain.BookUpdate{
			Timestamp: time.Now().UTC(),
			Bids:      levels([2]float64{99, 1}),
			Asks:      levels([2]float64{101, 1}),
		})
	}

	assert.Equal(t, uint64(5), s.SequenceID())
}

func TestMidPriceAndSpread(t *testing.T) {
	s := New("BTC-USDT-SWAP", 10)
	s.Apply(domain.BookUpdate{
		Timestamp: time.Now().UTC(),
		Bids:      levels([2]float64{99, 5}),
		Asks:      levels([2]float64{100, 2}, [2]float64{101, 3}),
	})

	mid, err := s.MidPrice()
	require.NoError(t, err)
	assert.InDelta(t, 99.5, mid, 1e-12)

	spread, err := s.Spread()
	require.NoError(t, err)
	assert.InDelta(t, 1.0, spread, 1e-12)
}

func TestEmptyBookErrors(t *testing.T) {
	s := New("BTC-USDT-SWAP", 10)

	_, err := s.MidPrice()
	assert.ErrorIs(t, err, domain.ErrEmptyBook)

	_, err = s.Spread()
	assert.ErrorIs(t, err, domain.ErrEmptyBook)

	// One-sided book is still empty for mid/spread purposes.
	s.Apply(domain.BookUpdate{
		Timestamp: time.Now().UTC(),
		Bids:      levels([2]float64{99, 5}),
	})
	_, err = s.MidPrice()
	assert.ErrorIs(t, err, domain.ErrEmptyBook)

	_, err = s.BestAsk()
	assert.ErrorIs(t, err, domain.ErrEmptyBook)

	bid, err := s.BestBid()
	require.NoError(t, err)
	assert.Equal(t, 99.0, bid.Price)
}

func TestCrossedBookPassesThrough(t *testing.T) {
	s := New("BTC-USDT-SWAP", 10)
	s.Apply(domain.BookUpdate{
		Timestamp: time.Now().UTC(),
		Bids:      levels([2]float64{102, 1}),
		Asks:      levels([2]float64{100, 1}),
	})

	spread, err := s.Spread()
	require.NoError(t, err)
	assert.Equal(t, -2.0, spread, "crossed feed yields a negative spread, not an error")
}

func TestVolumes(t *testing.T) {
	s := New("BTC-USDT-SWAP", 10)
	s.Apply(domain.BookUpdate{
		Timestamp: time.Now().UTC(),
		Bids:      levels([2]float64{99, 5}, [2]float64{98, 5}),
		Asks:      levels([2]float64{100, 2}, [2]float64{101, 3}),
	})

	assert.InDelta(t, 10.0, s.BidVolume(), 1e-12)
	assert.InDelta(t, 5.0, s.AskVolume(), 1e-12)
	assert.InDelta(t, 15.0, s.TotalVolume(), 1e-12)
}

func TestSnapshotIsIsolated(t *testing.T) {
	s := New("BTC-USDT-SWAP", 10)
	s.Apply(domain.BookUpdate{
		Timestamp: time.Now().UTC(),
		Bids:      levels([2]float64{99, 5}),
		Asks:      levels([2]float64{100, 2}),
	})

	snap := s.Snapshot()
	snap.Bids[0].Price = 1

	bid, err := s.BestBid()
	require.NoError(t, err)
	assert.Equal(t, 99.0, bid.Price, "mutating a snapshot must not touch the store")
}

func TestConcurrentApplyAndRead(t *testing.T) {
	s := New("BTC-USDT-SWAP", 50)

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			s.Apply(domain.BookUpdate{
				Timestamp: time.Now().UTC(),
				Bids:      levels([2]float64{99, 1}, [2]float64{98, 2}),
				Asks:      levels([2]float64{100, 1}, [2]float64{101, 2}),
			})
		}
		close(stop)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			snap := s.Snapshot()
			// A reader must never observe a half-applied update.
			if len(snap.Bids) > 0 || len(snap.Asks) > 0 {
				assert.Len(t, snap.Bids, 2)
				assert.Len(t, snap.Asks, 2)
			}
			_, _ = s.MidPrice()
			_ = s.TotalVolume()
		}
	}()

	wg.Wait()
	assert.Equal(t, uint64(500), s.SequenceID())
}
