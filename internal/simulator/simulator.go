// Package simulator orchestrates the feed transport, order book, and cost
// models behind the external control surface: start/stop, parameter updates,
// on-demand metrics snapshots, and connectivity notifications.
package simulator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/costsim/internal/book"
	"github.com/alanyoungcy/costsim/internal/domain"
	"github.com/alanyoungcy/costsim/internal/feed"
	"github.com/alanyoungcy/costsim/internal/model"
	"github.com/alanyoungcy/costsim/internal/telemetry"
)

// defaultMakerTakerRatio is reported when the book has no resting volume to
// derive an imbalance from.
const defaultMakerTakerRatio = 0.7

// Config holds everything the controller needs at construction. It is
// immutable for the lifetime of the controller; only the simulation
// parameters can change afterwards, via UpdateParameters.
type Config struct {
	Feed        feed.Config
	MaxDepth    int
	InitTimeout time.Duration
	Params      domain.SimulationParameters
}

// Controller owns one simulation run: the transport lifecycle, the book bound
// to the configured symbol, and the three cost models.
type Controller struct {
	cfg    Config
	logger *slog.Logger
	runID  string

	slippage *model.SlippageEstimator
	impact   *model.AlmgrenChriss
	fees     *model.FeeCalculator

	statusMu sync.RWMutex
	onStatus domain.StatusHandler

	mu        sync.Mutex
	params    domain.SimulationParameters
	running   bool
	cancel    context.CancelFunc
	group     *errgroup.Group
	book      *book.Store
	transport *feed.Transport
}

// New creates a Controller. The models are injected so their rolling state
// (slippage history, price window) survives across runs if the caller wants
// that.
func New(cfg Config, slippage *model.SlippageEstimator, impact *model.AlmgrenChriss, fees *model.FeeCalculator, logger *slog.Logger) *Controller {
	if cfg.InitTimeout <= 0 {
		cfg.InitTimeout = 10 * time.Second
	}
	return &Controller{
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "simulator")),
		runID:    uuid.New().String(),
		slippage: slippage,
		impact:   impact,
		fees:     fees,
		params:   cfg.Params,
	}
}

// RunID identifies this controller instance in logs and persisted snapshots.
func (c *Controller) RunID() string {
	return c.runID
}

// OnStatus registers the handler that receives feed connectivity transitions.
// Must be called before Start.
func (c *Controller) OnStatus(h domain.StatusHandler) {
	c.statusMu.Lock()
	defer c.statusMu.Unlock()
	c.onStatus = h
}

// Start creates the order book, launches the feed transport and the apply
// loop, and blocks until at least one message has been applied. A timeout
// before first data fails the run and tears everything down. Each Start waits
// for fresh data: a run started after Stop gets a new book and a new
// initial-data gate.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("simulator: %w", domain.ErrAlreadyRunning)
	}

	runCtx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(runCtx)

	firstApplied := make(chan struct{})
	var firstOnce sync.Once
	markFirst := func() {
		firstOnce.Do(func() { close(firstApplied) })
	}

	c.book = book.New(c.params.Symbol, c.cfg.MaxDepth)
	c.transport = feed.New(c.cfg.Feed, c.logger)
	c.transport.OnStatus(func(state domain.ConnState, err error) {
		if state == domain.ConnDisconnected {
			telemetry.Reconnects.Inc()
		}
		c.statusMu.RLock()
		h := c.onStatus
		c.statusMu.RUnlock()
		if h != nil {
			h(state, err)
		}
	})

	transport := c.transport
	g.Go(func() error { return transport.Run(gctx) })
	g.Go(func() error { return c.applyLoop(gctx, transport, markFirst) })

	c.cancel = cancel
	c.group = g
	c.running = true
	c.mu.Unlock()

	c.logger.Info("simulation starting",
		slog.String("run_id", c.runID),
		slog.String("symbol", c.params.Symbol),
		slog.String("url", c.cfg.Feed.URL),
	)

	// Bounded wait for the first applied book update.
	timer := time.NewTimer(c.cfg.InitTimeout)
	defer timer.Stop()

	select {
	case <-firstApplied:
		c.logger.Info("first book update applied", slog.String("run_id", c.runID))
		return nil
	case <-timer.C:
		_ = c.Stop()
		return fmt.Errorf("simulator: %w after %s", domain.ErrBookTimeout, c.cfg.InitTimeout)
	case <-gctx.Done():
		_ = c.Stop()
		if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("simulator: feed failed before first data: %w", err)
		}
		return fmt.Errorf("simulator: feed failed before first data: %w", gctx.Err())
	}
}

// applyLoop drains the transport's message channel into the book, calling
// markFirst after the first applied update. It returns when the channel closes
// or the run context is cancelled; after Stop returns no further book
// mutations occur.
func (c *Controller) applyLoop(ctx context.Context, transport *feed.Transport, markFirst func()) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update, ok := <-transport.Messages():
			if !ok {
				return nil
			}
			c.book.Apply(update)
			telemetry.MessagesApplied.Inc()

			if bid, err := c.book.BestBid(); err == nil {
				telemetry.BestBid.Set(bid.Price)
			}
			if ask, err := c.book.BestAsk(); err == nil {
				telemetry.BestAsk.Set(ask.Price)
			}
			// Feed the volatility window from the mid price stream.
			if mid, err := c.book.MidPrice(); err == nil {
				c.impact.ObservePrice(mid)
			}

			markFirst()
		}
	}
}

// Wait blocks until the run ends and returns its terminal error: nil after a
// clean Stop, or the transport's error when the retry budget was exhausted.
func (c *Controller) Wait() error {
	c.mu.Lock()
	g := c.group
	c.mu.Unlock()

	if g == nil {
		return fmt.Errorf("simulator: %w", domain.ErrNotRunning)
	}

	err := g.Wait()
	if err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, domain.ErrFeedClosed)) {
		return nil
	}
	return err
}

// Stop cancels the transport and waits for the ingestion goroutines to exit.
// It is idempotent; once it returns, the book receives no further mutations.
func (c *Controller) Stop() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	cancel := c.cancel
	g := c.group
	transport := c.transport
	c.mu.Unlock()

	transport.Close()
	cancel()

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, domain.ErrRetriesExhausted) {
		c.logger.Warn("run ended with error", slog.String("error", err.Error()))
	}

	c.logger.Info("simulation stopped", slog.String("run_id", c.runID))
	return nil
}

// UpdateParameters merges the supplied fields into the current parameter set;
// unspecified fields retain their prior values.
func (c *Controller) UpdateParameters(update domain.ParameterUpdate) {
	c.mu.Lock()
	update.Apply(&c.params)
	params := c.params
	c.mu.Unlock()

	c.logger.Info("parameters updated",
		slog.String("exchange", params.Exchange),
		slog.String("symbol", params.Symbol),
		slog.Float64("quantity_quote", params.QuantityQuote),
		slog.String("slippage_model", params.SlippageModel),
		slog.Int("fee_tier", params.FeeTier),
	)
}

// Parameters returns a copy of the current parameter set.
func (c *Controller) Parameters() domain.SimulationParameters {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.params
}

// Metrics converts the configured quote quantity to base units against the
// current mid price, runs the three cost models, and assembles one snapshot.
// Any model failure is wrapped and surfaced as a single computation error;
// the book is untouched and a later call may succeed once conditions change.
func (c *Controller) Metrics(ctx context.Context) (domain.MetricsSnapshot, error) {
	start := time.Now()

	c.mu.Lock()
	params := c.params
	bookStore := c.book
	c.mu.Unlock()

	if bookStore == nil {
		return domain.MetricsSnapshot{}, fmt.Errorf("simulator: compute metrics: %w", domain.ErrNotRunning)
	}

	mid, err := bookStore.MidPrice()
	if err != nil {
		return domain.MetricsSnapshot{}, fmt.Errorf("simulator: compute metrics: %w", err)
	}

	baseQuantity := params.QuantityQuote / mid
	snap := bookStore.Snapshot()

	slippage, err := c.slippage.Estimate(snap, baseQuantity, params.SlippageModel, model.SideBuy)
	if err != nil {
		return domain.MetricsSnapshot{}, fmt.Errorf("simulator: compute metrics: slippage: %w", err)
	}

	fee, err := c.fees.Calculate(params.QuantityQuote, params.Exchange, params.FeeTier, params.IsMaker)
	if err != nil {
		return domain.MetricsSnapshot{}, fmt.Errorf("simulator: compute metrics: fees: %w", err)
	}

	impact, err := c.impact.Calculate(baseQuantity, bookStore.TotalVolume(), params.Volatility, 0)
	if err != nil {
		return domain.MetricsSnapshot{}, fmt.Errorf("simulator: compute metrics: impact: %w", err)
	}

	// Net cost in quote currency: fractional costs scaled by the notional,
	// plus the absolute fee.
	netCost := (slippage+impact.Total)*params.QuantityQuote + fee

	elapsed := time.Since(start)
	telemetry.MetricsComputeSeconds.Observe(elapsed.Seconds())

	return domain.MetricsSnapshot{
		RunID:           c.runID,
		Exchange:        params.Exchange,
		Symbol:          params.Symbol,
		Slippage:        slippage,
		FeeAmount:       fee,
		MarketImpact:    impact.Total,
		NetCost:         netCost,
		MakerTakerRatio: c.makerTakerRatio(bookStore),
		LatencyMs:       float64(elapsed.Microseconds()) / 1000.0,
		BookSequenceID:  snap.SequenceID,
		ComputedAt:      time.Now().UTC(),
	}, nil
}

// BookSnapshot returns a consistent copy of the current book state, or the
// zero snapshot when no run has started.
func (c *Controller) BookSnapshot() domain.BookSnapshot {
	c.mu.Lock()
	b := c.book
	c.mu.Unlock()

	if b == nil {
		return domain.BookSnapshot{}
	}
	return b.Snapshot()
}

// makerTakerRatio estimates the passive share of flow from the book's resting
// volume imbalance: the bid share of total resting volume.
func (c *Controller) makerTakerRatio(b *book.Store) float64 {
	bidVol := b.BidVolume()
	askVol := b.AskVolume()
	total := bidVol + askVol
	if total <= 0 {
		return defaultMakerTakerRatio
	}
	return bidVol / total
}
