// Package app provides the top-level application lifecycle for the cost
// simulator. It wires dependencies, starts the simulation controller, polls
// metrics on an interval, and publishes each snapshot to the configured
// backends.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/costsim/internal/config"
	"github.com/alanyoungcy/costsim/internal/domain"
	"github.com/alanyoungcy/costsim/internal/feed"
	"github.com/alanyoungcy/costsim/internal/model"
	"github.com/alanyoungcy/costsim/internal/notify"
	"github.com/alanyoungcy/costsim/internal/simulator"
	"github.com/alanyoungcy/costsim/internal/telemetry"
)

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run is the main entry point. It wires dependencies, starts the simulation,
// and blocks until the context is cancelled or the feed terminally fails.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("symbol", a.cfg.Simulation.Symbol),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	ctrl := a.buildController()
	a.registerStatusHandler(ctrl, deps.Notifier)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	if a.cfg.Telemetry.Enabled {
		g.Go(func() error {
			return telemetry.Serve(gctx, a.cfg.Telemetry.Addr, a.logger)
		})
	}

	if err := ctrl.Start(gctx); err != nil {
		// Tear down anything already launched (telemetry) before reporting.
		cancel()
		_ = g.Wait()
		return fmt.Errorf("app: start simulation: %w", err)
	}

	g.Go(ctrl.Wait)
	g.Go(func() error {
		defer func() { _ = ctrl.Stop() }()
		return a.pollLoop(gctx, ctrl, deps)
	})

	return g.Wait()
}

// buildController assembles the three cost models and the simulation
// controller from configuration.
func (a *App) buildController() *simulator.Controller {
	slippage := model.NewSlippageEstimator(a.cfg.Slippage.WindowSize, a.cfg.Slippage.Alpha)
	impact := model.NewAlmgrenChriss(
		a.cfg.Impact.Eta,
		a.cfg.Impact.Gamma,
		a.cfg.Impact.RiskAversion,
		a.cfg.Impact.Sigma,
	)
	fees := model.NewFeeCalculator()

	return simulator.New(simulator.Config{
		Feed: feed.Config{
			URL:               a.cfg.Feed.URL,
			ReconnectDelay:    a.cfg.Feed.ReconnectDelay.Duration,
			MaxReconnectDelay: a.cfg.Feed.MaxReconnectDelay.Duration,
			MaxRetries:        a.cfg.Feed.MaxRetries,
			BufferSize:        a.cfg.Feed.BufferSize,
		},
		MaxDepth:    a.cfg.Feed.MaxDepth,
		InitTimeout: a.cfg.Feed.InitTimeout.Duration,
		Params: domain.SimulationParameters{
			Exchange:      a.cfg.Simulation.Exchange,
			Symbol:        a.cfg.Simulation.Symbol,
			QuantityQuote: a.cfg.Simulation.QuantityQuote,
			Volatility:    a.cfg.Simulation.Volatility,
			FeeTier:       a.cfg.Simulation.FeeTier,
			SlippageModel: a.cfg.Simulation.SlippageModel,
			OrderType:     a.cfg.Simulation.OrderType,
			IsMaker:       a.cfg.Simulation.IsMaker,
		},
	}, slippage, impact, fees, a.logger)
}

// registerStatusHandler logs connectivity transitions and fans them out to
// the notifier. Notifications are sent on a short background deadline so a
// slow webhook never stalls the transport.
func (a *App) registerStatusHandler(ctrl *simulator.Controller, notifier *notify.Notifier) {
	symbol := a.cfg.Simulation.Symbol
	ctrl.OnStatus(func(state domain.ConnState, err error) {
		a.logger.Info("feed connectivity changed",
			slog.String("state", state.String()),
			slog.String("error", errString(err)),
		)

		event := notify.EventConnected
		switch state {
		case domain.ConnDisconnected:
			event = notify.EventDisconnected
		case domain.ConnTerminal:
			event = notify.EventTerminal
		}

		go func() {
			notifyCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			_ = notifier.Notify(notifyCtx, event,
				fmt.Sprintf("costsim %s", state),
				fmt.Sprintf("symbol=%s error=%s", symbol, errString(err)),
			)
		}()
	})
}

// pollLoop computes a metrics snapshot on every tick and publishes it to the
// configured backends. Computation failures (e.g. empty book right after a
// reconnect) are logged and retried on the next tick.
func (a *App) pollLoop(ctx context.Context, ctrl *simulator.Controller, deps *Dependencies) error {
	ticker := time.NewTicker(a.cfg.Simulation.PollInterval.Duration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		snap, err := ctrl.Metrics(ctx)
		if err != nil {
			a.logger.Warn("metrics computation failed", slog.String("error", err.Error()))
			continue
		}

		a.logger.Info("metrics snapshot",
			slog.Float64("slippage", snap.Slippage),
			slog.Float64("fee_amount", snap.FeeAmount),
			slog.Float64("market_impact", snap.MarketImpact),
			slog.Float64("net_cost", snap.NetCost),
			slog.Float64("maker_taker_ratio", snap.MakerTakerRatio),
			slog.Float64("latency_ms", snap.LatencyMs),
			slog.Uint64("book_seq", snap.BookSequenceID),
		)

		a.publish(ctx, ctrl, deps, snap)
	}
}

// publish pushes the snapshot to Redis and Postgres when those backends are
// wired. Publication failures are logged, never fatal.
func (a *App) publish(ctx context.Context, ctrl *simulator.Controller, deps *Dependencies, snap domain.MetricsSnapshot) {
	if deps.BookCache != nil {
		if err := deps.BookCache.SetMetrics(ctx, snap.Symbol, snap); err != nil {
			a.logger.Warn("publish metrics to redis failed", slog.String("error", err.Error()))
		}
		if err := deps.BookCache.SetTopOfBook(ctx, snap.Symbol, ctrl.BookSnapshot()); err != nil {
			a.logger.Warn("publish book to redis failed", slog.String("error", err.Error()))
		}
	}

	if deps.MetricsStore != nil {
		if err := deps.MetricsStore.Insert(ctx, snap); err != nil {
			a.logger.Warn("persist metrics failed", slog.String("error", err.Error()))
		}
	}
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.Canceled) {
		return "context cancelled"
	}
	return err.Error()
}
