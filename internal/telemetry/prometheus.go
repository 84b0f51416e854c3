// Package telemetry exposes Prometheus instrumentation for the feed pipeline
// and metrics computation.
package telemetry

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var MessagesReceived = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "costsim_feed_messages_received_total",
		Help: "Well-formed feed messages delivered to the book apply loop",
	},
)

var MessagesApplied = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "costsim_book_updates_applied_total",
		Help: "Feed messages successfully applied to the order book",
	},
)

var DecodeErrors = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "costsim_feed_decode_errors_total",
		Help: "Malformed feed messages dropped without touching the book",
	},
)

var Reconnects = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "costsim_feed_reconnects_total",
		Help: "Feed disconnect/reconnect transitions",
	},
)

var BestBid = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "costsim_book_best_bid",
		Help: "Best bid price of the maintained order book",
	},
)

var BestAsk = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "costsim_book_best_ask",
		Help: "Best ask price of the maintained order book",
	},
)

var MetricsComputeSeconds = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "costsim_metrics_compute_seconds",
		Help:    "Wall-clock duration of one metrics snapshot computation",
		Buckets: prometheus.ExponentialBuckets(1e-5, 4, 8),
	},
)

// Serve registers all collectors and serves /metrics on addr until ctx is
// cancelled.
func Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		MessagesReceived,
		MessagesApplied,
		DecodeErrors,
		Reconnects,
		BestBid,
		BestAsk,
		MetricsComputeSeconds,
		collectors.NewGoCollector(),
	)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("telemetry listening", slog.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
