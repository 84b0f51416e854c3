package domain

import (
	"context"
	"time"
)

// MetricsStore persists computed metrics snapshots.
type MetricsStore interface {
	Insert(ctx context.Context, snap MetricsSnapshot) error
	ListRecent(ctx context.Context, limit int) ([]MetricsSnapshot, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// BookCache publishes live top-of-book state and the latest metrics snapshot
// for external consumers (dashboards, other processes).
type BookCache interface {
	SetTopOfBook(ctx context.Context, symbol string, snap BookSnapshot) error
	GetTopOfBook(ctx context.Context, symbol string) (bestBid, bestAsk float64, ts time.Time, err error)
	SetMetrics(ctx context.Context, symbol string, snap MetricsSnapshot) error
	GetMetrics(ctx context.Context, symbol string) (MetricsSnapshot, error)
}
