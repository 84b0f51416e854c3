package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/costsim/internal/domain"
)

// MetricsStore implements domain.MetricsStore using PostgreSQL. Each computed
// snapshot becomes one append-only row, keyed by a fresh UUID.
type MetricsStore struct {
	pool *pgxpool.Pool
}

// NewMetricsStore creates a new MetricsStore backed by the given pool.
func NewMetricsStore(pool *pgxpool.Pool) *MetricsStore {
	return &MetricsStore{pool: pool}
}

// Insert appends one metrics snapshot.
func (s *MetricsStore) Insert(ctx context.Context, snap domain.MetricsSnapshot) error {
	const query = `
		INSERT INTO metrics_snapshots (
			id, run_id, exchange, symbol,
			slippage, fee_amount, market_impact, net_cost,
			maker_taker_ratio, latency_ms, book_sequence_id, computed_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8,
			$9, $10, $11, $12
		)`

	_, err := s.pool.Exec(ctx, query,
		uuid.New(), snap.RunID, snap.Exchange, snap.Symbol,
		snap.Slippage, snap.FeeAmount, snap.MarketImpact, snap.NetCost,
		snap.MakerTakerRatio, snap.LatencyMs, int64(snap.BookSequenceID), snap.ComputedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert metrics snapshot: %w", err)
	}
	return nil
}

// ListRecent returns up to limit snapshots, newest first.
func (s *MetricsStore) ListRecent(ctx context.Context, limit int) ([]domain.MetricsSnapshot, error) {
	const query = `
		SELECT run_id, exchange, symbol,
			slippage, fee_amount, market_impact, net_cost,
			maker_taker_ratio, latency_ms, book_sequence_id, computed_at
		FROM metrics_snapshots
		ORDER BY computed_at DESC
		LIMIT $1`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list metrics snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []domain.MetricsSnapshot
	for rows.Next() {
		var snap domain.MetricsSnapshot
		var seq int64
		if err := rows.Scan(
			&snap.RunID, &snap.Exchange, &snap.Symbol,
			&snap.Slippage, &snap.FeeAmount, &snap.MarketImpact, &snap.NetCost,
			&snap.MakerTakerRatio, &snap.LatencyMs, &seq, &snap.ComputedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan metrics snapshot: %w", err)
		}
		snap.BookSequenceID = uint64(seq)
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

// DeleteBefore removes snapshots computed before cutoff and reports how many
// rows were deleted.
func (s *MetricsStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		"DELETE FROM metrics_snapshots WHERE computed_at < $1", cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete metrics snapshots: %w", err)
	}
	return tag.RowsAffected(), nil
}
