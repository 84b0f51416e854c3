package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/costsim/internal/domain"
)

// BookCache implements domain.BookCache using Redis hashes.
//
// Key schema:
//
//	costsim:book:{symbol}     - hash with "bid", "ask", "seq", "ts" fields
//	costsim:metrics:{symbol}  - hash with one field per metric plus "run_id", "ts"
type BookCache struct {
	rdb *redis.Client
}

// NewBookCache creates a BookCache backed by the given Client.
func NewBookCache(c *Client) *BookCache {
	return &BookCache{rdb: c.Underlying()}
}

func bookKey(symbol string) string    { return "costsim:book:" + symbol }
func metricsKey(symbol string) string { return "costsim:metrics:" + symbol }

// SetTopOfBook stores the best bid/ask, sequence number, and feed timestamp
// for a symbol.
func (bc *BookCache) SetTopOfBook(ctx context.Context, symbol string, snap domain.BookSnapshot) error {
	fields := map[string]interface{}{
		"seq": strconv.FormatUint(snap.SequenceID, 10),
		"ts":  strconv.FormatInt(snap.Timestamp.UnixNano(), 10),
	}
	if bid, ok := snap.BestBid(); ok {
		fields["bid"] = strconv.FormatFloat(bid.Price, 'f', -1, 64)
	}
	if ask, ok := snap.BestAsk(); ok {
		fields["ask"] = strconv.FormatFloat(ask.Price, 'f', -1, 64)
	}

	if err := bc.rdb.HSet(ctx, bookKey(symbol), fields).Err(); err != nil {
		return fmt.Errorf("redis: set top of book %s: %w", symbol, err)
	}
	return nil
}

// GetTopOfBook retrieves the best bid/ask and feed timestamp for a symbol.
// It returns domain.ErrNotFound when nothing has been published yet.
func (bc *BookCache) GetTopOfBook(ctx context.Context, symbol string) (float64, float64, time.Time, error) {
	vals, err := bc.rdb.HGetAll(ctx, bookKey(symbol)).Result()
	if err != nil {
		return 0, 0, time.Time{}, fmt.Errorf("redis: get top of book %s: %w", symbol, err)
	}
	if len(vals) == 0 {
		return 0, 0, time.Time{}, domain.ErrNotFound
	}

	bid, err := parseFloatField(vals, "bid", symbol)
	if err != nil {
		return 0, 0, time.Time{}, err
	}
	ask, err := parseFloatField(vals, "ask", symbol)
	if err != nil {
		return 0, 0, time.Time{}, err
	}

	var ts time.Time
	if raw, ok := vals["ts"]; ok {
		nanos, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return 0, 0, time.Time{}, fmt.Errorf("redis: parse ts %s: %w", symbol, err)
		}
		ts = time.Unix(0, nanos)
	}

	return bid, ask, ts, nil
}

// SetMetrics stores the latest metrics snapshot for a symbol.
func (bc *BookCache) SetMetrics(ctx context.Context, symbol string, snap domain.MetricsSnapshot) error {
	fields := map[string]interface{}{
		"run_id":            snap.RunID,
		"exchange":          snap.Exchange,
		"slippage":          strconv.FormatFloat(snap.Slippage, 'f', -1, 64),
		"fee_amount":        strconv.FormatFloat(snap.FeeAmount, 'f', -1, 64),
		"market_impact":     strconv.FormatFloat(snap.MarketImpact, 'f', -1, 64),
		"net_cost":          strconv.FormatFloat(snap.NetCost, 'f', -1, 64),
		"maker_taker_ratio": strconv.FormatFloat(snap.MakerTakerRatio, 'f', -1, 64),
		"latency_ms":        strconv.FormatFloat(snap.LatencyMs, 'f', -1, 64),
		"seq":               strconv.FormatUint(snap.BookSequenceID, 10),
		"ts":                strconv.FormatInt(snap.ComputedAt.UnixNano(), 10),
	}
	if err := bc.rdb.HSet(ctx, metricsKey(symbol), fields).Err(); err != nil {
		return fmt.Errorf("redis: set metrics %s: %w", symbol, err)
	}
	return nil
}

// GetMetrics retrieves the latest published metrics snapshot for a symbol.
// It returns domain.ErrNotFound when nothing has been published yet.
func (bc *BookCache) GetMetrics(ctx context.Context, symbol string) (domain.MetricsSnapshot, error) {
	vals, err := bc.rdb.HGetAll(ctx, metricsKey(symbol)).Result()
	if err != nil {
		return domain.MetricsSnapshot{}, fmt.Errorf("redis: get metrics %s: %w", symbol, err)
	}
	if len(vals) == 0 {
		return domain.MetricsSnapshot{}, domain.ErrNotFound
	}

	snap := domain.MetricsSnapshot{
		RunID:    vals["run_id"],
		Exchange: vals["exchange"],
		Symbol:   symbol,
	}
	if snap.Slippage, err = parseFloatField(vals, "slippage", symbol); err != nil {
		return domain.MetricsSnapshot{}, err
	}
	if snap.FeeAmount, err = parseFloatField(vals, "fee_amount", symbol); err != nil {
		return domain.MetricsSnapshot{}, err
	}
	if snap.MarketImpact, err = parseFloatField(vals, "market_impact", symbol); err != nil {
		return domain.MetricsSnapshot{}, err
	}
	if snap.NetCost, err = parseFloatField(vals, "net_cost", symbol); err != nil {
		return domain.MetricsSnapshot{}, err
	}
	if snap.MakerTakerRatio, err = parseFloatField(vals, "maker_taker_ratio", symbol); err != nil {
		return domain.MetricsSnapshot{}, err
	}
	if snap.LatencyMs, err = parseFloatField(vals, "latency_ms", symbol); err != nil {
		return domain.MetricsSnapshot{}, err
	}
	if raw, ok := vals["seq"]; ok {
		if snap.BookSequenceID, err = strconv.ParseUint(raw, 10, 64); err != nil {
			return domain.MetricsSnapshot{}, fmt.Errorf("redis: parse seq %s: %w", symbol, err)
		}
	}
	if raw, ok := vals["ts"]; ok {
		nanos, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return domain.MetricsSnapshot{}, fmt.Errorf("redis: parse ts %s: %w", symbol, err)
		}
		snap.ComputedAt = time.Unix(0, nanos)
	}

	return snap, nil
}

func parseFloatField(vals map[string]string, field, symbol string) (float64, error) {
	raw, ok := vals[field]
	if !ok {
		return 0, domain.ErrNotFound
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("redis: parse %s %s: %w", field, symbol, err)
	}
	return f, nil
}
