package feed

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/alanyoungcy/costsim/internal/domain"
)

// timestampLayout is the wire format for message timestamps (ISO-8601 UTC).
const timestampLayout = "2006-01-02T15:04:05Z"

// wireMessage mirrors the inbound L2 message envelope. Price levels arrive as
// ["price", "quantity"] string pairs.
type wireMessage struct {
	Timestamp *string    `json:"timestamp"`
	Bids      [][]string `json:"bids"`
	Asks      [][]string `json:"asks"`
}

// Decode parses a raw feed payload into a BookUpdate. Missing keys,
// non-numeric price/quantity strings, or unparseable timestamps reject the
// whole message: the error wraps domain.ErrDecode and the book is never
// touched with partial data.
func Decode(raw []byte) (domain.BookUpdate, error) {
	var msg wireMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return domain.BookUpdate{}, fmt.Errorf("feed: %w: %v", domain.ErrDecode, err)
	}

	if msg.Timestamp == nil {
		return domain.BookUpdate{}, fmt.Errorf("feed: %w: missing timestamp", domain.ErrDecode)
	}
	if msg.Bids == nil {
		return domain.BookUpdate{}, fmt.Errorf("feed: %w: missing bids", domain.ErrDecode)
	}
	if msg.Asks == nil {
		return domain.BookUpdate{}, fmt.Errorf("feed: %w: missing asks", domain.ErrDecode)
	}

	ts, err := time.Parse(timestampLayout, *msg.Timestamp)
	if err != nil {
		return domain.BookUpdate{}, fmt.Errorf("feed: %w: timestamp %q: %v", domain.ErrDecode, *msg.Timestamp, err)
	}

	bids, err := parseLevels(msg.Bids, "bids")
	if err != nil {
		return domain.BookUpdate{}, err
	}
	asks, err := parseLevels(msg.Asks, "asks")
	if err != nil {
		return domain.BookUpdate{}, err
	}

	return domain.BookUpdate{
		Timestamp: ts,
		Bids:      bids,
		Asks:      asks,
	}, nil
}

func parseLevels(pairs [][]string, side string) ([]domain.PriceLevel, error) {
	levels := make([]domain.PriceLevel, 0, len(pairs))
	for i, pair := range pairs {
		if len(pair) < 2 {
			return nil, fmt.Errorf("feed: %w: %s[%d] has %d fields, want 2", domain.ErrDecode, side, i, len(pair))
		}
		price, err := strconv.ParseFloat(pair[0], 64)
		if err != nil {
			return nil, fmt.Errorf("feed: %w: %s[%d] price %q", domain.ErrDecode, side, i, pair[0])
		}
		quantity, err := strconv.ParseFloat(pair[1], 64)
		if err != nil {
			return nil, fmt.Errorf("feed: %w: %s[%d] quantity %q", domain.ErrDecode, side, i, pair[1])
		}
		levels = append(levels, domain.PriceLevel{Price: price, Quantity: quantity})
	}
	return levels, nil
}
