package model

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Side is the quote side of a market data entry (FIX tag 269).
type Side string

const (
	SideBid Side = "BID"
	SideAsk Side = "ASK"
)

// Lower returns the side in lowercase for table and cache key composition.
func (s Side) Lower() string {
	return strings.ToLower(string(s))
}

// RawQuote is one bid/ask entry as it came off the wire, before
// normalization. Price and Size stay strings so that malformed values
// fail inside the pipeline job and ride the retry policy.
type RawQuote struct {
	Symbol     string `json:"symbol"`
	Side       Side   `json:"side"`
	Price      string `json:"price"`
	Size       string `json:"size"`
	SourceTime string `json:"source_time"` // tag 273 "HH:MM:SS", or ""
	ReqID      string `json:"req_id"`      // tag 262 of the originating request
}

// Tick is a normalized, persistable quote observation.
// Lots is round(size / contractSize) for the symbol.
type Tick struct {
	Symbol   string          `json:"symbol"`
	Side     Side            `json:"side"`
	TickTime time.Time       `json:"ticktime"` // UTC
	Lots     int64           `json:"lots"`
	Price    decimal.Decimal `json:"price"`
}

// CacheKey returns the cache list key for this tick's stream:
// "ticks_{symbol}_{side}" (lowercased).
func (t *Tick) CacheKey() string {
	return TickListKey(t.Symbol, t.Side)
}

// TickListKey composes the per-symbol, per-side tick list key.
func TickListKey(symbol string, side Side) string {
	return "ticks_" + strings.ToLower(symbol) + "_" + side.Lower()
}

// JSON returns the JSON-encoded tick (ignoring errors for hot-path usage).
func (t *Tick) JSON() []byte {
	b, _ := json.Marshal(t)
	return b
}
