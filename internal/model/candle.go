package model

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// CandleLots is the lots value written on every candle row. Aggregation
// runs at a fixed granularity of 1 regardless of the tick's lot count.
const CandleLots = 1

// Candle is one OHLC bucket for a (symbol, timeframe) pair.
type Candle struct {
	Symbol     string          `json:"symbol"`
	Timeframe  string          `json:"timeframe"` // "M1", "H1", "D1"
	Lots       int             `json:"lots"`
	CandleTime time.Time       `json:"candletime"` // bucket start (UTC, timeframe-aligned)
	Open       decimal.Decimal `json:"open"`
	High       decimal.Decimal `json:"high"`
	Low        decimal.Decimal `json:"low"`
	Close      decimal.Decimal `json:"close"`
}

// NewCandle opens a bucket from its first tick: all four prices equal.
func NewCandle(symbol, timeframe string, candleTime time.Time, price decimal.Decimal) *Candle {
	return &Candle{
		Symbol:     symbol,
		Timeframe:  timeframe,
		Lots:       CandleLots,
		CandleTime: candleTime,
		Open:       price,
		High:       price,
		Low:        price,
		Close:      price,
	}
}

// Apply folds another tick price into the bucket. Open never changes;
// High/Low are running extrema; Close tracks the latest price.
func (c *Candle) Apply(price decimal.Decimal) {
	if price.GreaterThan(c.High) {
		c.High = price
	}
	if price.LessThan(c.Low) {
		c.Low = price
	}
	c.Close = price
}

// CacheKey returns the live-candle cache key:
// "candle_{symbol}_{timeframe}_{candletime_iso}" (symbol lowercased).
func (c *Candle) CacheKey() string {
	return CandleCacheKey(c.Symbol, c.Timeframe, c.CandleTime)
}

// CandleCacheKey composes the live-candle cache key for a bucket.
func CandleCacheKey(symbol, timeframe string, candleTime time.Time) string {
	return "candle_" + strings.ToLower(symbol) + "_" + timeframe + "_" +
		candleTime.UTC().Format(time.RFC3339)
}

// SnapshotKey returns the bootstrap snapshot list key: "candles_{symbol}".
func SnapshotKey(symbol string) string {
	return "candles_" + strings.ToLower(symbol)
}

// JSON returns the JSON-encoded candle (ignoring errors for hot-path usage).
func (c *Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}
