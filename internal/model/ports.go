package model

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ── Storage Port Interfaces ──
// These interfaces decouple the pipeline, candle engine and bootstrap
// from the concrete Postgres and Redis implementations. Each store
// satisfies one or more of them.

// CatalogStore reads the currency pair catalog.
type CatalogStore interface {
	// LoadPairs returns every catalog row, eligible or not.
	LoadPairs(ctx context.Context) ([]CurrencyPair, error)

	// ContractSize looks up a single pair's contract size. Returns an
	// invalid NullDecimal (not an error) when the pair is unknown.
	ContractSize(ctx context.Context, symbol string) (decimal.NullDecimal, error)
}

// SchemaStore creates the per-pair tick and candle tables.
type SchemaStore interface {
	EnsurePairTables(ctx context.Context, symbol string) error
}

// TickStore writes and reads per-(symbol, side) tick tables.
type TickStore interface {
	// InsertTick persists a tick; a lots collision is silently ignored.
	InsertTick(ctx context.Context, t Tick) error

	// ReadTicks returns all stored ticks for a stream in time order.
	ReadTicks(ctx context.Context, symbol string, side Side) ([]Tick, error)
}

// CandleStore updates and reads per-symbol candle tables.
type CandleStore interface {
	// UpsertCandle folds a tick price into the durable bucket row:
	// update with running extrema when the row exists, insert with all
	// four prices equal otherwise. Idempotent for a repeated price.
	UpsertCandle(ctx context.Context, symbol, timeframe string, candleTime time.Time, price decimal.Decimal) error

	// ReadCandles returns all stored candles for a symbol in time order.
	ReadCandles(ctx context.Context, symbol string) ([]Candle, error)
}

// TickCache mirrors ticks into the hot cache.
type TickCache interface {
	// AppendTick appends the tick to its ordered cache list.
	AppendTick(ctx context.Context, t Tick) error
}

// CandleCache holds the live read-modify-write candle records.
type CandleCache interface {
	// GetCandle returns the cached candle for a key, or nil when absent.
	GetCandle(ctx context.Context, key string) (*Candle, error)

	// SetCandle writes the candle under the key.
	SetCandle(ctx context.Context, key string, c *Candle) error
}

// SnapshotCache publishes bootstrap snapshots of durable state.
type SnapshotCache interface {
	// PublishTicks replaces the tick list for a stream with a snapshot.
	PublishTicks(ctx context.Context, symbol string, side Side, ticks []Tick) error

	// PublishCandles replaces the candle snapshot list for a symbol.
	PublishCandles(ctx context.Context, symbol string, candles []Candle) error
}
