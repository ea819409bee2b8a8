// Package pipeline is the tick path: raw quotes off the FIX session
// become normalized ticks, land in the cache list and the durable
// table, and bid ticks fan out to the candle engine.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"fixfeed/internal/candle"
	"fixfeed/internal/jobq"
	"fixfeed/internal/model"

	"github.com/shopspring/decimal"
)

// Store is the durable side the pipeline needs: the contract size
// fallback for pairs missing from the boot catalog, and tick inserts.
type Store interface {
	ContractSize(ctx context.Context, symbol string) (decimal.NullDecimal, error)
	InsertTick(ctx context.Context, t model.Tick) error
}

// CandleSink receives bid ticks for OHLC aggregation.
type CandleSink interface {
	Enqueue(id string, j candle.Job) error
}

// Pipeline runs the tick queue.
type Pipeline struct {
	catalog *model.Catalog
	store   Store
	cache   model.TickCache
	candles CandleSink
	queue   *jobq.Queue[model.RawQuote]
}

// New builds the pipeline around its queue config.
func New(catalog *model.Catalog, store Store, cache model.TickCache, candles CandleSink, cfg jobq.Config) *Pipeline {
	p := &Pipeline{catalog: catalog, store: store, cache: cache, candles: candles}
	p.queue = jobq.New(cfg, p.process)
	return p
}

// Run starts the workers.
func (p *Pipeline) Run(ctx context.Context) { p.queue.Run(ctx) }

// Close drains the queue, bounded by ctx.
func (p *Pipeline) Close(ctx context.Context) { p.queue.Close(ctx) }

// Depth reports queued jobs for the queue depth gauge.
func (p *Pipeline) Depth() int { return p.queue.Depth() }

// Processed reports completed jobs.
func (p *Pipeline) Processed() uint64 { return p.queue.Processed() }

// Dropped reports jobs rejected or abandoned.
func (p *Pipeline) Dropped() uint64 { return p.queue.Dropped() }

// Enqueue schedules one raw quote without blocking.
func (p *Pipeline) Enqueue(q model.RawQuote) error {
	id := fmt.Sprintf("%s_%s_%d", q.Symbol, q.Side, time.Now().UnixMilli())
	return p.queue.Enqueue(id, q)
}

// process handles one quote attempt. The cache append runs before the
// durable insert, so a retry after a store failure appends the tick to
// the cache list again; readers tolerate the duplicate.
func (p *Pipeline) process(ctx context.Context, id string, q model.RawQuote) error {
	size, err := p.contractSize(ctx, q.Symbol)
	if err != nil {
		return err
	}
	tick, err := model.NormalizeQuote(q, size, time.Now())
	if err != nil {
		return err
	}

	if err := p.cache.AppendTick(ctx, tick); err != nil {
		return fmt.Errorf("cache append: %w", err)
	}
	if err := p.store.InsertTick(ctx, tick); err != nil {
		return fmt.Errorf("store insert: %w", err)
	}

	if tick.Side != model.SideBid {
		return nil
	}
	job := candle.Job{Symbol: tick.Symbol, Price: tick.Price, TickTime: tick.TickTime}
	if err := p.candles.Enqueue(id, job); err != nil {
		return fmt.Errorf("candle enqueue: %w", err)
	}
	return nil
}

// contractSize resolves a pair's contract size, boot catalog first.
func (p *Pipeline) contractSize(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if size, ok := p.catalog.ContractSize(symbol); ok {
		return size, nil
	}
	size, err := p.store.ContractSize(ctx, symbol)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("contract size lookup: %w", err)
	}
	if !size.Valid || size.Decimal.IsZero() {
		return decimal.Decimal{}, fmt.Errorf("%s: %w", symbol, model.ErrUnknownContractSize)
	}
	return size.Decimal, nil
}
