// Package candle folds bid ticks into M1, H1 and D1 OHLC buckets.
// Each tick is applied cache-first: the working candle is read from
// the cache, stretched, written back, and only then folded into the
// durable row. One failure aborts the job so the retry replays every
// timeframe; replays are harmless because applying the same price
// twice changes nothing.
package candle

import (
	"context"
	"fmt"
	"time"

	"fixfeed/internal/jobq"
	"fixfeed/internal/model"

	"github.com/shopspring/decimal"
)

// Job is one bid price observation to fold into all timeframes.
type Job struct {
	Symbol   string
	Price    decimal.Decimal
	TickTime time.Time
}

// Engine runs the candle queue.
type Engine struct {
	store model.CandleStore
	cache model.CandleCache
	queue *jobq.Queue[Job]
}

// New builds the engine around its queue config.
func New(store model.CandleStore, cache model.CandleCache, cfg jobq.Config) *Engine {
	e := &Engine{store: store, cache: cache}
	e.queue = jobq.New(cfg, e.process)
	return e
}

// Run starts the workers.
func (e *Engine) Run(ctx context.Context) { e.queue.Run(ctx) }

// Close drains the queue, bounded by ctx.
func (e *Engine) Close(ctx context.Context) { e.queue.Close(ctx) }

// Enqueue adds one observation without blocking.
func (e *Engine) Enqueue(id string, j Job) error { return e.queue.Enqueue(id, j) }

// Depth reports queued jobs for the queue depth gauge.
func (e *Engine) Depth() int { return e.queue.Depth() }

// Dropped reports jobs abandoned after their retry budget.
func (e *Engine) Dropped() uint64 { return e.queue.Dropped() }

// Processed reports completed jobs.
func (e *Engine) Processed() uint64 { return e.queue.Processed() }

func (e *Engine) process(ctx context.Context, id string, j Job) error {
	for _, tf := range model.Timeframes() {
		if err := e.applyTimeframe(ctx, j, tf); err != nil {
			return fmt.Errorf("%s %s: %w", j.Symbol, tf.Name, err)
		}
	}
	return nil
}

func (e *Engine) applyTimeframe(ctx context.Context, j Job, tf model.Timeframe) error {
	bucket := tf.Bucket(j.TickTime)
	key := model.CandleCacheKey(j.Symbol, tf.Name, bucket)

	working, err := e.cache.GetCandle(ctx, key)
	if err != nil {
		return err
	}
	if working == nil {
		working = model.NewCandle(j.Symbol, tf.Name, bucket, j.Price)
	} else {
		working.Apply(j.Price)
	}
	if err := e.cache.SetCandle(ctx, key, working); err != nil {
		return err
	}

	return e.store.UpsertCandle(ctx, j.Symbol, tf.Name, bucket, j.Price)
}
