// Package bootstrap loads the currency pair catalog and warms the
// cache from the durable store: per-pair tables are ensured, then tick
// lists and candle snapshots are published for every eligible pair.
// The warm runs at startup and again after each re-logon.
package bootstrap

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"fixfeed/internal/model"
)

// Load reads the pair catalog. Pairs with a missing or zero contract
// size stay in the catalog but are not eligible for subscription.
func Load(ctx context.Context, store model.CatalogStore) (*model.Catalog, error) {
	pairs, err := store.LoadPairs(ctx)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	catalog := model.NewCatalog(pairs)
	log.Printf("[bootstrap] catalog loaded: %d pairs, %d eligible", catalog.Len(), len(catalog.Eligible()))
	return catalog, nil
}

// Warmer publishes durable history into the cache.
type Warmer struct {
	schema  model.SchemaStore
	ticks   model.TickStore
	candles model.CandleStore
	cache   model.SnapshotCache

	running atomic.Bool
}

// NewWarmer wires the warm path's dependencies.
func NewWarmer(schema model.SchemaStore, ticks model.TickStore, candles model.CandleStore, cache model.SnapshotCache) *Warmer {
	return &Warmer{schema: schema, ticks: ticks, candles: candles, cache: cache}
}

// Warm ensures tables and publishes tick lists and candle snapshots
// for every eligible pair. Per-pair failures are logged and skipped;
// the warm never aborts. Overlapping calls are collapsed into one.
func (w *Warmer) Warm(ctx context.Context, catalog *model.Catalog) {
	if !w.running.CompareAndSwap(false, true) {
		log.Printf("[bootstrap] warm already running, skipping")
		return
	}
	defer w.running.Store(false)

	eligible := catalog.Eligible()
	start := time.Now()
	warmed := 0
	for _, symbol := range eligible {
		if err := w.warmPair(ctx, symbol); err != nil {
			log.Printf("[bootstrap] warm %s: %v", symbol, err)
			continue
		}
		warmed++
	}
	log.Printf("[bootstrap] cache warm done: %d/%d pairs in %v", warmed, len(eligible), time.Since(start))
}

func (w *Warmer) warmPair(ctx context.Context, symbol string) error {
	if err := w.schema.EnsurePairTables(ctx, symbol); err != nil {
		return err
	}
	for _, side := range []model.Side{model.SideBid, model.SideAsk} {
		ticks, err := w.ticks.ReadTicks(ctx, symbol, side)
		if err != nil {
			return err
		}
		if err := w.cache.PublishTicks(ctx, symbol, side, ticks); err != nil {
			return err
		}
	}
	candles, err := w.candles.ReadCandles(ctx, symbol)
	if err != nil {
		return err
	}
	return w.cache.PublishCandles(ctx, symbol, candles)
}
