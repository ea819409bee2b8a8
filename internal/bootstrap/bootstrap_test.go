package bootstrap

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"fixfeed/internal/model"

	"github.com/shopspring/decimal"
)

func pair(symbol, size string) model.CurrencyPair {
	p := model.CurrencyPair{Symbol: symbol}
	if size != "" {
		v, err := decimal.NewFromString(size)
		if err != nil {
			panic(err)
		}
		p.ContractSize = decimal.NullDecimal{Decimal: v, Valid: true}
	}
	return p
}

type fakeCatalogStore struct {
	pairs []model.CurrencyPair
	err   error
}

func (f *fakeCatalogStore) LoadPairs(ctx context.Context) ([]model.CurrencyPair, error) {
	return f.pairs, f.err
}

func (f *fakeCatalogStore) ContractSize(ctx context.Context, symbol string) (decimal.NullDecimal, error) {
	return decimal.NullDecimal{}, nil
}

type fakeWarmStore struct {
	mu          sync.Mutex
	ensured     []string
	failEnsure  string // EnsurePairTables fails for this symbol
	ticksRead   int
	candlesRead int
	gate        chan struct{} // when set, EnsurePairTables blocks on it
}

func (f *fakeWarmStore) EnsurePairTables(ctx context.Context, symbol string) error {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if symbol == f.failEnsure {
		return errors.New("ddl failed")
	}
	f.ensured = append(f.ensured, symbol)
	return nil
}

func (f *fakeWarmStore) ReadTicks(ctx context.Context, symbol string, side model.Side) ([]model.Tick, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ticksRead++
	return []model.Tick{{Symbol: symbol, Side: side, Lots: 1}}, nil
}

func (f *fakeWarmStore) InsertTick(ctx context.Context, t model.Tick) error { return nil }

func (f *fakeWarmStore) ReadCandles(ctx context.Context, symbol string) ([]model.Candle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.candlesRead++
	return []model.Candle{{Symbol: symbol, Timeframe: "M1"}}, nil
}

func (f *fakeWarmStore) UpsertCandle(ctx context.Context, symbol, timeframe string, candleTime time.Time, price decimal.Decimal) error {
	return nil
}

func (f *fakeWarmStore) ensuredList() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ensured...)
}

type fakeSnapshotCache struct {
	mu           sync.Mutex
	tickPubs     map[string]int // "symbol/side" -> count
	candlePubs   map[string]int
	failCandles  bool
	publishedLen map[string]int
}

func newFakeSnapshotCache() *fakeSnapshotCache {
	return &fakeSnapshotCache{
		tickPubs:     make(map[string]int),
		candlePubs:   make(map[string]int),
		publishedLen: make(map[string]int),
	}
}

func (f *fakeSnapshotCache) PublishTicks(ctx context.Context, symbol string, side model.Side, ticks []model.Tick) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tickPubs[symbol+"/"+string(side)]++
	f.publishedLen[symbol+"/"+string(side)] = len(ticks)
	return nil
}

func (f *fakeSnapshotCache) PublishCandles(ctx context.Context, symbol string, candles []model.Candle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCandles {
		return errors.New("cache down")
	}
	f.candlePubs[symbol]++
	return nil
}

func TestLoad_BuildsCatalogWithEligibility(t *testing.T) {
	store := &fakeCatalogStore{pairs: []model.CurrencyPair{
		pair("EURUSD", "100000"),
		pair("GBPUSD", "100000"),
		pair("BROKEN", ""), // no contract size, stays ineligible
	}}
	catalog, err := Load(context.Background(), store)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if catalog.Len() != 3 {
		t.Errorf("expected 3 pairs in catalog, got %d", catalog.Len())
	}
	eligible := catalog.Eligible()
	if len(eligible) != 2 {
		t.Fatalf("expected 2 eligible pairs, got %v", eligible)
	}
	if _, ok := catalog.ContractSize("BROKEN"); ok {
		t.Errorf("expected BROKEN to have no usable contract size")
	}
}

func TestLoad_PropagatesStoreError(t *testing.T) {
	store := &fakeCatalogStore{err: errors.New("connection refused")}
	if _, err := Load(context.Background(), store); err == nil {
		t.Fatalf("expected error from failing catalog store")
	}
}

func TestWarmer_WarmsEveryEligiblePair(t *testing.T) {
	catalog := model.NewCatalog([]model.CurrencyPair{
		pair("EURUSD", "100000"),
		pair("GBPUSD", "100000"),
		pair("BROKEN", ""),
	})
	store := &fakeWarmStore{}
	cache := newFakeSnapshotCache()
	w := NewWarmer(store, store, store, cache)

	w.Warm(context.Background(), catalog)

	if got := store.ensuredList(); len(got) != 2 {
		t.Fatalf("expected tables ensured for 2 eligible pairs, got %v", got)
	}
	for _, symbol := range []string{"EURUSD", "GBPUSD"} {
		if cache.tickPubs[symbol+"/BID"] != 1 || cache.tickPubs[symbol+"/ASK"] != 1 {
			t.Errorf("expected both tick sides published for %s, got %v", symbol, cache.tickPubs)
		}
		if cache.candlePubs[symbol] != 1 {
			t.Errorf("expected candle snapshot published for %s", symbol)
		}
	}
	if _, ok := cache.candlePubs["BROKEN"]; ok {
		t.Errorf("expected ineligible pair to be skipped")
	}
}

func TestWarmer_PairFailureDoesNotAbortWarm(t *testing.T) {
	catalog := model.NewCatalog([]model.CurrencyPair{
		pair("EURUSD", "100000"),
		pair("GBPUSD", "100000"),
	})
	store := &fakeWarmStore{failEnsure: "EURUSD"}
	cache := newFakeSnapshotCache()
	w := NewWarmer(store, store, store, cache)

	w.Warm(context.Background(), catalog)

	if cache.candlePubs["GBPUSD"] != 1 {
		t.Errorf("expected GBPUSD warmed despite EURUSD failure")
	}
	if _, ok := cache.candlePubs["EURUSD"]; ok {
		t.Errorf("expected EURUSD skipped after table failure")
	}
}

func TestWarmer_OverlappingWarmsCollapse(t *testing.T) {
	catalog := model.NewCatalog([]model.CurrencyPair{pair("EURUSD", "100000")})
	store := &fakeWarmStore{gate: make(chan struct{})}
	cache := newFakeSnapshotCache()
	w := NewWarmer(store, store, store, cache)

	done := make(chan struct{})
	go func() {
		w.Warm(context.Background(), catalog)
		close(done)
	}()

	// Let the first warm reach the gate, then try a second warm.
	time.Sleep(20 * time.Millisecond)
	w.Warm(context.Background(), catalog) // returns immediately, skipped

	close(store.gate)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("first warm never finished")
	}
	if got := len(store.ensuredList()); got != 1 {
		t.Errorf("expected exactly one warm to run, got %d table ensures", got)
	}
}
