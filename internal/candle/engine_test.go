package candle

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"fixfeed/internal/jobq"
	"fixfeed/internal/model"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

type upsert struct {
	symbol, timeframe string
	candleTime        time.Time
	price             decimal.Decimal
}

type fakeCandleStore struct {
	mu      sync.Mutex
	upserts []upsert
	failTF  string // UpsertCandle fails for this timeframe
}

func (f *fakeCandleStore) UpsertCandle(ctx context.Context, symbol, timeframe string, candleTime time.Time, price decimal.Decimal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failTF == timeframe {
		return errors.New("store down")
	}
	f.upserts = append(f.upserts, upsert{symbol, timeframe, candleTime, price})
	return nil
}

func (f *fakeCandleStore) ReadCandles(ctx context.Context, symbol string) ([]model.Candle, error) {
	return nil, nil
}

func (f *fakeCandleStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.upserts)
}

type fakeCandleCache struct {
	mu      sync.Mutex
	candles map[string]*model.Candle
	sets    int
}

func newFakeCandleCache() *fakeCandleCache {
	return &fakeCandleCache{candles: make(map[string]*model.Candle)}
}

func (f *fakeCandleCache) GetCandle(ctx context.Context, key string) (*model.Candle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.candles[key]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (f *fakeCandleCache) SetCandle(ctx context.Context, key string, c *model.Candle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *c
	f.candles[key] = &cp
	f.sets++
	return nil
}

func (f *fakeCandleCache) get(key string) *model.Candle {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.candles[key]
}

func newTestEngine(store *fakeCandleStore, cache *fakeCandleCache) *Engine {
	return New(store, cache, jobq.Config{Name: "candles", Workers: 1, Capacity: 16})
}

func TestEngine_FirstTickOpensBucket(t *testing.T) {
	store := &fakeCandleStore{}
	cache := newFakeCandleCache()
	e := newTestEngine(store, cache)

	ts := time.Date(2024, 3, 1, 12, 34, 56, 0, time.UTC)
	err := e.process(context.Background(), "j1", Job{Symbol: "EURUSD", Price: d("1.10000"), TickTime: ts})
	if err != nil {
		t.Fatalf("process: %v", err)
	}

	if got := store.count(); got != 3 {
		t.Fatalf("expected 3 upserts (M1, H1, D1), got %d", got)
	}
	wantBuckets := map[string]time.Time{
		"M1": time.Date(2024, 3, 1, 12, 34, 0, 0, time.UTC),
		"H1": time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		"D1": time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	for _, u := range store.upserts {
		if want := wantBuckets[u.timeframe]; !u.candleTime.Equal(want) {
			t.Errorf("%s bucket: expected %v, got %v", u.timeframe, want, u.candleTime)
		}
	}

	key := model.CandleCacheKey("EURUSD", "M1", wantBuckets["M1"])
	c := cache.get(key)
	if c == nil {
		t.Fatalf("expected working candle cached at %s", key)
	}
	for _, v := range []decimal.Decimal{c.Open, c.High, c.Low, c.Close} {
		if !v.Equal(d("1.10000")) {
			t.Errorf("expected all four prices 1.10000 on a fresh bucket, got %+v", c)
		}
	}
	if c.Lots != model.CandleLots {
		t.Errorf("expected lots %d, got %d", model.CandleLots, c.Lots)
	}
}

func TestEngine_LaterTicksStretchBucket(t *testing.T) {
	store := &fakeCandleStore{}
	cache := newFakeCandleCache()
	e := newTestEngine(store, cache)
	ctx := context.Background()

	ts := time.Date(2024, 3, 1, 12, 0, 5, 0, time.UTC)
	for _, p := range []string{"1.10000", "1.10050", "1.09990"} {
		ts = ts.Add(time.Second)
		if err := e.process(ctx, "j", Job{Symbol: "EURUSD", Price: d(p), TickTime: ts}); err != nil {
			t.Fatalf("process %s: %v", p, err)
		}
	}

	key := model.CandleCacheKey("EURUSD", "M1", time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	c := cache.get(key)
	if c == nil {
		t.Fatalf("no working candle at %s", key)
	}
	if !c.Open.Equal(d("1.10000")) {
		t.Errorf("expected open to stay 1.10000, got %s", c.Open)
	}
	if !c.High.Equal(d("1.10050")) {
		t.Errorf("expected high 1.10050, got %s", c.High)
	}
	if !c.Low.Equal(d("1.09990")) {
		t.Errorf("expected low 1.09990, got %s", c.Low)
	}
	if !c.Close.Equal(d("1.09990")) {
		t.Errorf("expected close 1.09990, got %s", c.Close)
	}
	if got := store.count(); got != 9 {
		t.Errorf("expected 9 upserts for 3 ticks, got %d", got)
	}
}

func TestEngine_FailureAbortsRemainingTimeframes(t *testing.T) {
	store := &fakeCandleStore{failTF: "H1"}
	cache := newFakeCandleCache()
	e := newTestEngine(store, cache)

	ts := time.Date(2024, 3, 1, 12, 34, 56, 0, time.UTC)
	err := e.process(context.Background(), "j1", Job{Symbol: "EURUSD", Price: d("1.10000"), TickTime: ts})
	if err == nil {
		t.Fatalf("expected job error when a timeframe fails")
	}
	if !strings.Contains(err.Error(), "H1") {
		t.Errorf("expected failing timeframe in error, got %v", err)
	}

	// M1 landed, H1 failed, D1 never attempted.
	if got := store.count(); got != 1 {
		t.Errorf("expected only the M1 upsert, got %d", got)
	}
	if store.upserts[0].timeframe != "M1" {
		t.Errorf("expected M1 first, got %s", store.upserts[0].timeframe)
	}
	dayKey := model.CandleCacheKey("EURUSD", "D1", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	if cache.get(dayKey) != nil {
		t.Errorf("expected D1 untouched after H1 failure")
	}
}

func TestEngine_ReplayedPriceIsIdempotent(t *testing.T) {
	store := &fakeCandleStore{}
	cache := newFakeCandleCache()
	e := newTestEngine(store, cache)
	ctx := context.Background()

	ts := time.Date(2024, 3, 1, 9, 15, 0, 0, time.UTC)
	job := Job{Symbol: "GBPUSD", Price: d("1.26500"), TickTime: ts}
	if err := e.process(ctx, "j1", job); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	key := model.CandleCacheKey("GBPUSD", "M1", ts)
	before := *cache.get(key)

	if err := e.process(ctx, "j1", job); err != nil {
		t.Fatalf("replay: %v", err)
	}
	after := *cache.get(key)

	if !after.Open.Equal(before.Open) || !after.High.Equal(before.High) ||
		!after.Low.Equal(before.Low) || !after.Close.Equal(before.Close) {
		t.Errorf("expected replay to change nothing, before %+v after %+v", before, after)
	}
}

func TestEngine_QueueDeliversJobs(t *testing.T) {
	store := &fakeCandleStore{}
	cache := newFakeCandleCache()
	e := newTestEngine(store, cache)
	ctx := context.Background()
	e.Run(ctx)
	defer e.Close(ctx)

	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := e.Enqueue("gbpusd_BID_1", Job{Symbol: "GBPUSD", Price: d("1.26500"), TickTime: ts}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if store.count() == 3 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected 3 upserts via queue, got %d", store.count())
}
