package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"fixfeed/config"
	"fixfeed/internal/bootstrap"
	"fixfeed/internal/candle"
	"fixfeed/internal/feed"
	"fixfeed/internal/jobq"
	"fixfeed/internal/logger"
	"fixfeed/internal/metrics"
	"fixfeed/internal/model"
	"fixfeed/internal/pipeline"
	"fixfeed/internal/store/postgres"
	redisstore "fixfeed/internal/store/redis"
	"fixfeed/pkg/fix"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	if err := godotenv.Load(); err != nil {
		log.Printf("[fixfeed] no .env file, using process environment")
	}

	cfg := config.Load()
	slogger := logger.Init("fixfeed", logger.ParseLevel(cfg.LogLevel))
	slogger.Info("starting", "fix_server", cfg.FixServer, "fix_port", cfg.FixPort)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- Metrics & health ----
	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	// ---- Durable store ----
	store, err := postgres.New(postgres.Config{
		Host:     cfg.PGHost,
		Port:     cfg.PGPort,
		User:     cfg.PGUser,
		Password: cfg.PGPassword,
		Database: cfg.PGDatabase,
	})
	if err != nil {
		log.Fatalf("[fixfeed] postgres init failed: %v", err)
	}
	defer store.Close()

	// ---- Cache ----
	cache := redisstore.New(redisstore.Config{
		Host: cfg.RedisHost,
		Port: cfg.RedisPort,
	})
	if err := cache.Connect(ctx); err != nil {
		log.Printf("[fixfeed] WARNING: redis connect failed: %v (reconnect rides the session loop)", err)
	}

	// ---- Bootstrap: catalog + cache warm ----
	catalog, err := bootstrap.Load(ctx, store)
	if err != nil {
		log.Printf("[fixfeed] WARNING: catalog load failed: %v (starting with empty catalog)", err)
		catalog = model.NewCatalog(nil)
	}
	warmer := bootstrap.NewWarmer(store, store, store, cache)
	warmer.Warm(ctx, catalog)

	health.StartLivenessChecker(ctx, cache, store, prom, 10*time.Second)

	// ---- Candle engine ----
	engine := candle.New(store, cache, jobq.Config{
		Name:        "candleq",
		Workers:     1,
		RatePerSec:  50,
		MaxAttempts: 3,
		Backoff:     time.Second,
		JobTimeout:  30 * time.Second,
		MaxStalled:  1,
	})
	engine.Run(ctx)

	// ---- Tick pipeline ----
	pipe := pipeline.New(catalog, store, cache, engine, jobq.Config{
		Name:        "tickq",
		Workers:     5,
		RatePerSec:  100,
		MaxAttempts: 3,
		Backoff:     time.Second,
		JobTimeout:  30 * time.Second,
		MaxStalled:  1,
	})
	pipe.Run(ctx)

	ingest := feed.New(pipe)

	// ---- FIX session ----
	session := fix.NewSession(fix.SessionConfig{
		Server:       cfg.FixServer,
		Port:         cfg.FixPort,
		SenderCompID: cfg.SenderCompID,
		TargetCompID: cfg.TargetCompID,
		Username:     cfg.Username,
		Password:     cfg.Password,
		Symbols:      catalog.Eligible(),
	})
	session.OnQuote = func(q fix.Quote) {
		health.SetLastQuoteTime(time.Now())
		ingest.HandleQuote(q)
	}
	session.OnLogon = func(reconnected bool) {
		prom.SessionLogons.Inc()
		prom.SessionUp.Set(1)
		health.SetSessionConnected(true)
		if reconnected {
			go warmer.Warm(ctx, catalog)
		}
	}
	session.OnDisconnect = func(err error) {
		prom.SessionUp.Set(0)
		health.SetSessionConnected(false)
	}
	session.OnReconnecting = func(attempt int) {
		prom.SessionReconnects.Inc()
		go func() {
			if err := cache.Connect(ctx); err != nil {
				log.Printf("[fixfeed] redis reconnect: %v", err)
			}
		}()
	}

	go func() {
		if err := session.Run(ctx); err != nil {
			// Reconnect cap reached: the feed is down but the queues
			// keep draining and /healthz reports degraded.
			slogger.Error("session ended", "err", err)
		}
	}()

	// ---- Gauge and counter sampling ----
	go func() {
		var quotes, quoteDrops, tickDone, tickDrop, candleDone, candleDrop counterDelta
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				prom.TickQueueDepth.Set(float64(pipe.Depth()))
				prom.CandleQueueDepth.Set(float64(engine.Depth()))
				prom.RedisCircuit.Set(float64(cache.BreakerState()))
				quotes.add(prom.QuotesTotal, ingest.Received())
				quoteDrops.add(prom.QuoteDrops, ingest.Dropped())
				tickDone.add(prom.TickJobsProcessed, pipe.Processed())
				tickDrop.add(prom.TickJobsDropped, pipe.Dropped())
				candleDone.add(prom.CandleJobsProcessed, engine.Processed())
				candleDrop.add(prom.CandleJobsDropped, engine.Dropped())
			}
		}
	}()

	slogger.Info("pipeline ready", "pairs", len(catalog.Eligible()))

	// ---- Wait for shutdown signal ----
	<-sigCh
	slogger.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	// Logout and half-close first so no new quotes arrive, then drain
	// the queues before the stores go away.
	session.Stop(shutdownCtx)
	pipe.Close(shutdownCtx)
	engine.Close(shutdownCtx)
	cancel()
	metricsSrv.Stop(shutdownCtx)
	if err := cache.Close(); err != nil {
		log.Printf("[fixfeed] redis close: %v", err)
	}
	if err := store.Close(); err != nil {
		log.Printf("[fixfeed] postgres close: %v", err)
	}
	slogger.Info("shutdown complete")
}

// counterDelta feeds a sampled monotonic total into a Prometheus
// counter as increments.
type counterDelta struct {
	last uint64
}

func (d *counterDelta) add(c prometheus.Counter, cur uint64) {
	if cur > d.last {
		c.Add(float64(cur - d.last))
		d.last = cur
	}
}
