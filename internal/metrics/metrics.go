// Package metrics exposes the daemon's Prometheus metrics and the
// /healthz endpoint with periodic Redis and Postgres liveness probes.
package metrics

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the feed daemon.
type Metrics struct {
	QuotesTotal       prometheus.Counter
	QuoteDrops        prometheus.Counter
	SessionReconnects prometheus.Counter
	SessionLogons     prometheus.Counter

	TickJobsProcessed   prometheus.Counter
	TickJobsDropped     prometheus.Counter
	CandleJobsProcessed prometheus.Counter
	CandleJobsDropped   prometheus.Counter

	SessionUp        prometheus.Gauge
	TickQueueDepth   prometheus.Gauge
	CandleQueueDepth prometheus.Gauge
	RedisCircuit     prometheus.Gauge // 0=closed, 1=open, 2=half-open

	RedisProbeDur    prometheus.Histogram
	PostgresProbeDur prometheus.Histogram
}

// NewMetrics registers and returns all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		QuotesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fixfeed_quotes_total",
			Help: "Bid/ask entries received off the FIX session",
		}),
		QuoteDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fixfeed_quote_drops_total",
			Help: "Quotes rejected because the tick queue was full or closed",
		}),
		SessionReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fixfeed_session_reconnects_total",
			Help: "FIX session reconnection attempts",
		}),
		SessionLogons: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fixfeed_session_logons_total",
			Help: "Successful FIX logons",
		}),
		TickJobsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fixfeed_tick_jobs_processed_total",
			Help: "Tick queue jobs completed",
		}),
		TickJobsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fixfeed_tick_jobs_dropped_total",
			Help: "Tick queue jobs dropped after their retry budget",
		}),
		CandleJobsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fixfeed_candle_jobs_processed_total",
			Help: "Candle queue jobs completed",
		}),
		CandleJobsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fixfeed_candle_jobs_dropped_total",
			Help: "Candle queue jobs dropped after their retry budget",
		}),
		SessionUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fixfeed_session_up",
			Help: "FIX session state (1=logged on)",
		}),
		TickQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fixfeed_tick_queue_depth",
			Help: "Jobs waiting in the tick queue",
		}),
		CandleQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fixfeed_candle_queue_depth",
			Help: "Jobs waiting in the candle queue",
		}),
		RedisCircuit: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fixfeed_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisProbeDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fixfeed_redis_probe_duration_seconds",
			Help:    "Redis liveness probe latency",
			Buckets: prometheus.DefBuckets,
		}),
		PostgresProbeDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fixfeed_postgres_probe_duration_seconds",
			Help:    "Postgres liveness probe latency",
			Buckets: prometheus.DefBuckets,
		}),
	}

	prometheus.MustRegister(
		m.QuotesTotal,
		m.QuoteDrops,
		m.SessionReconnects,
		m.SessionLogons,
		m.TickJobsProcessed,
		m.TickJobsDropped,
		m.CandleJobsProcessed,
		m.CandleJobsDropped,
		m.SessionUp,
		m.TickQueueDepth,
		m.CandleQueueDepth,
		m.RedisCircuit,
		m.RedisProbeDur,
		m.PostgresProbeDur,
	)

	return m
}

// Pinger is the liveness surface the probes need from the cache and
// the durable store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	SessionConnected bool
	LastQuoteTime    time.Time
	RedisConnected   bool
	PostgresOK       bool

	RedisLatencyMs    float64
	PostgresLatencyMs float64
	LastCheckAt       time.Time
	StartedAt         time.Time
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{StartedAt: time.Now()}
}

func (h *HealthStatus) SetSessionConnected(v bool) {
	h.mu.Lock()
	h.SessionConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastQuoteTime(t time.Time) {
	h.mu.Lock()
	h.LastQuoteTime = t
	h.mu.Unlock()
}

// CheckRedis pings the cache and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, cache Pinger) time.Duration {
	start := time.Now()
	err := cache.Ping(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
	return latency
}

// CheckPostgres pings the durable store and records latency + health.
func (h *HealthStatus) CheckPostgres(ctx context.Context, store Pinger) time.Duration {
	start := time.Now()
	err := store.Ping(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.PostgresOK = err == nil
	h.PostgresLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
	return latency
}

// StartLivenessChecker runs periodic dependency checks, feeding the
// probe latency histograms when m is non-nil.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, cache, store Pinger, m *Metrics, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if cache != nil {
					d := h.CheckRedis(probeCtx, cache)
					if m != nil {
						m.RedisProbeDur.Observe(d.Seconds())
					}
				}
				if store != nil {
					d := h.CheckPostgres(probeCtx, store)
					if m != nil {
						m.PostgresProbeDur.Observe(d.Seconds())
					}
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK
	if !h.SessionConnected || !h.RedisConnected || !h.PostgresOK {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if !h.RedisConnected && !h.PostgresOK {
		overallStatus = "unhealthy"
	}

	quoteAge := ""
	if !h.LastQuoteTime.IsZero() {
		quoteAge = time.Since(h.LastQuoteTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status            string  `json:"status"`
		Uptime            string  `json:"uptime"`
		SessionConnected  bool    `json:"session_connected"`
		LastQuoteTime     string  `json:"last_quote_time"`
		QuoteAge          string  `json:"quote_age"`
		RedisConnected    bool    `json:"redis_connected"`
		RedisLatencyMs    float64 `json:"redis_latency_ms"`
		PostgresOK        bool    `json:"postgres_ok"`
		PostgresLatencyMs float64 `json:"postgres_latency_ms"`
		LastCheckAt       string  `json:"last_check_at"`
	}{
		Status:            overallStatus,
		Uptime:            time.Since(h.StartedAt).Round(time.Second).String(),
		SessionConnected:  h.SessionConnected,
		LastQuoteTime:     h.LastQuoteTime.Format(time.RFC3339),
		QuoteAge:          quoteAge,
		RedisConnected:    h.RedisConnected,
		RedisLatencyMs:    h.RedisLatencyMs,
		PostgresOK:        h.PostgresOK,
		PostgresLatencyMs: h.PostgresLatencyMs,
		LastCheckAt:       h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
