// Package redis holds the hot-path cache: per-pair tick lists the
// readers consume, and the working candle values the candle pipeline
// reads before it writes.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"fixfeed/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

// ErrNotConnected is returned by cache operations before the first
// successful Connect.
var ErrNotConnected = fmt.Errorf("redis not connected")

// Config configures the cache connection and its circuit breaker.
type Config struct {
	Host     string
	Port     string
	Password string
	DB       int

	MaxFailures  int           // breaker trip threshold, default 5
	ResetTimeout time.Duration // breaker probe delay, default 30s
}

// Cache wraps the Redis client behind a circuit breaker so a dead
// server fails the pipelines fast instead of stalling them.
//
// Connect is idempotent: the feed calls it on every reconnect attempt
// and only the first successful call builds the client.
type Cache struct {
	cfg     Config
	breaker *CircuitBreaker

	mu     sync.Mutex
	client *goredis.Client
}

// New builds an unconnected cache. Call Connect before use.
func New(cfg Config) *Cache {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	cb := NewCircuitBreaker(cfg.MaxFailures, cfg.ResetTimeout)
	cb.OnStateChange = func(from, to State) {
		log.Printf("[redis] circuit breaker %s -> %s", from, to)
	}
	return &Cache{cfg: cfg, breaker: cb}
}

// Connect builds the client and pings the server. A second call while
// connected is a no-op.
func (c *Cache) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		return nil
	}

	addr := net.JoinHostPort(c.cfg.Host, c.cfg.Port)
	client := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: c.cfg.Password,
		DB:       c.cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return fmt.Errorf("redis ping: %w", err)
	}

	c.client = client
	log.Printf("[redis] connected to %s", addr)
	return nil
}

func (c *Cache) conn() (*goredis.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		return nil, ErrNotConnected
	}
	return c.client, nil
}

// Ping checks the connection for health probes.
func (c *Cache) Ping(ctx context.Context) error {
	client, err := c.conn()
	if err != nil {
		return err
	}
	return client.Ping(ctx).Err()
}

// BreakerState exposes the breaker for health reporting.
func (c *Cache) BreakerState() State { return c.breaker.CurrentState() }

// AppendTick pushes one normalized tick onto its per-pair list.
func (c *Cache) AppendTick(ctx context.Context, t model.Tick) error {
	client, err := c.conn()
	if err != nil {
		return err
	}
	key := t.CacheKey()
	return c.breaker.Execute(func() error {
		if err := client.RPush(ctx, key, t.JSON()).Err(); err != nil {
			return fmt.Errorf("redis RPUSH %s: %w", key, err)
		}
		return nil
	})
}

// GetCandle reads one working candle. A missing key and an unreadable
// value both come back as a miss so the caller rebuilds the bucket.
func (c *Cache) GetCandle(ctx context.Context, key string) (*model.Candle, error) {
	client, err := c.conn()
	if err != nil {
		return nil, err
	}
	var raw string
	found := false
	err = c.breaker.Execute(func() error {
		res, err := client.Get(ctx, key).Result()
		if err == goredis.Nil {
			return nil
		}
		if err != nil {
			return err
		}
		raw, found = res, true
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("redis GET %s: %w", key, err)
	}
	if !found {
		return nil, nil
	}

	var candle model.Candle
	if err := json.Unmarshal([]byte(raw), &candle); err != nil {
		log.Printf("[redis] unreadable candle at %s, rebuilding: %v", key, err)
		return nil, nil
	}
	return &candle, nil
}

// SetCandle writes one working candle back under key.
func (c *Cache) SetCandle(ctx context.Context, key string, candle *model.Candle) error {
	client, err := c.conn()
	if err != nil {
		return err
	}
	return c.breaker.Execute(func() error {
		if err := client.Set(ctx, key, candle.JSON(), 0).Err(); err != nil {
			return fmt.Errorf("redis SET %s: %w", key, err)
		}
		return nil
	})
}

// PublishTicks replaces a pair's tick list with rows from the durable
// store. Used by the cache warm at startup and after re-logon.
func (c *Cache) PublishTicks(ctx context.Context, symbol string, side model.Side, ticks []model.Tick) error {
	client, err := c.conn()
	if err != nil {
		return err
	}
	key := model.TickListKey(symbol, side)
	vals := make([]interface{}, 0, len(ticks))
	for i := range ticks {
		vals = append(vals, ticks[i].JSON())
	}
	return c.breaker.Execute(func() error {
		_, err := client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Del(ctx, key)
			if len(vals) > 0 {
				pipe.RPush(ctx, key, vals...)
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("redis warm %s: %w", key, err)
		}
		return nil
	})
}

// PublishCandles replaces a pair's candle snapshot list.
func (c *Cache) PublishCandles(ctx context.Context, symbol string, candles []model.Candle) error {
	client, err := c.conn()
	if err != nil {
		return err
	}
	key := model.SnapshotKey(symbol)
	vals := make([]interface{}, 0, len(candles))
	for i := range candles {
		vals = append(vals, candles[i].JSON())
	}
	return c.breaker.Execute(func() error {
		_, err := client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Del(ctx, key)
			if len(vals) > 0 {
				pipe.RPush(ctx, key, vals...)
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("redis warm %s: %w", key, err)
		}
		return nil
	})
}

// Close releases the client. Safe when never connected.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client = nil
	return err
}
