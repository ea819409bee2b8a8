// Package postgres is the durable store: the currency pair catalog,
// per-pair tick tables, and per-pair candle tables.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"fixfeed/internal/model"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"
)

// Config configures the Postgres connection.
type Config struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
}

func (c Config) dsn() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.Host, c.Port, c.User, c.Password, c.Database)
}

// Store wraps the SQL pool. One instance serves every pipeline worker;
// database/sql handles the pooling.
type Store struct {
	db *sql.DB
}

// New opens the pool and pings the server.
func New(cfg Config) (*Store, error) {
	db, err := sql.Open("pgx", cfg.dsn())
	if err != nil {
		return nil, fmt.Errorf("postgres open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}

	log.Printf("[postgres] connected to %s:%s/%s", cfg.Host, cfg.Port, cfg.Database)
	return &Store{db: db}, nil
}

// DB exposes the pool for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// Ping checks the connection for health probes.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// ident folds a symbol into a safe lowercase identifier fragment.
func ident(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func tickTable(symbol string, side model.Side) string {
	return "ticks_" + ident(symbol) + "_" + side.Lower()
}

func candleTable(symbol string) string {
	return "candles_" + ident(symbol) + "_bid"
}

// LoadPairs reads the full currency pair catalog.
func (s *Store) LoadPairs(ctx context.Context) ([]model.CurrencyPair, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT currpair, contractsize FROM currpairdetails`)
	if err != nil {
		return nil, fmt.Errorf("load pairs: %w", err)
	}
	defer rows.Close()

	var pairs []model.CurrencyPair
	for rows.Next() {
		var p model.CurrencyPair
		if err := rows.Scan(&p.Symbol, &p.ContractSize); err != nil {
			return nil, fmt.Errorf("scan pair: %w", err)
		}
		pairs = append(pairs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load pairs: %w", err)
	}
	return pairs, nil
}

// ContractSize looks up one pair's contract size. An unknown symbol
// comes back as an invalid NullDecimal, not an error.
func (s *Store) ContractSize(ctx context.Context, symbol string) (decimal.NullDecimal, error) {
	var size decimal.NullDecimal
	err := s.db.QueryRowContext(ctx,
		`SELECT contractsize FROM currpairdetails WHERE currpair = $1`, symbol).Scan(&size)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.NullDecimal{}, nil
	}
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("contract size %s: %w", symbol, err)
	}
	return size, nil
}

// EnsurePairTables creates the tick and candle tables for one pair if
// they are missing. Lots is the tick tables' primary key, so inserts
// that collide on lots are silently skipped by InsertTick.
func (s *Store) EnsurePairTables(ctx context.Context, symbol string) error {
	for _, side := range []model.Side{model.SideBid, model.SideAsk} {
		ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			ticktime TIMESTAMPTZ NOT NULL,
			lots     INTEGER PRIMARY KEY,
			price    NUMERIC NOT NULL
		)`, tickTable(symbol, side))
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("create %s: %w", tickTable(symbol, side), err)
		}
	}

	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		candlesize TEXT,
		lots       SMALLINT,
		candletime TIMESTAMPTZ,
		open       NUMERIC(12,5),
		high       NUMERIC(12,5),
		low        NUMERIC(12,5),
		close      NUMERIC(12,5),
		PRIMARY KEY (candlesize, lots, candletime)
	)`, candleTable(symbol))
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create %s: %w", candleTable(symbol), err)
	}
	return nil
}

// InsertTick writes one tick. A row with the same lots value already
// present wins; the new tick is dropped without error.
func (s *Store) InsertTick(ctx context.Context, t model.Tick) error {
	q := fmt.Sprintf(`INSERT INTO %s (ticktime, lots, price) VALUES ($1, $2, $3)
		ON CONFLICT (lots) DO NOTHING`, tickTable(t.Symbol, t.Side))
	if _, err := s.db.ExecContext(ctx, q, t.TickTime, t.Lots, t.Price); err != nil {
		return fmt.Errorf("insert tick %s: %w", tickTable(t.Symbol, t.Side), err)
	}
	return nil
}

// ReadTicks returns a pair's ticks for one side in time order.
func (s *Store) ReadTicks(ctx context.Context, symbol string, side model.Side) ([]model.Tick, error) {
	q := fmt.Sprintf(`SELECT ticktime, lots, price FROM %s ORDER BY ticktime`, tickTable(symbol, side))
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("read ticks %s: %w", tickTable(symbol, side), err)
	}
	defer rows.Close()

	var ticks []model.Tick
	for rows.Next() {
		t := model.Tick{Symbol: symbol, Side: side}
		if err := rows.Scan(&t.TickTime, &t.Lots, &t.Price); err != nil {
			return nil, fmt.Errorf("scan tick: %w", err)
		}
		ticks = append(ticks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read ticks %s: %w", tickTable(symbol, side), err)
	}
	return ticks, nil
}

// UpsertCandle folds one price into a bucket row: the first price of a
// bucket seeds all four values, later prices stretch high/low and move
// close. Existence is checked first and the row updated or inserted,
// which keeps a replayed price idempotent.
func (s *Store) UpsertCandle(ctx context.Context, symbol, timeframe string, candleTime time.Time, price decimal.Decimal) error {
	table := candleTable(symbol)

	var exists bool
	q := fmt.Sprintf(`SELECT EXISTS (
		SELECT 1 FROM %s WHERE candlesize = $1 AND lots = $2 AND candletime = $3
	)`, table)
	if err := s.db.QueryRowContext(ctx, q, timeframe, model.CandleLots, candleTime).Scan(&exists); err != nil {
		return fmt.Errorf("candle exists %s: %w", table, err)
	}

	if exists {
		q = fmt.Sprintf(`UPDATE %s
			SET high = GREATEST(high, $4), low = LEAST(low, $4), close = $4
			WHERE candlesize = $1 AND lots = $2 AND candletime = $3`, table)
		if _, err := s.db.ExecContext(ctx, q, timeframe, model.CandleLots, candleTime, price); err != nil {
			return fmt.Errorf("update candle %s: %w", table, err)
		}
		return nil
	}

	q = fmt.Sprintf(`INSERT INTO %s (candlesize, lots, candletime, open, high, low, close)
		VALUES ($1, $2, $3, $4, $4, $4, $4)`, table)
	if _, err := s.db.ExecContext(ctx, q, timeframe, model.CandleLots, candleTime, price); err != nil {
		return fmt.Errorf("insert candle %s: %w", table, err)
	}
	return nil
}

// ReadCandles returns a pair's full candle history in time order.
func (s *Store) ReadCandles(ctx context.Context, symbol string) ([]model.Candle, error) {
	table := candleTable(symbol)
	q := fmt.Sprintf(`SELECT candlesize, lots, candletime, open, high, low, close
		FROM %s ORDER BY candletime, candlesize`, table)
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("read candles %s: %w", table, err)
	}
	defer rows.Close()

	var candles []model.Candle
	for rows.Next() {
		c := model.Candle{Symbol: symbol}
		if err := rows.Scan(&c.Timeframe, &c.Lots, &c.CandleTime, &c.Open, &c.High, &c.Low, &c.Close); err != nil {
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		candles = append(candles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read candles %s: %w", table, err)
	}
	return candles, nil
}
