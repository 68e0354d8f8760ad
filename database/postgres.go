package database

import (
	"context"
	"fmt"
	"time"

	"github.com/dnldd/augur/shared"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

const (
	// Postgres SQL statements.
	pgCreateTablesSQL = `
CREATE TABLE IF NOT EXISTS btc_candles (
	id SERIAL PRIMARY KEY,
	date DATE UNIQUE NOT NULL,
	open NUMERIC(12,2),
	high NUMERIC(12,2),
	low NUMERIC(12,2),
	close NUMERIC(12,2),
	volume NUMERIC(20,2)
);
CREATE TABLE IF NOT EXISTS kraken_orders (
	id SERIAL PRIMARY KEY,
	signal TEXT,
	order_id TEXT,
	created_at TIMESTAMP DEFAULT NOW()
);`
	pgInsertCandleSQL = "INSERT INTO btc_candles (date, open, high, low, close, volume) VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT (date) DO NOTHING"
	pgFetchCandlesSQL = "SELECT date, open, high, low, close, COALESCE(volume, 0) FROM btc_candles ORDER BY date ASC"
	pgInsertOrderSQL  = "INSERT INTO kraken_orders (signal, order_id, created_at) VALUES ($1, $2, $3)"
)

// PostgresConfig is the configuration for the postgres database.
type PostgresConfig struct {
	// URL is the postgres connection string.
	URL string
	// Logger is the database logger.
	Logger *zerolog.Logger
}

// Postgres represents the postgres database connection pool.
type Postgres struct {
	cfg  *PostgresConfig
	pool *pgxpool.Pool
}

// Ensure postgres implements the store interfaces.
var _ shared.CandleStorer = (*Postgres)(nil)
var _ shared.OrderStorer = (*Postgres)(nil)

// NewPostgres initializes a new postgres connection pool.
func NewPostgres(ctx context.Context, cfg *PostgresConfig) (*Postgres, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, shared.NewError(shared.ConfigurationError, "",
			fmt.Errorf("parsing database url: %w", err))
	}

	poolCfg.MaxConns = 4
	poolCfg.MaxConnIdleTime = 30 * time.Minute
	poolCfg.HealthCheckPeriod = time.Minute

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connCtx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	err = pool.Ping(connCtx)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	pg := &Postgres{
		cfg:  cfg,
		pool: pool,
	}

	_, err = pool.Exec(connCtx, pgCreateTablesSQL)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("bootstrapping database: %w", err)
	}

	cfg.Logger.Info().Msg("connected to postgres")

	return pg, nil
}

// Close closes the connection pool.
func (pg *Postgres) Close() {
	pg.pool.Close()
}

// InsertCandle stores the provided candle if no candle exists for its date.
// It reports whether the candle was inserted.
func (pg *Postgres) InsertCandle(ctx context.Context, candle *shared.Candle) (bool, error) {
	tag, err := pg.pool.Exec(ctx, pgInsertCandleSQL, candle.Date, candle.Open, candle.High,
		candle.Low, candle.Close, candle.Volume)
	if err != nil {
		return false, fmt.Errorf("inserting candle %s: %w", candle.Day(), err)
	}

	return tag.RowsAffected() > 0, nil
}

// FetchCandles returns all stored candles, oldest first.
func (pg *Postgres) FetchCandles(ctx context.Context) ([]shared.Candle, error) {
	rows, err := pg.pool.Query(ctx, pgFetchCandlesSQL)
	if err != nil {
		return nil, fmt.Errorf("querying candles: %w", err)
	}
	defer rows.Close()

	var candles []shared.Candle
	for rows.Next() {
		var c shared.Candle
		err := rows.Scan(&c.Date, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume)
		if err != nil {
			return nil, fmt.Errorf("scanning candle: %w", err)
		}

		c.Date = shared.TruncateDay(c.Date)
		candles = append(candles, c)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("iterating candles: %w", err)
	}

	return candles, nil
}

// InsertOrder stores the provided order record.
func (pg *Postgres) InsertOrder(ctx context.Context, record *shared.OrderRecord) error {
	_, err := pg.pool.Exec(ctx, pgInsertOrderSQL, record.Signal.String(), record.OrderID,
		record.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("inserting order %s: %w", record.OrderID, err)
	}

	return nil
}
