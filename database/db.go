package database

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/dnldd/augur/shared"
	rqlitehttp "github.com/rqlite/rqlite-go-http"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	// SQL statements.
	createCandleTableSQL = "CREATE TABLE IF NOT EXISTS candle (date TEXT PRIMARY KEY, open TEXT NOT NULL, high TEXT NOT NULL, low TEXT NOT NULL, close TEXT NOT NULL, volume TEXT NOT NULL)"
	createOrderTableSQL  = "CREATE TABLE IF NOT EXISTS orders (id INTEGER PRIMARY KEY AUTOINCREMENT, signal TEXT NOT NULL, order_id TEXT NOT NULL, created_at TEXT NOT NULL)"
	insertCandleSQL      = "INSERT INTO candle(date, open, high, low, close, volume) VALUES(?,?,?,?,?,?) ON CONFLICT(date) DO NOTHING"
	fetchCandlesSQL      = "SELECT date, open, high, low, close, volume FROM candle ORDER BY date ASC"
	insertOrderSQL       = "INSERT INTO orders(signal, order_id, created_at) VALUES(?,?,?)"
)

// DatabaseConfig is the configuration for the database.
type DatabaseConfig struct {
	// Endpoint represents the database connection endpoint.
	Endpoint string
	// User is the database user.
	User string
	// Pass is the database user pass.
	Pass string
	// Logger is the database logger.
	Logger *zerolog.Logger
}

// Database represents the rqlite database connection.
type Database struct {
	cfg    *DatabaseConfig
	client *rqlitehttp.Client
}

// Ensure the database implements the store interfaces.
var _ shared.CandleStorer = (*Database)(nil)
var _ shared.OrderStorer = (*Database)(nil)

// NewDatabase initializes a new database connection.
func NewDatabase(ctx context.Context, cfg *DatabaseConfig) (*Database, error) {
	httpc := &http.Client{Timeout: time.Second * 5}
	client, err := rqlitehttp.NewClient(cfg.Endpoint, httpc)
	if err != nil {
		return nil, fmt.Errorf("creating database client: %w", err)
	}

	if cfg.User != "" {
		client.SetBasicAuth(cfg.User, cfg.Pass)
	}

	db := &Database{
		cfg:    cfg,
		client: client,
	}

	err = db.bootstrap(ctx)
	if err != nil {
		return nil, fmt.Errorf("bootstrapping database: %w", err)
	}

	return db, nil
}

// execute runs the provided statements in a transaction.
func (db *Database) execute(ctx context.Context, stmts rqlitehttp.SQLStatements) (*rqlitehttp.ExecuteResponse, error) {
	resp, err := db.client.Execute(ctx, stmts, &rqlitehttp.ExecuteOptions{
		Transaction: true,
		Timings:     true,
	})
	if err != nil {
		return nil, err
	}

	has, idx, errStr := resp.HasError()
	if has {
		return nil, fmt.Errorf("statement %d: %s", idx, errStr)
	}

	return resp, nil
}

// bootstrap initializes the database.
func (db *Database) bootstrap(ctx context.Context) error {
	_, err := db.execute(ctx, rqlitehttp.SQLStatements{
		{SQL: createCandleTableSQL},
		{SQL: createOrderTableSQL},
	})
	if err != nil {
		return err
	}

	return nil
}

// InsertCandle stores the provided candle if no candle exists for its date.
// It reports whether the candle was inserted.
func (db *Database) InsertCandle(ctx context.Context, candle *shared.Candle) (bool, error) {
	resp, err := db.execute(ctx, rqlitehttp.SQLStatements{
		{
			SQL: insertCandleSQL,
			PositionalParams: []any{candle.Day(), candle.Open.String(), candle.High.String(),
				candle.Low.String(), candle.Close.String(), candle.Volume.String()},
		},
	})
	if err != nil {
		return false, fmt.Errorf("inserting candle %s: %w", candle.Day(), err)
	}

	if len(resp.Results) == 0 {
		return false, fmt.Errorf("inserting candle %s: no statement results", candle.Day())
	}

	return resp.Results[0].RowsAffected > 0, nil
}

// FetchCandles returns all stored candles, oldest first.
func (db *Database) FetchCandles(ctx context.Context) ([]shared.Candle, error) {
	resp, err := db.client.Query(ctx, rqlitehttp.SQLStatements{{SQL: fetchCandlesSQL}},
		&rqlitehttp.QueryOptions{Associative: true})
	if err != nil {
		return nil, fmt.Errorf("querying candles: %w", err)
	}

	results := resp.GetQueryResultsAssoc()
	if len(results) == 0 {
		return nil, nil
	}
	if results[0].Error != "" {
		return nil, fmt.Errorf("querying candles: %s", results[0].Error)
	}

	candles := make([]shared.Candle, 0, len(results[0].Rows))
	for idx := range results[0].Rows {
		candle, err := decodeCandleRow(results[0].Rows[idx])
		if err != nil {
			db.cfg.Logger.Error().Msgf("undecodable candle row: %s", spew.Sdump(results[0].Rows[idx]))
			return nil, fmt.Errorf("decoding candle row %d: %w", idx, err)
		}

		candles = append(candles, candle)
	}

	return candles, nil
}

// InsertOrder stores the provided order record.
func (db *Database) InsertOrder(ctx context.Context, record *shared.OrderRecord) error {
	_, err := db.execute(ctx, rqlitehttp.SQLStatements{
		{
			SQL: insertOrderSQL,
			PositionalParams: []any{record.Signal.String(), record.OrderID,
				record.CreatedAt.UTC().Format(time.RFC3339)},
		},
	})
	if err != nil {
		return fmt.Errorf("inserting order %s: %w", record.OrderID, err)
	}

	return nil
}

// decodeDecimal decodes a decimal from a query row value.
func decodeDecimal(value any) (decimal.Decimal, error) {
	switch v := value.(type) {
	case string:
		return decimal.NewFromString(v)
	case float64:
		return decimal.NewFromFloat(v), nil
	case json.Number:
		return decimal.NewFromString(v.String())
	case nil:
		return decimal.Zero, nil
	default:
		return decimal.Zero, fmt.Errorf("unexpected decimal value type %T", value)
	}
}

// decodeCandleRow decodes a candle from an associative query row.
func decodeCandleRow(row map[string]any) (shared.Candle, error) {
	day, ok := row["date"].(string)
	if !ok {
		return shared.Candle{}, fmt.Errorf("unexpected date value %v", row["date"])
	}

	date, err := shared.ParseDay(day)
	if err != nil {
		return shared.Candle{}, err
	}

	candle := shared.Candle{Date: date}
	for _, field := range []struct {
		name string
		dst  *decimal.Decimal
	}{
		{"open", &candle.Open},
		{"high", &candle.High},
		{"low", &candle.Low},
		{"close", &candle.Close},
		{"volume", &candle.Volume},
	} {
		value, err := decodeDecimal(row[field.name])
		if err != nil {
			return shared.Candle{}, fmt.Errorf("decoding %s: %w", field.name, err)
		}

		*field.dst = value
	}

	return candle, nil
}
