package shared

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

// MarketFetcher defines the requirements for fetching daily market data.
type MarketFetcher interface {
	// FetchDailyHistorical fetches daily historical market data for [start, end).
	FetchDailyHistorical(ctx context.Context, start time.Time, end time.Time) (gjson.Result, error)
	// MaxWindowDays returns the maximum number of days a single fetch can span.
	MaxWindowDays() int
}

// CandleStorer defines the requirements for storing candles.
type CandleStorer interface {
	// InsertCandle stores the provided candle if no candle exists for its date.
	// It reports whether the candle was written.
	InsertCandle(ctx context.Context, candle *Candle) (bool, error)
	// FetchCandles returns all stored candles, oldest first.
	FetchCandles(ctx context.Context) ([]Candle, error)
}

// OrderStorer defines the requirements for storing order outcomes.
type OrderStorer interface {
	// InsertOrder appends the provided order record.
	InsertOrder(ctx context.Context, record *OrderRecord) error
}

// Forecaster defines the requirements for forecasting the next day's direction.
type Forecaster interface {
	// Forecast returns a validated judgment of the provided candle series.
	Forecast(ctx context.Context, candles []Candle) (*ForecastJudgment, error)
}

// OrderSubmitter defines the requirements for submitting orders to the venue.
type OrderSubmitter interface {
	// SubmitMarketOrder submits a market order of the provided side and size.
	SubmitMarketOrder(ctx context.Context, side Side, size decimal.Decimal) (*OrderAcknowledgment, error)
}
