package shared

import (
	"time"

	"github.com/shopspring/decimal"
)

// Candle represents a day's aggregated price data for the tracked asset.
type Candle struct {
	Date   time.Time
	Open   decimal.Decimal
	High   decimal.Decimal
	Low    decimal.Decimal
	Close  decimal.Decimal
	Volume decimal.Decimal
}

// NewCandle initializes a candle with open, high, low and close all set to
// the provided price.
func NewCandle(date time.Time, price decimal.Decimal, volume decimal.Decimal) Candle {
	return Candle{
		Date:   TruncateDay(date),
		Open:   price,
		High:   price,
		Low:    price,
		Close:  price,
		Volume: volume,
	}
}

// Merge folds a later price point of the same day into the candle.
func (c *Candle) Merge(price decimal.Decimal, volume decimal.Decimal) {
	if price.GreaterThan(c.High) {
		c.High = price
	}
	if price.LessThan(c.Low) {
		c.Low = price
	}

	c.Close = price
	c.Volume = volume
}

// Day returns the candle's date formatted as a calendar day.
func (c *Candle) Day() string {
	return c.Date.Format(DayLayout)
}
