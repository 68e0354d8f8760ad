package fetch

import (
	"fmt"
	"slices"
	"time"

	"github.com/dnldd/augur/shared"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

const (
	// rowTimeLayout is the format layout of intraday row dates.
	rowTimeLayout = "2006-01-02 15:04:05"
)

// parseDecimal parses a decimal from the provided json number or string.
func parseDecimal(res gjson.Result) (decimal.Decimal, error) {
	switch res.Type {
	case gjson.Number:
		return decimal.NewFromString(res.Raw)
	case gjson.String:
		return decimal.NewFromString(res.Str)
	default:
		return decimal.Zero, fmt.Errorf("expected a number, got %q", res.Raw)
	}
}

// parseRowDate parses the date of an OHLCV row.
func parseRowDate(s string) (time.Time, error) {
	dt, err := time.Parse(shared.DayLayout, s)
	if err == nil {
		return dt, nil
	}

	dt, err = time.Parse(rowTimeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing row date %q: %w", s, err)
	}

	return shared.TruncateDay(dt), nil
}

// ParseCandles parses daily candles within the provided window from an upstream
// response. Both separately indexed price and volume series and combined OHLCV
// rows are supported. Candles are returned oldest first, one per date.
func ParseCandles(data gjson.Result, window shared.Window) ([]shared.Candle, error) {
	var candles []shared.Candle
	var err error

	switch {
	case data.IsObject() && data.Get("prices").Exists():
		candles, err = parseSeries(data, window)
	case data.IsObject() && data.Get("historical").IsArray():
		candles, err = parseRows(data.Get("historical").Array(), window)
	case data.IsArray():
		candles, err = parseRows(data.Array(), window)
	default:
		err = fmt.Errorf("unexpected response shape: %.128s", data.Raw)
	}
	if err != nil {
		return nil, shared.NewError(shared.UpstreamFetchError, data.Raw, err)
	}

	slices.SortFunc(candles, func(a, b shared.Candle) int {
		return a.Date.Compare(b.Date)
	})

	return candles, nil
}

// parseSeries parses candles from [timestamp, value] price and volume series.
// Points of the same day fold into a single candle. A price point without a
// volume point at the exact same timestamp gets a zero volume.
func parseSeries(data gjson.Result, window shared.Window) ([]shared.Candle, error) {
	prices := data.Get("prices")
	if !prices.IsArray() {
		return nil, fmt.Errorf("prices is not an array")
	}

	volumes := make(map[int64]decimal.Decimal)
	for _, point := range data.Get("total_volumes").Array() {
		pair := point.Array()
		if len(pair) != 2 {
			return nil, fmt.Errorf("malformed volume point: %s", point.Raw)
		}

		vol, err := parseDecimal(pair[1])
		if err != nil {
			return nil, fmt.Errorf("parsing volume: %w", err)
		}

		volumes[pair[0].Int()] = vol
	}

	candles := make([]shared.Candle, 0, len(prices.Array()))
	days := make(map[time.Time]int)
	for _, point := range prices.Array() {
		pair := point.Array()
		if len(pair) != 2 || pair[0].Type != gjson.Number {
			return nil, fmt.Errorf("malformed price point: %s", point.Raw)
		}

		ts := pair[0].Int()
		at := time.UnixMilli(ts).UTC()
		if !window.Contains(at) {
			continue
		}

		price, err := parseDecimal(pair[1])
		if err != nil {
			return nil, fmt.Errorf("parsing price: %w", err)
		}

		vol, ok := volumes[ts]
		if !ok {
			vol = decimal.Zero
		}

		day := shared.TruncateDay(at)
		idx, ok := days[day]
		if ok {
			candles[idx].Merge(price, vol)
			continue
		}

		days[day] = len(candles)
		candles = append(candles, shared.NewCandle(day, price, vol))
	}

	return candles, nil
}

// parseRows parses candles from OHLCV rows. The first row seen for a date wins.
func parseRows(rows []gjson.Result, window shared.Window) ([]shared.Candle, error) {
	candles := make([]shared.Candle, 0, len(rows))
	days := make(map[time.Time]struct{})

	for idx := range rows {
		row := rows[idx]
		if !row.IsObject() {
			return nil, fmt.Errorf("malformed row: %s", row.Raw)
		}

		day, err := parseRowDate(row.Get("date").String())
		if err != nil {
			return nil, err
		}

		if !window.Contains(day) {
			continue
		}
		if _, ok := days[day]; ok {
			continue
		}

		var candle shared.Candle
		candle.Date = day

		fields := []struct {
			name string
			dst  *decimal.Decimal
		}{
			{"open", &candle.Open},
			{"high", &candle.High},
			{"low", &candle.Low},
			{"close", &candle.Close},
		}
		for _, f := range fields {
			*f.dst, err = parseDecimal(row.Get(f.name))
			if err != nil {
				return nil, fmt.Errorf("parsing %s for %s: %w", f.name, row.Get("date").String(), err)
			}
		}

		candle.Volume = decimal.Zero
		if vol := row.Get("volume"); vol.Exists() {
			candle.Volume, err = parseDecimal(vol)
			if err != nil {
				return nil, fmt.Errorf("parsing volume for %s: %w", row.Get("date").String(), err)
			}
		}

		days[day] = struct{}{}
		candles = append(candles, candle)
	}

	return candles, nil
}
