package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dnldd/augur/shared"
	"github.com/peterldowns/testy/assert"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

type fetcherMock struct {
	mtx   sync.Mutex
	err   error
	calls []shared.Window
}

func (m *fetcherMock) MaxWindowDays() int {
	return 365
}

func (m *fetcherMock) FetchDailyHistorical(ctx context.Context, start time.Time, end time.Time) (gjson.Result, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	m.calls = append(m.calls, shared.Window{Start: start, End: end})
	if m.err != nil {
		return gjson.Result{}, m.err
	}

	var rows []string
	for cur := start; cur.Before(end); cur = cur.AddDate(0, 0, 1) {
		rows = append(rows, fmt.Sprintf(`{"date":%q,"open":1,"high":2,"low":0.5,"close":1.5,"volume":10}`,
			cur.Format(shared.DayLayout)))
	}

	return gjson.Parse("[" + strings.Join(rows, ",") + "]"), nil
}

type storeMock struct {
	mtx     sync.Mutex
	candles map[string]shared.Candle
	orders  []shared.OrderRecord
}

func (s *storeMock) InsertCandle(ctx context.Context, candle *shared.Candle) (bool, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if _, ok := s.candles[candle.Day()]; ok {
		return false, nil
	}

	s.candles[candle.Day()] = *candle
	return true, nil
}

func (s *storeMock) FetchCandles(ctx context.Context) ([]shared.Candle, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	candles := make([]shared.Candle, 0, len(s.candles))
	for _, c := range s.candles {
		candles = append(candles, c)
	}

	return candles, nil
}

func (s *storeMock) InsertOrder(ctx context.Context, record *shared.OrderRecord) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	s.orders = append(s.orders, *record)
	return nil
}

type forecasterMock struct {
	judgment *shared.ForecastJudgment
	err      error
}

func (m *forecasterMock) Forecast(ctx context.Context, candles []shared.Candle) (*shared.ForecastJudgment, error) {
	return m.judgment, m.err
}

type submitterMock struct {
	err error
}

func (m *submitterMock) SubmitMarketOrder(ctx context.Context, side shared.Side, size decimal.Decimal) (*shared.OrderAcknowledgment, error) {
	if m.err != nil {
		return nil, m.err
	}

	return &shared.OrderAcknowledgment{OrderID: "ord-1", Status: "placed"}, nil
}

type testComponents struct {
	fetcher    *fetcherMock
	store      *storeMock
	forecaster *forecasterMock
	submitter  *submitterMock
}

func testConfig() *AugurConfig {
	return &AugurConfig{
		Asset:          "BTC/USD",
		DBDriver:       DriverRqlite,
		DBEndpoint:     "http://localhost:4001",
		MarketProvider: ProviderFMP,
		FMPAPIKey:      "key",
		FMPSymbol:      "BTCUSD",
		OracleProvider: "gemini",
		OracleAPIKey:   "key",
		Symbol:         "PF_XBTUSD",
		OrderSize:      decimal.RequireFromString("0.0001"),
		Threshold:      80,
		CatchUpDays:    52,
		Listen:         "127.0.0.1:0",
	}
}

func setupAugur(t *testing.T, modify func(cfg *AugurConfig)) (*Augur, *testComponents) {
	tc := &testComponents{
		fetcher: &fetcherMock{},
		store:   &storeMock{candles: make(map[string]shared.Candle)},
		forecaster: &forecasterMock{judgment: &shared.ForecastJudgment{
			Pattern:    "none",
			Prediction: shared.PredictionUp,
			Confidence: 90,
		}},
		submitter: &submitterMock{},
	}

	cfg := testConfig()
	if modify != nil {
		modify(cfg)
	}

	augur, err := NewAugur(cfg, &Components{
		Fetcher:    tc.fetcher,
		Store:      tc.store,
		Orders:     tc.store,
		Forecaster: tc.forecaster,
		Submitter:  tc.submitter,
	})
	assert.NoError(t, err)

	return augur, tc
}

func serve(augur *Augur, method string, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, nil)
	augur.router().ServeHTTP(rec, req)

	return rec
}

func TestAugurConfigValidate(t *testing.T) {
	tests := []struct {
		name        string
		modify      func(cfg *AugurConfig)
		wantErr     bool
		errContains []string
	}{
		{
			name:    "valid config returns nil",
			modify:  func(cfg *AugurConfig) {},
			wantErr: false,
		},
		{
			name: "unsupported drivers and providers",
			modify: func(cfg *AugurConfig) {
				cfg.DBDriver = "mysql"
				cfg.MarketProvider = "binance"
			},
			wantErr: true,
			errContains: []string{
				`unsupported database driver: "mysql"`,
				`unsupported market provider: "binance"`,
			},
		},
		{
			name: "invalid sizing",
			modify: func(cfg *AugurConfig) {
				cfg.OrderSize = decimal.Zero
				cfg.CatchUpDays = 0
				cfg.Listen = ""
				cfg.Asset = ""
			},
			wantErr: true,
			errContains: []string{
				"order size must be positive",
				"catch up days must be positive",
				"listen address cannot be an empty string",
				"asset cannot be an empty string",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.modify(cfg)
			err := cfg.Validate()

			if tt.wantErr {
				assert.Error(t, err)
				for _, substr := range tt.errContains {
					assert.True(t, strings.Contains(err.Error(), substr))
				}
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestNewAugurMissingComponents(t *testing.T) {
	_, err := NewAugur(testConfig(), &Components{})
	assert.Error(t, err)
}

func TestHealthAndMetrics(t *testing.T) {
	augur, _ := setupAugur(t, nil)

	rec := serve(augur, http.MethodGet, "/healthz")
	assert.Equal(t, rec.Code, http.StatusOK)
	assert.Equal(t, gjson.Get(rec.Body.String(), "status").String(), "ok")

	rec = serve(augur, http.MethodGet, "/metrics")
	assert.Equal(t, rec.Code, http.StatusOK)
	assert.True(t, strings.Contains(rec.Body.String(), "augur_candles_seen_total"))
}

func TestCandlesTrigger(t *testing.T) {
	augur, tc := setupAugur(t, nil)

	// Ensure a ranged backfill reports its progress.
	rec := serve(augur, http.MethodPost, "/candles?from=2024-01-01&to=2024-01-11")
	assert.Equal(t, rec.Code, http.StatusOK)

	var result shared.BackfillResult
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, result, shared.BackfillResult{Inserted: 10, Seen: 10, Windows: 1})

	// Ensure a repeated backfill inserts nothing.
	rec = serve(augur, http.MethodGet, "/candles?from=2024-01-01&to=2024-01-11")
	assert.Equal(t, rec.Code, http.StatusOK)
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, result, shared.BackfillResult{Inserted: 0, Seen: 10, Windows: 1})

	// Ensure no range runs a catch up.
	rec = serve(augur, http.MethodPost, "/candles")
	assert.Equal(t, rec.Code, http.StatusOK)
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, result.Seen, 52)

	// Ensure malformed ranges are rejected.
	for _, target := range []string{
		"/candles?from=2024-01-01",
		"/candles?from=01/01/2024&to=2024-01-11",
		"/candles?from=2024-01-01&to=tomorrow",
		"/candles?from=2024-01-11&to=2024-01-01",
	} {
		rec = serve(augur, http.MethodPost, target)
		assert.Equal(t, rec.Code, http.StatusBadRequest)
		assert.Equal(t, gjson.Get(rec.Body.String(), "kind").String(), invalidRequest)
	}

	// Ensure upstream failures map to bad gateway.
	tc.fetcher.err = shared.NewError(shared.UpstreamFetchError, `{"error":"rate limited"}`, fmt.Errorf("status 429"))
	rec = serve(augur, http.MethodPost, "/candles?from=2023-01-01&to=2023-01-05")
	assert.Equal(t, rec.Code, http.StatusBadGateway)
	body := rec.Body.String()
	assert.Equal(t, gjson.Get(body, "kind").String(), string(shared.UpstreamFetchError))
	assert.Equal(t, gjson.Get(body, "payload").String(), `{"error":"rate limited"}`)
	assert.Equal(t, gjson.Get(body, "result.inserted").Int(), int64(0))
}

func TestSignalsTrigger(t *testing.T) {
	augur, tc := setupAugur(t, nil)

	// Ensure a cycle on an empty store fails upstream.
	rec := serve(augur, http.MethodPost, "/signals")
	assert.Equal(t, rec.Code, http.StatusBadGateway)
	assert.Equal(t, gjson.Get(rec.Body.String(), "kind").String(), string(shared.UpstreamFetchError))

	rec = serve(augur, http.MethodPost, "/candles?from=2024-01-01&to=2024-01-03")
	assert.Equal(t, rec.Code, http.StatusOK)

	// Ensure a confident judgment places and records an order.
	rec = serve(augur, http.MethodPost, "/signals")
	assert.Equal(t, rec.Code, http.StatusOK)
	body := rec.Body.String()
	assert.True(t, gjson.Get(body, "id").String() != "")
	assert.Equal(t, gjson.Get(body, "judgment.prediction").String(), "UP")
	assert.Equal(t, gjson.Get(body, "trade.side").String(), "BUY")
	assert.Equal(t, gjson.Get(body, "trade.orderId").String(), "ord-1")
	assert.Equal(t, len(tc.store.orders), 1)

	// Ensure a neutral judgment places nothing.
	tc.forecaster.judgment = &shared.ForecastJudgment{Pattern: "none", Prediction: shared.PredictionNeutral, Confidence: 95}
	rec = serve(augur, http.MethodGet, "/signals")
	assert.Equal(t, rec.Code, http.StatusOK)
	assert.Equal(t, gjson.Get(rec.Body.String(), "trade").Type, gjson.Null)
	assert.Equal(t, len(tc.store.orders), 1)

	// Ensure oracle parse failures map to bad gateway with the raw payload.
	tc.forecaster.err = shared.NewError(shared.OracleParseError, `{"confidence":"high"}`, fmt.Errorf("confidence must be a number"))
	rec = serve(augur, http.MethodPost, "/signals")
	assert.Equal(t, rec.Code, http.StatusBadGateway)
	assert.Equal(t, gjson.Get(rec.Body.String(), "kind").String(), string(shared.OracleParseError))
	assert.Equal(t, gjson.Get(rec.Body.String(), "payload").String(), `{"confidence":"high"}`)

	// Ensure exchange rejections map to bad gateway and record nothing.
	tc.forecaster.err = nil
	tc.forecaster.judgment = &shared.ForecastJudgment{Pattern: "none", Prediction: shared.PredictionDown, Confidence: 90}
	tc.submitter.err = shared.NewError(shared.ExchangeError, `{"result":"error"}`, fmt.Errorf("order rejected"))
	rec = serve(augur, http.MethodPost, "/signals")
	assert.Equal(t, rec.Code, http.StatusBadGateway)
	assert.Equal(t, gjson.Get(rec.Body.String(), "kind").String(), string(shared.ExchangeError))
	assert.Equal(t, len(tc.store.orders), 1)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
		wantKind   string
	}{
		{err: shared.Errorf(shared.ConfigurationError, "missing key"), wantStatus: http.StatusInternalServerError, wantKind: "ConfigurationError"},
		{err: shared.Errorf(shared.UpstreamFetchError, "timeout"), wantStatus: http.StatusBadGateway, wantKind: "UpstreamFetchError"},
		{err: fmt.Errorf("wrapped: %w", shared.Errorf(shared.OracleParseError, "bad")), wantStatus: http.StatusBadGateway, wantKind: "OracleParseError"},
		{err: shared.Errorf(shared.ExchangeError, "rejected"), wantStatus: http.StatusBadGateway, wantKind: "ExchangeError"},
		{err: fmt.Errorf("disk full"), wantStatus: http.StatusInternalServerError, wantKind: internalError},
	}

	for _, tt := range tests {
		status, kind := statusFor(tt.err)
		assert.Equal(t, status, tt.wantStatus)
		assert.Equal(t, kind, tt.wantKind)
	}
}

func TestAugurGracefulShutdown(t *testing.T) {
	augur, _ := setupAugur(t, func(cfg *AugurConfig) {
		cfg.Schedule = "00:05"
		cfg.AutoTrade = true
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Ensure the augur service can be run and gracefully terminated.
	time.AfterFunc(time.Millisecond*500, func() {
		cancel()
	})
	done := make(chan error)
	go func() {
		done <- augur.Run(ctx)
	}()

	err := <-done
	assert.NoError(t, err)
	assert.Equal(t, augur.jobScheduler.Len(), 1)
}

func TestAugurRunClosesComponents(t *testing.T) {
	augur, _ := setupAugur(t, func(cfg *AugurConfig) {
		cfg.Schedule = "25:99"
	})

	closed := false
	augur.components.Close = func() { closed = true }

	// Ensure components are released when the service fails to start.
	err := augur.Run(context.Background())
	assert.Error(t, err)
	assert.True(t, closed)
}

func TestNewComponentsIngestOnly(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"results":[{},{}],"time":0.001}`)
	}))
	t.Cleanup(srv.Close)

	cfg := testConfig()
	cfg.DBEndpoint = srv.URL
	cfg.MarketProvider = ProviderCoinGecko
	cfg.CoinGeckoCoin = "bitcoin"
	cfg.OracleAPIKey = ""

	// Ensure a full run still requires oracle credentials.
	_, err := NewComponents(context.Background(), cfg, &log.Logger)
	assert.Error(t, err)

	// Ensure an ingest only run needs neither oracle nor venue credentials.
	cfg.IngestOnly = true
	comps, err := NewComponents(context.Background(), cfg, &log.Logger)
	assert.NoError(t, err)
	assert.NotNil(t, comps.Fetcher)
	assert.NotNil(t, comps.Store)

	augur, err := NewAugur(cfg, comps)
	assert.NoError(t, err)
	assert.NotNil(t, augur)

	// Ensure the stand-ins refuse forecasting and trading.
	_, err = comps.Forecaster.Forecast(context.Background(), nil)
	assert.True(t, errors.Is(err, shared.ConfigurationError))
	_, err = comps.Submitter.SubmitMarketOrder(context.Background(), shared.Buy, cfg.OrderSize)
	assert.True(t, errors.Is(err, shared.ConfigurationError))
}

func TestDailyJob(t *testing.T) {
	augur, tc := setupAugur(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go augur.engine.Run(ctx)

	// Ensure the daily job catches up and queues a cycle.
	augur.dailyJob(ctx)
	assert.Equal(t, len(tc.fetcher.calls), 1)

	deadline := time.Now().Add(time.Second * 2)
	for time.Now().Before(deadline) {
		tc.store.mtx.Lock()
		placed := len(tc.store.orders)
		tc.store.mtx.Unlock()
		if placed == 1 {
			return
		}
		time.Sleep(time.Millisecond * 10)
	}

	t.Fatalf("expected the queued cycle to place an order")
}
