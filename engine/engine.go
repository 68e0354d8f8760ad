package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/dnldd/augur/metrics"
	"github.com/dnldd/augur/shared"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	// bufferSize is the default buffer size for channels.
	bufferSize = 8
	// DefaultThreshold is the minimum oracle confidence required to trade.
	DefaultThreshold = 80
)

var (
	// DefaultOrderSize is the default market order size in base asset units.
	DefaultOrderSize = decimal.RequireFromString("0.0001")
)

// EngineConfig represents the decision pipeline configuration.
type EngineConfig struct {
	// Store represents the candle store.
	Store shared.CandleStorer
	// Forecaster represents the forecasting oracle.
	Forecaster shared.Forecaster
	// Submitter represents the exchange client.
	Submitter shared.OrderSubmitter
	// Orders represents the order record store.
	Orders shared.OrderStorer
	// Threshold is the minimum confidence, inclusive, required to trade.
	Threshold int
	// OrderSize is the size of submitted market orders.
	OrderSize decimal.Decimal
	// DryRun logs would-be trades instead of submitting them.
	DryRun bool
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *EngineConfig) Validate() error {
	var errs error

	if cfg.Store == nil {
		errs = errors.Join(errs, fmt.Errorf("candle store cannot be nil"))
	}
	if cfg.Forecaster == nil {
		errs = errors.Join(errs, fmt.Errorf("forecaster cannot be nil"))
	}
	if cfg.Submitter == nil {
		errs = errors.Join(errs, fmt.Errorf("order submitter cannot be nil"))
	}
	if cfg.Orders == nil {
		errs = errors.Join(errs, fmt.Errorf("order store cannot be nil"))
	}
	if cfg.Threshold < 0 || cfg.Threshold > 100 {
		errs = errors.Join(errs, fmt.Errorf("threshold must be within 0-100, got %d", cfg.Threshold))
	}
	if !cfg.OrderSize.IsPositive() {
		errs = errors.Join(errs, fmt.Errorf("order size must be positive, got %s", cfg.OrderSize))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// Engine runs decision cycles: forecast the stored history and trade on a
// confident directional judgment.
type Engine struct {
	cfg          *EngineConfig
	now          func() time.Time
	mtx          sync.Mutex
	cycleSignals chan struct{}
}

// NewEngine initializes a new decision engine.
func NewEngine(cfg *EngineConfig) (*Engine, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating engine config: %w", err)
	}

	return &Engine{
		cfg:          cfg,
		now:          time.Now,
		cycleSignals: make(chan struct{}, bufferSize),
	}, nil
}

// decide maps the judgment to an order side. A trade requires both the
// confidence threshold and a directional prediction.
func decide(judgment *shared.ForecastJudgment, threshold int) (shared.Side, bool) {
	if judgment.Confidence < threshold {
		return "", false
	}

	return judgment.Prediction.Side()
}

// errorKind returns the classification of the provided error.
func errorKind(err error) string {
	var classified *shared.Error
	if errors.As(err, &classified) {
		return string(classified.Kind)
	}

	return "internal"
}

// RunCycle runs a single decision cycle. Cycles are serialized and never
// retried. The cycle result is returned alongside the error when an order
// was placed but its record could not be stored.
func (e *Engine) RunCycle(ctx context.Context) (*shared.CycleResult, error) {
	e.mtx.Lock()
	defer e.mtx.Unlock()

	result, err := e.runCycle(ctx)
	if err != nil {
		metrics.CycleFailures.WithLabelValues(errorKind(err)).Inc()
	}

	return result, err
}

// runCycle fetches, forecasts, gates and trades.
func (e *Engine) runCycle(ctx context.Context) (*shared.CycleResult, error) {
	result := &shared.CycleResult{ID: uuid.New()}

	candles, err := e.cfg.Store.FetchCandles(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching candles: %w", err)
	}
	if len(candles) == 0 {
		return nil, shared.Errorf(shared.UpstreamFetchError, "no candles stored")
	}

	judgment, err := e.cfg.Forecaster.Forecast(ctx, candles)
	if err != nil {
		return nil, fmt.Errorf("forecasting %d candles: %w", len(candles), err)
	}

	result.Judgment = judgment
	metrics.Judgments.WithLabelValues(judgment.Prediction.String()).Inc()
	e.cfg.Logger.Info().Msgf("cycle %s judgment: %s at %d%% confidence (%s)",
		result.ID, judgment.Prediction, judgment.Confidence, judgment.Pattern)

	side, ok := decide(judgment, e.cfg.Threshold)
	if !ok {
		e.cfg.Logger.Info().Msgf("cycle %s: no trade, gate requires confidence >= %d and a directional prediction",
			result.ID, e.cfg.Threshold)
		return result, nil
	}

	if e.cfg.DryRun {
		e.cfg.Logger.Info().Msgf("cycle %s: dry run, would submit %s %s", result.ID, side, e.cfg.OrderSize)
		return result, nil
	}

	ack, err := e.cfg.Submitter.SubmitMarketOrder(ctx, side, e.cfg.OrderSize)
	if err != nil {
		return nil, fmt.Errorf("submitting %s order: %w", side, err)
	}

	metrics.OrdersSubmitted.WithLabelValues(side.String()).Inc()
	e.cfg.Logger.Debug().Msgf("order acknowledgment: %s", spew.Sdump(ack))

	result.Trade = &shared.Trade{
		Side:    side,
		Size:    e.cfg.OrderSize,
		OrderID: ack.OrderID,
		Status:  ack.Status,
	}

	record := &shared.OrderRecord{
		Signal:    side,
		OrderID:   ack.OrderID,
		CreatedAt: e.now().UTC(),
	}

	err = e.cfg.Orders.InsertOrder(ctx, record)
	if err != nil {
		return result, fmt.Errorf("storing record of placed order %s: %w", ack.OrderID, err)
	}

	e.cfg.Logger.Info().Msgf("cycle %s: placed %s order %s (%s)", result.ID, side, ack.OrderID, ack.Status)

	return result, nil
}

// SendCycleSignal queues a decision cycle for processing.
func (e *Engine) SendCycleSignal() {
	select {
	case e.cycleSignals <- struct{}{}:
		// do nothing.
	default:
		e.cfg.Logger.Error().Msgf("cycle signals channel at capacity: %d/%d",
			len(e.cycleSignals), bufferSize)
	}
}

// Run manages the lifecycle processes of the decision engine.
func (e *Engine) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.cycleSignals:
			_, err := e.RunCycle(ctx)
			if err != nil {
				e.cfg.Logger.Error().Msgf("running queued cycle: %v", err)
			}
		}
	}
}
