package oracle

import (
	"context"
	"errors"
	"fmt"

	"github.com/dnldd/augur/shared"
	"github.com/rs/zerolog"
)

// Completer defines the requirements for completing a prompt.
type Completer interface {
	// Complete sends the provided prompt to the model and returns its text response.
	Complete(ctx context.Context, prompt string) (string, error)
}

// Ensure the client implements the Completer interface.
var _ Completer = (*Client)(nil)

// OracleConfig represents the forecasting oracle configuration.
type OracleConfig struct {
	// Asset is the name of the tracked asset used in prompts.
	Asset string
	// Completer represents the generative model client.
	Completer Completer
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *OracleConfig) Validate() error {
	var errs error

	if cfg.Asset == "" {
		errs = errors.Join(errs, fmt.Errorf("asset cannot be an empty string"))
	}
	if cfg.Completer == nil {
		errs = errors.Join(errs, fmt.Errorf("completer cannot be nil"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// Oracle forecasts the next day's direction from the candle series.
type Oracle struct {
	cfg *OracleConfig
}

// Ensure the oracle implements the Forecaster interface.
var _ shared.Forecaster = (*Oracle)(nil)

// NewOracle initializes a new forecasting oracle.
func NewOracle(cfg *OracleConfig) (*Oracle, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating oracle config: %w", err)
	}

	return &Oracle{cfg: cfg}, nil
}

// Forecast returns a validated judgment of the provided candle series.
func (o *Oracle) Forecast(ctx context.Context, candles []shared.Candle) (*shared.ForecastJudgment, error) {
	prompt := BuildPrompt(o.cfg.Asset, candles)

	text, err := o.cfg.Completer.Complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("requesting forecast: %w", err)
	}

	o.cfg.Logger.Debug().Msgf("oracle response: %s", text)

	judgment, err := ParseJudgment(text)
	if err != nil {
		return nil, err
	}

	return judgment, nil
}

