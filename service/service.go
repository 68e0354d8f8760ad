package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/dnldd/augur/database"
	"github.com/dnldd/augur/engine"
	"github.com/dnldd/augur/exchange"
	"github.com/dnldd/augur/fetch"
	"github.com/dnldd/augur/oracle"
	"github.com/dnldd/augur/shared"
	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"
	"github.com/shopspring/decimal"
)

const (
	// DriverRqlite selects the rqlite store.
	DriverRqlite = "rqlite"
	// DriverPostgres selects the postgres store.
	DriverPostgres = "postgres"
	// ProviderCoinGecko selects the CoinGecko market data provider.
	ProviderCoinGecko = "coingecko"
	// ProviderFMP selects the FMP market data provider.
	ProviderFMP = "fmp"
	// shutdownTimeout bounds the graceful shutdown of the trigger surface.
	shutdownTimeout = time.Second * 10
)

// AugurConfig represents the configuration struct for the augur service.
type AugurConfig struct {
	// Asset is the name of the tracked asset used in prompts.
	Asset string
	// DBDriver selects the candle and order store.
	DBDriver string
	// DBEndpoint is the rqlite endpoint.
	DBEndpoint string
	// DBUser is the rqlite user.
	DBUser string
	// DBPass is the rqlite user pass.
	DBPass string
	// DatabaseURL is the postgres connection string.
	DatabaseURL string
	// MarketProvider selects the market data provider.
	MarketProvider string
	// CoinGeckoAPIKey is the optional CoinGecko demo api key.
	CoinGeckoAPIKey string
	// CoinGeckoCoin is the CoinGecko coin id.
	CoinGeckoCoin string
	// FMPAPIKey is the FMP service API Key.
	FMPAPIKey string
	// FMPSymbol is the FMP symbol.
	FMPSymbol string
	// OracleProvider selects the generative model provider.
	OracleProvider oracle.Provider
	// OracleAPIKey is the generative model api key.
	OracleAPIKey string
	// OracleModel is the generative model name.
	OracleModel string
	// KrakenKey is the venue api key.
	KrakenKey string
	// KrakenSecret is the base64 encoded venue api secret.
	KrakenSecret string
	// KrakenBaseURL is the venue base url.
	KrakenBaseURL string
	// Symbol is the traded contract.
	Symbol string
	// OrderSize is the size of submitted market orders.
	OrderSize decimal.Decimal
	// Threshold is the minimum confidence required to trade.
	Threshold int
	// CatchUpDays is the trailing span refreshed by a catch up.
	CatchUpDays int
	// Schedule is the daily time (HH:MM, UTC) of the scheduled job.
	Schedule string
	// AutoTrade runs a decision cycle after every scheduled catch up.
	AutoTrade bool
	// DryRun logs would-be trades instead of submitting them.
	DryRun bool
	// Listen is the trigger surface listen address.
	Listen string
	// IngestOnly skips creating the oracle and venue clients, for runs that
	// only ingest candles.
	IngestOnly bool
}

// Validate asserts the config sane inputs.
func (cfg *AugurConfig) Validate() error {
	var errs error

	if cfg.Asset == "" {
		errs = errors.Join(errs, fmt.Errorf("asset cannot be an empty string"))
	}
	switch cfg.DBDriver {
	case DriverRqlite, DriverPostgres:
	default:
		errs = errors.Join(errs, fmt.Errorf("unsupported database driver: %q", cfg.DBDriver))
	}
	switch cfg.MarketProvider {
	case ProviderCoinGecko, ProviderFMP:
	default:
		errs = errors.Join(errs, fmt.Errorf("unsupported market provider: %q", cfg.MarketProvider))
	}
	if !cfg.OrderSize.IsPositive() {
		errs = errors.Join(errs, fmt.Errorf("order size must be positive"))
	}
	if cfg.CatchUpDays <= 0 {
		errs = errors.Join(errs, fmt.Errorf("catch up days must be positive"))
	}
	if cfg.Listen == "" {
		errs = errors.Join(errs, fmt.Errorf("listen address cannot be an empty string"))
	}

	return errs
}

// Components represents the collaborators driven by the service.
type Components struct {
	Fetcher    shared.MarketFetcher
	Store      shared.CandleStorer
	Orders     shared.OrderStorer
	Forecaster shared.Forecaster
	Submitter  shared.OrderSubmitter
	// Close releases the resources held by the components, if any.
	Close func()
}

// unconfiguredSubmitter stands in for the venue client when dry running
// without venue credentials.
type unconfiguredSubmitter struct{}

// SubmitMarketOrder always fails.
func (unconfiguredSubmitter) SubmitMarketOrder(ctx context.Context, side shared.Side, size decimal.Decimal) (*shared.OrderAcknowledgment, error) {
	return nil, shared.Errorf(shared.ConfigurationError, "venue credentials not configured")
}

// unconfiguredForecaster stands in for the oracle on ingest only runs.
type unconfiguredForecaster struct{}

// Forecast always fails.
func (unconfiguredForecaster) Forecast(ctx context.Context, candles []shared.Candle) (*shared.ForecastJudgment, error) {
	return nil, shared.Errorf(shared.ConfigurationError, "oracle not configured")
}

// Augur represents the forecast-driven trading service.
type Augur struct {
	cfg          *AugurConfig
	components   *Components
	fetchManager *fetch.Manager
	engine       *engine.Engine
	jobScheduler *gocron.Scheduler
	server       *http.Server
	logger       *zerolog.Logger
	wg           sync.WaitGroup
}

// NewComponents creates the store, market data, oracle and venue clients
// selected by the provided config.
func NewComponents(ctx context.Context, cfg *AugurConfig, logger *zerolog.Logger) (*Components, error) {
	comps := &Components{Close: func() {}}

	dbLogger := logger.With().Str("component", "database").Logger()
	switch cfg.DBDriver {
	case DriverPostgres:
		pg, err := database.NewPostgres(ctx, &database.PostgresConfig{
			URL:    cfg.DatabaseURL,
			Logger: &dbLogger,
		})
		if err != nil {
			return nil, fmt.Errorf("creating postgres store: %w", err)
		}
		comps.Store, comps.Orders, comps.Close = pg, pg, pg.Close
	default:
		db, err := database.NewDatabase(ctx, &database.DatabaseConfig{
			Endpoint: cfg.DBEndpoint,
			User:     cfg.DBUser,
			Pass:     cfg.DBPass,
			Logger:   &dbLogger,
		})
		if err != nil {
			return nil, fmt.Errorf("creating rqlite store: %w", err)
		}
		comps.Store, comps.Orders = db, db
	}

	switch cfg.MarketProvider {
	case ProviderFMP:
		fmp, err := fetch.NewFMPClient(&fetch.FMPConfig{
			APIKey:  cfg.FMPAPIKey,
			BaseURL: fetch.FMPBaseURL,
			Symbol:  cfg.FMPSymbol,
		})
		if err != nil {
			return nil, fmt.Errorf("creating fmp client: %w", err)
		}
		comps.Fetcher = fmp
	default:
		cg, err := fetch.NewCoinGeckoClient(&fetch.CoinGeckoConfig{
			APIKey:   cfg.CoinGeckoAPIKey,
			BaseURL:  fetch.CoinGeckoBaseURL,
			Coin:     cfg.CoinGeckoCoin,
			Currency: "usd",
		})
		if err != nil {
			return nil, fmt.Errorf("creating coingecko client: %w", err)
		}
		comps.Fetcher = cg
	}

	if cfg.IngestOnly {
		comps.Forecaster = unconfiguredForecaster{}
		comps.Submitter = unconfiguredSubmitter{}
		return comps, nil
	}

	model := cfg.OracleModel
	if model == "" {
		model = oracle.DefaultModel(cfg.OracleProvider)
	}

	llm, err := oracle.NewClient(&oracle.ClientConfig{
		Provider: cfg.OracleProvider,
		APIKey:   cfg.OracleAPIKey,
		Model:    model,
		BaseURL:  oracle.DefaultBaseURL(cfg.OracleProvider),
	})
	if err != nil {
		return nil, fmt.Errorf("creating oracle client: %w", err)
	}

	oracleLogger := logger.With().Str("component", "oracle").Logger()
	comps.Forecaster, err = oracle.NewOracle(&oracle.OracleConfig{
		Asset:     cfg.Asset,
		Completer: llm,
		Logger:    &oracleLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating oracle: %w", err)
	}

	switch {
	case cfg.DryRun && (cfg.KrakenKey == "" || cfg.KrakenSecret == ""):
		comps.Submitter = unconfiguredSubmitter{}
	default:
		exchangeLogger := logger.With().Str("component", "exchange").Logger()
		comps.Submitter, err = exchange.NewClient(&exchange.ClientConfig{
			BaseURL:   cfg.KrakenBaseURL,
			APIKey:    cfg.KrakenKey,
			APISecret: cfg.KrakenSecret,
			Symbol:    cfg.Symbol,
			Nonces:    exchange.NewNonceGenerator(),
			Logger:    &exchangeLogger,
		})
		if err != nil {
			return nil, fmt.Errorf("creating exchange client: %w", err)
		}
	}

	return comps, nil
}

// NewAugur initializes a new augur service driving the provided components.
func NewAugur(cfg *AugurConfig, comps *Components) (*Augur, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, shared.NewError(shared.ConfigurationError, "", err)
	}

	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack

	logger := log.With().Str("service", "augur").Logger()

	jobScheduler := gocron.NewScheduler(time.UTC)

	fetchMgrLogger := logger.With().Str("component", "fetchmanager").Logger()
	fetchMgr, err := fetch.NewManager(&fetch.ManagerConfig{
		Fetcher:      comps.Fetcher,
		Store:        comps.Store,
		CatchUpDays:  cfg.CatchUpDays,
		JobScheduler: jobScheduler,
		Logger:       &fetchMgrLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating fetch manager: %w", err)
	}

	engineLogger := logger.With().Str("component", "engine").Logger()
	eng, err := engine.NewEngine(&engine.EngineConfig{
		Store:      comps.Store,
		Forecaster: comps.Forecaster,
		Submitter:  comps.Submitter,
		Orders:     comps.Orders,
		Threshold:  cfg.Threshold,
		OrderSize:  cfg.OrderSize,
		DryRun:     cfg.DryRun,
		Logger:     &engineLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating engine: %w", err)
	}

	service := &Augur{
		cfg:          cfg,
		components:   comps,
		fetchManager: fetchMgr,
		engine:       eng,
		jobScheduler: jobScheduler,
		logger:       &logger,
	}

	service.server = &http.Server{
		Addr:              cfg.Listen,
		Handler:           service.router(),
		ReadHeaderTimeout: time.Second * 5,
	}

	return service, nil
}

// Backfill ingests daily candles for [from, to).
func (a *Augur) Backfill(ctx context.Context, from time.Time, to time.Time) (*shared.BackfillResult, error) {
	return a.fetchManager.Backfill(ctx, from, to)
}

// CatchUp ingests the trailing catch up span of daily candles.
func (a *Augur) CatchUp(ctx context.Context) (*shared.BackfillResult, error) {
	return a.fetchManager.CatchUp(ctx)
}

// RunCycle runs a single decision cycle.
func (a *Augur) RunCycle(ctx context.Context) (*shared.CycleResult, error) {
	return a.engine.RunCycle(ctx)
}

// dailyJob catches up on candles and queues a decision cycle.
func (a *Augur) dailyJob(ctx context.Context) {
	result, err := a.fetchManager.CatchUp(ctx)
	if err != nil {
		a.logger.Error().Msgf("daily catch up: %v", err)
		return
	}

	a.logger.Info().Msgf("daily catch up complete: %d inserted, %d seen", result.Inserted, result.Seen)
	a.engine.SendCycleSignal()
}

// schedule registers the daily jobs.
func (a *Augur) schedule(ctx context.Context) error {
	if a.cfg.Schedule == "" {
		return nil
	}

	if !a.cfg.AutoTrade {
		return a.fetchManager.ScheduleCatchUp(ctx, a.cfg.Schedule)
	}

	_, err := a.jobScheduler.Every(1).Day().At(a.cfg.Schedule).Tag("daily").Do(a.dailyJob, ctx)
	if err != nil {
		return fmt.Errorf("scheduling daily job: %w", err)
	}

	return nil
}

// Run handles the lifecycle processes of the augur service.
func (a *Augur) Run(ctx context.Context) error {
	defer func() {
		if a.components.Close != nil {
			a.components.Close()
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	err := a.schedule(ctx)
	if err != nil {
		return err
	}

	a.jobScheduler.StartAsync()

	serverErr := make(chan error, 1)

	a.wg.Add(2)

	go func() {
		a.engine.Run(ctx)
		a.wg.Done()
	}()

	go func() {
		defer a.wg.Done()
		a.logger.Info().Msgf("listening on %s", a.cfg.Listen)
		err := a.server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err = <-serverErr:
		a.logger.Error().Msgf("trigger surface failed: %v", err)
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	shutdownErr := a.server.Shutdown(shutdownCtx)
	if shutdownErr != nil {
		a.logger.Error().Msgf("shutting down trigger surface: %v", shutdownErr)
	}

	a.jobScheduler.Stop()
	a.wg.Wait()

	return err
}
