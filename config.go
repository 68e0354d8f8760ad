package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"time"

	"github.com/dnldd/augur/engine"
	"github.com/dnldd/augur/exchange"
	"github.com/dnldd/augur/fetch"
	"github.com/dnldd/augur/oracle"
	"github.com/dnldd/augur/service"
	"github.com/dnldd/augur/shared"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	// ModeServe runs the trigger surface and scheduled jobs.
	ModeServe = "serve"
	// ModeBackfill runs a single backfill and exits.
	ModeBackfill = "backfill"
	// ModeCycle runs a single decision cycle and exits.
	ModeCycle = "cycle"
	// scheduleLayout is the layout of the daily job time.
	scheduleLayout = "15:04"
)

// Config is the configuration struct for the service.
type Config struct {
	// Mode is the run mode: serve, backfill or cycle.
	Mode string
	// From is the inclusive start day (YYYY-MM-DD) of a backfill.
	From string
	// To is the exclusive end day (YYYY-MM-DD) of a backfill.
	To string
	// Listen is the trigger surface listen address.
	Listen string
	// LogLevel is the minimum log level.
	LogLevel string
	// DBDriver selects the store: rqlite or postgres.
	DBDriver string
	// DBEndpoint is the rqlite endpoint.
	DBEndpoint string
	// DBUser is the rqlite user.
	DBUser string
	// DBPass is the rqlite user pass.
	DBPass string
	// DatabaseURL is the postgres connection string.
	DatabaseURL string
	// MarketProvider selects the market data provider: coingecko or fmp.
	MarketProvider string
	// CoinGeckoAPIKey is the optional CoinGecko demo api key.
	CoinGeckoAPIKey string
	// CoinGeckoCoin is the CoinGecko coin id.
	CoinGeckoCoin string
	// FMPAPIkey is the FMP service API Key.
	FMPAPIKey string
	// FMPSymbol is the FMP symbol.
	FMPSymbol string
	// OracleProvider selects the oracle model provider.
	OracleProvider string
	// OracleAPIKey is the oracle model api key.
	OracleAPIKey string
	// OracleModel overrides the provider's default model.
	OracleModel string
	// KrakenKey is the venue api key.
	KrakenKey string
	// KrakenSecret is the base64 encoded venue api secret.
	KrakenSecret string
	// KrakenBaseURL is the venue base url.
	KrakenBaseURL string
	// Symbol is the traded contract.
	Symbol string
	// OrderSize is the market order size.
	OrderSize string
	// Threshold is the minimum confidence required to trade.
	Threshold int
	// CatchUpDays is the trailing span refreshed by a catch up.
	CatchUpDays int
	// Schedule is the daily job time (HH:MM, UTC), empty disables it.
	Schedule string
	// AutoTrade runs a decision cycle after every scheduled catch up.
	AutoTrade bool
	// DryRun logs would-be trades instead of submitting them.
	DryRun bool

	registeredFlags map[string]bool
}

// Validate asserts the config sane inputs.
func (cfg *Config) Validate() error {
	var errs error

	switch cfg.Mode {
	case ModeServe, ModeCycle:
		if cfg.OracleAPIKey == "" {
			errs = errors.Join(errs, fmt.Errorf("oracle api key cannot be an empty string"))
		}
		switch oracle.Provider(cfg.OracleProvider) {
		case oracle.ProviderGemini, oracle.ProviderClaude, oracle.ProviderOpenAI:
		default:
			errs = errors.Join(errs, fmt.Errorf("unsupported oracle provider: %q", cfg.OracleProvider))
		}
		if !cfg.DryRun {
			if cfg.KrakenKey == "" {
				errs = errors.Join(errs, fmt.Errorf("kraken key cannot be an empty string"))
			}
			if cfg.KrakenSecret == "" {
				errs = errors.Join(errs, fmt.Errorf("kraken secret cannot be an empty string"))
			}
		}
	case ModeBackfill:
		from, err := shared.ParseDay(cfg.From)
		if err != nil {
			errs = errors.Join(errs, fmt.Errorf("backfill from: %w", err))
		}
		to, err := shared.ParseDay(cfg.To)
		if err != nil {
			errs = errors.Join(errs, fmt.Errorf("backfill to: %w", err))
		}
		if !from.IsZero() && !to.IsZero() && !from.Before(to) {
			errs = errors.Join(errs, fmt.Errorf("backfill from %s must precede to %s", cfg.From, cfg.To))
		}
	default:
		errs = errors.Join(errs, fmt.Errorf("unsupported mode: %q", cfg.Mode))
	}

	switch cfg.DBDriver {
	case service.DriverRqlite:
		if cfg.DBEndpoint == "" {
			errs = errors.Join(errs, fmt.Errorf("db endpoint cannot be an empty string"))
		}
	case service.DriverPostgres:
		if cfg.DatabaseURL == "" {
			errs = errors.Join(errs, fmt.Errorf("database url cannot be an empty string"))
		}
	default:
		errs = errors.Join(errs, fmt.Errorf("unsupported database driver: %q", cfg.DBDriver))
	}

	switch cfg.MarketProvider {
	case service.ProviderCoinGecko:
	case service.ProviderFMP:
		if cfg.FMPAPIKey == "" {
			errs = errors.Join(errs, fmt.Errorf("fmp api key cannot be an empty string"))
		}
	default:
		errs = errors.Join(errs, fmt.Errorf("unsupported market provider: %q", cfg.MarketProvider))
	}

	_, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		errs = errors.Join(errs, fmt.Errorf("log level: %w", err))
	}

	size, err := decimal.NewFromString(cfg.OrderSize)
	if err != nil || !size.IsPositive() {
		errs = errors.Join(errs, fmt.Errorf("order size must be a positive decimal, got %q", cfg.OrderSize))
	}

	if cfg.Threshold < 0 || cfg.Threshold > 100 {
		errs = errors.Join(errs, fmt.Errorf("threshold must be within 0-100, got %d", cfg.Threshold))
	}
	if cfg.CatchUpDays <= 0 {
		errs = errors.Join(errs, fmt.Errorf("catch up days must be positive, got %d", cfg.CatchUpDays))
	}
	if cfg.Schedule != "" {
		_, err := time.Parse(scheduleLayout, cfg.Schedule)
		if err != nil {
			errs = errors.Join(errs, fmt.Errorf("schedule must be HH:MM, got %q", cfg.Schedule))
		}
	}

	if errs != nil {
		return shared.NewError(shared.ConfigurationError, "", errs)
	}

	return nil
}

// AugurConfig creates the service configuration from the validated config.
func (cfg *Config) AugurConfig() *service.AugurConfig {
	size, _ := decimal.NewFromString(cfg.OrderSize)

	return &service.AugurConfig{
		Asset:           "BTC/USD",
		DBDriver:        cfg.DBDriver,
		DBEndpoint:      cfg.DBEndpoint,
		DBUser:          cfg.DBUser,
		DBPass:          cfg.DBPass,
		DatabaseURL:     cfg.DatabaseURL,
		MarketProvider:  cfg.MarketProvider,
		CoinGeckoAPIKey: cfg.CoinGeckoAPIKey,
		CoinGeckoCoin:   cfg.CoinGeckoCoin,
		FMPAPIKey:       cfg.FMPAPIKey,
		FMPSymbol:       cfg.FMPSymbol,
		OracleProvider:  oracle.Provider(cfg.OracleProvider),
		OracleAPIKey:    cfg.OracleAPIKey,
		OracleModel:     cfg.OracleModel,
		KrakenKey:       cfg.KrakenKey,
		KrakenSecret:    cfg.KrakenSecret,
		KrakenBaseURL:   cfg.KrakenBaseURL,
		Symbol:          cfg.Symbol,
		OrderSize:       size,
		Threshold:       cfg.Threshold,
		CatchUpDays:     cfg.CatchUpDays,
		Schedule:        cfg.Schedule,
		AutoTrade:       cfg.AutoTrade,
		DryRun:          cfg.DryRun,
		Listen:          cfg.Listen,
		IngestOnly:      cfg.Mode == ModeBackfill,
	}
}

// registerFlag registers command line arguments of any type and tracks them to avoid reregistration.
// The environment variable of the same name takes precedence over the provided fallback default.
func (cfg *Config) registerFlag(name string, value interface{}, fallback string, usage string) error {
	if cfg.registeredFlags == nil {
		cfg.registeredFlags = make(map[string]bool)
	}

	if cfg.registeredFlags[name] {
		return nil
	}

	cfg.registeredFlags[name] = true

	defValue := fallback
	if env, ok := os.LookupEnv(name); ok {
		defValue = env
	}

	val := reflect.ValueOf(value)
	if val.Kind() != reflect.Ptr || val.IsNil() {
		return fmt.Errorf("%s: value must be a non-nil pointer", name)
	}

	switch val.Elem().Kind() {
	case reflect.String:
		flag.StringVar(value.(*string), name, defValue, usage)
	case reflect.Bool:
		var def bool
		if defValue != "" {
			var err error
			def, err = strconv.ParseBool(defValue)
			if err != nil {
				return fmt.Errorf("%s: invalid bool %q: %w", name, defValue, err)
			}
		}
		flag.BoolVar(value.(*bool), name, def, usage)
	case reflect.Int:
		var def int
		if defValue != "" {
			var err error
			def, err = strconv.Atoi(defValue)
			if err != nil {
				return fmt.Errorf("%s: invalid int %q: %w", name, defValue, err)
			}
		}
		flag.IntVar(value.(*int), name, def, usage)
	default:
		return fmt.Errorf("%s: unsupported type", name)
	}

	return nil
}

// loadConfig loads the configuration from environment variables and command line flags.
func loadConfig(cfg *Config, path string) error {
	if path == "" {
		path = ".env"
	}

	// Check if the expected .env file exists before loading it.
	_, err := os.Stat(path)
	if err == nil {
		err := godotenv.Load(path)
		if err != nil {
			return fmt.Errorf("loading .env file: %w", err)
		}
	}

	flags := []struct {
		name     string
		value    interface{}
		fallback string
		usage    string
	}{
		{"mode", &cfg.Mode, ModeServe, "the run mode: serve, backfill or cycle"},
		{"from", &cfg.From, "", "the inclusive backfill start day (YYYY-MM-DD)"},
		{"to", &cfg.To, "", "the exclusive backfill end day (YYYY-MM-DD)"},
		{"listen", &cfg.Listen, ":8080", "the trigger surface listen address"},
		{"loglevel", &cfg.LogLevel, "info", "the log level"},
		{"dbdriver", &cfg.DBDriver, service.DriverRqlite, "the store driver: rqlite or postgres"},
		{"dbendpoint", &cfg.DBEndpoint, "http://localhost:4001", "the rqlite endpoint"},
		{"dbuser", &cfg.DBUser, "", "the rqlite user"},
		{"dbpass", &cfg.DBPass, "", "the rqlite user pass"},
		{"databaseurl", &cfg.DatabaseURL, "", "the postgres connection string"},
		{"marketprovider", &cfg.MarketProvider, service.ProviderCoinGecko, "the market data provider: coingecko or fmp"},
		{"coingeckoapikey", &cfg.CoinGeckoAPIKey, "", "the CoinGecko demo api key"},
		{"coingeckocoin", &cfg.CoinGeckoCoin, fetch.CoinGeckoDefaultCoin, "the CoinGecko coin id"},
		{"fmpapikey", &cfg.FMPAPIKey, "", "the FMP api key"},
		{"fmpsymbol", &cfg.FMPSymbol, fetch.FMPDefaultSymbol, "the FMP symbol"},
		{"oracleprovider", &cfg.OracleProvider, string(oracle.ProviderGemini), "the oracle provider: gemini, claude or openai"},
		{"oracleapikey", &cfg.OracleAPIKey, "", "the oracle api key"},
		{"oraclemodel", &cfg.OracleModel, "", "the oracle model, defaults per provider"},
		{"krakenkey", &cfg.KrakenKey, "", "the kraken futures api key"},
		{"krakensecret", &cfg.KrakenSecret, "", "the base64 kraken futures api secret"},
		{"krakenbaseurl", &cfg.KrakenBaseURL, exchange.BaseURL, "the kraken futures base url"},
		{"symbol", &cfg.Symbol, exchange.DefaultSymbol, "the traded contract"},
		{"ordersize", &cfg.OrderSize, engine.DefaultOrderSize.String(), "the market order size"},
		{"threshold", &cfg.Threshold, strconv.Itoa(engine.DefaultThreshold), "the minimum confidence required to trade"},
		{"catchupdays", &cfg.CatchUpDays, strconv.Itoa(fetch.DefaultCatchUpDays), "the trailing days refreshed by a catch up"},
		{"schedule", &cfg.Schedule, "00:05", "the daily job time (HH:MM, UTC), empty disables it"},
		{"autotrade", &cfg.AutoTrade, "false", "run a decision cycle after every scheduled catch up"},
		{"dryrun", &cfg.DryRun, "false", "log would-be trades instead of submitting them"},
	}

	// Register command line arguments using loaded environment variables as defaults.
	for _, f := range flags {
		err := cfg.registerFlag(f.name, f.value, f.fallback, f.usage)
		if err != nil {
			return shared.NewError(shared.ConfigurationError, "", err)
		}
	}

	// Parse command-line flags.
	flag.Parse()

	return cfg.Validate()
}
