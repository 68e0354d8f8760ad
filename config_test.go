package main

import (
	"errors"
	"flag"
	"os"
	"strings"
	"testing"

	"github.com/dnldd/augur/shared"
	"github.com/peterldowns/testy/assert"
	"github.com/shopspring/decimal"
)

func validConfig() Config {
	return Config{
		Mode:           ModeServe,
		Listen:         ":8080",
		LogLevel:       "info",
		DBDriver:       "rqlite",
		DBEndpoint:     "http://localhost:4001",
		MarketProvider: "coingecko",
		CoinGeckoCoin:  "bitcoin",
		OracleProvider: "gemini",
		OracleAPIKey:   "oraclekey",
		KrakenKey:      "krakenkey",
		KrakenSecret:   "a3Jha2Vu",
		Symbol:         "PF_XBTUSD",
		OrderSize:      "0.0001",
		Threshold:      80,
		CatchUpDays:    52,
		Schedule:       "00:05",
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(cfg *Config)
		wantErr []string
	}{
		{
			name:    "valid serve config",
			modify:  func(cfg *Config) {},
			wantErr: nil,
		},
		{
			name: "missing credentials",
			modify: func(cfg *Config) {
				cfg.OracleAPIKey = ""
				cfg.KrakenKey = ""
				cfg.KrakenSecret = ""
			},
			wantErr: []string{
				"oracle api key cannot be an empty string",
				"kraken key cannot be an empty string",
				"kraken secret cannot be an empty string",
			},
		},
		{
			name: "dry run without venue credentials",
			modify: func(cfg *Config) {
				cfg.DryRun = true
				cfg.KrakenKey = ""
				cfg.KrakenSecret = ""
			},
			wantErr: nil,
		},
		{
			name: "backfill needs no oracle or venue credentials",
			modify: func(cfg *Config) {
				cfg.Mode = ModeBackfill
				cfg.From = "2023-01-01"
				cfg.To = "2025-09-27"
				cfg.OracleAPIKey = ""
				cfg.KrakenKey = ""
				cfg.KrakenSecret = ""
			},
			wantErr: nil,
		},
		{
			name: "backfill with malformed range",
			modify: func(cfg *Config) {
				cfg.Mode = ModeBackfill
				cfg.From = "2023/01/01"
				cfg.To = ""
			},
			wantErr: []string{"backfill from", "backfill to"},
		},
		{
			name: "backfill with inverted range",
			modify: func(cfg *Config) {
				cfg.Mode = ModeBackfill
				cfg.From = "2025-01-01"
				cfg.To = "2024-01-01"
			},
			wantErr: []string{"backfill from 2025-01-01 must precede to 2024-01-01"},
		},
		{
			name:    "unsupported mode",
			modify:  func(cfg *Config) { cfg.Mode = "trade" },
			wantErr: []string{`unsupported mode: "trade"`},
		},
		{
			name: "postgres without url",
			modify: func(cfg *Config) {
				cfg.DBDriver = "postgres"
			},
			wantErr: []string{"database url cannot be an empty string"},
		},
		{
			name: "fmp without api key",
			modify: func(cfg *Config) {
				cfg.MarketProvider = "fmp"
			},
			wantErr: []string{"fmp api key cannot be an empty string"},
		},
		{
			name: "invalid tuning",
			modify: func(cfg *Config) {
				cfg.OrderSize = "-1"
				cfg.Threshold = 120
				cfg.CatchUpDays = 0
				cfg.Schedule = "25:00"
				cfg.LogLevel = "verbose"
				cfg.OracleProvider = "mistral"
			},
			wantErr: []string{
				"order size must be a positive decimal",
				"threshold must be within 0-100",
				"catch up days must be positive",
				"schedule must be HH:MM",
				"log level",
				`unsupported oracle provider: "mistral"`,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(&cfg)
			err := cfg.Validate()
			if len(tt.wantErr) == 0 {
				if err != nil {
					t.Errorf("expected no error, got: %v", err)
				}
				return
			}

			if err == nil {
				t.Errorf("expected error(s) %v, got none", tt.wantErr)
				return
			}
			assert.True(t, errors.Is(err, shared.ConfigurationError))
			for _, want := range tt.wantErr {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("expected error to contain %q, got %v", want, err)
				}
			}
		})
	}
}

func TestAugurConfig(t *testing.T) {
	cfg := validConfig()
	cfg.OrderSize = "0.25"

	augurCfg := cfg.AugurConfig()
	assert.True(t, augurCfg.OrderSize.Equal(decimal.RequireFromString("0.25")))
	assert.Equal(t, augurCfg.Threshold, 80)
	assert.Equal(t, string(augurCfg.OracleProvider), "gemini")
	assert.False(t, augurCfg.IngestOnly)
	assert.NoError(t, augurCfg.Validate())

	// Ensure backfills only ingest candles.
	cfg.Mode = ModeBackfill
	assert.True(t, cfg.AugurConfig().IngestOnly)
}

func TestLoadConfig(t *testing.T) {
	// Save and restore original os.Args
	origArgs := os.Args
	defer func() {
		os.Args = origArgs
	}()

	tests := []struct {
		name        string
		env         map[string]string
		args        []string
		expectErr   bool
		expectInErr []string
		check       func(t *testing.T, cfg *Config)
	}{
		{
			name: "credentials from env, defaults elsewhere",
			env: map[string]string{
				"oracleapikey": "oraclekey",
				"krakenkey":    "krakenkey",
				"krakensecret": "a3Jha2Vu",
			},
			args:      []string{"cmd"},
			expectErr: false,
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, cfg.Mode, ModeServe)
				assert.Equal(t, cfg.DBDriver, "rqlite")
				assert.Equal(t, cfg.MarketProvider, "coingecko")
				assert.Equal(t, cfg.OracleProvider, "gemini")
				assert.Equal(t, cfg.Symbol, "PF_XBTUSD")
				assert.Equal(t, cfg.OrderSize, "0.0001")
				assert.Equal(t, cfg.Threshold, 80)
				assert.Equal(t, cfg.CatchUpDays, 52)
				assert.Equal(t, cfg.KrakenKey, "krakenkey")
			},
		},
		{
			name: "flags override env",
			env: map[string]string{
				"threshold": "70",
				"dryrun":    "true",
			},
			args:      []string{"cmd", "-mode=backfill", "-from=2023-01-01", "-to=2023-06-01", "-threshold=85", "-dbdriver=postgres", "-databaseurl=postgres://localhost/augur"},
			expectErr: false,
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, cfg.Mode, ModeBackfill)
				assert.Equal(t, cfg.From, "2023-01-01")
				assert.Equal(t, cfg.Threshold, 85)
				assert.Equal(t, cfg.DryRun, true)
				assert.Equal(t, cfg.DatabaseURL, "postgres://localhost/augur")
			},
		},
		{
			name: "malformed bool from env",
			env: map[string]string{
				"oracleapikey": "oraclekey",
				"krakenkey":    "krakenkey",
				"krakensecret": "a3Jha2Vu",
				"dryrun":       "yes",
			},
			args:        []string{"cmd", "-mode=cycle"},
			expectErr:   true,
			expectInErr: []string{`dryrun: invalid bool "yes"`},
		},
		{
			name: "malformed int from env",
			env: map[string]string{
				"oracleapikey": "oraclekey",
				"krakenkey":    "krakenkey",
				"krakensecret": "a3Jha2Vu",
				"threshold":    "eighty",
			},
			args:        []string{"cmd", "-mode=cycle"},
			expectErr:   true,
			expectInErr: []string{`threshold: invalid int "eighty"`},
		},
		{
			name:        "missing credentials",
			env:         map[string]string{},
			args:        []string{"cmd", "-mode=cycle"},
			expectErr:   true,
			expectInErr: []string{"oracle api key cannot be an empty string", "kraken key cannot be an empty string"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Reset flags for each test
			flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.ExitOnError)

			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			os.Args = tt.args

			var cfg Config
			err := loadConfig(&cfg, "testdata/missing.env")

			if tt.expectErr {
				if err == nil {
					t.Fatalf("expected error, got nil")
				}
				assert.True(t, errors.Is(err, shared.ConfigurationError))
				for _, want := range tt.expectInErr {
					if !strings.Contains(err.Error(), want) {
						t.Errorf("expected error to contain %q, got %v", want, err)
					}
				}
				return
			}

			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			tt.check(t, &cfg)
		})
	}
}
