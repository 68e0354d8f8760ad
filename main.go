package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"time"

	"github.com/dnldd/augur/service"
	"github.com/dnldd/augur/shared"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// handleTermination processes context cancellation signals or interrupt signals from the OS.
func handleTermination(ctx context.Context, cancel context.CancelFunc) {
	// Listen for interrupt signals.
	signals := []os.Signal{os.Interrupt}
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, signals...)

	// Wait for the context to be cancelled or an interrupt signal.
	for {
		select {
		case <-ctx.Done():
			return

		case <-interrupt:
			cancel()
		}
	}
}

// printResult writes the provided result to stdout as json.
func printResult(result any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	err := enc.Encode(result)
	if err != nil {
		log.Error().Msgf("encoding result: %v", err)
	}
}

func run(ctx context.Context, cfg *Config) error {
	augurCfg := cfg.AugurConfig()

	comps, err := service.NewComponents(ctx, augurCfg, &log.Logger)
	if err != nil {
		return err
	}

	augur, err := service.NewAugur(augurCfg, comps)
	if err != nil {
		comps.Close()
		return err
	}

	switch cfg.Mode {
	case ModeBackfill:
		defer comps.Close()

		from, _ := shared.ParseDay(cfg.From)
		to, _ := shared.ParseDay(cfg.To)
		result, err := augur.Backfill(ctx, from, to)
		if result != nil {
			printResult(result)
		}
		return err

	case ModeCycle:
		defer comps.Close()

		result, err := augur.RunCycle(ctx)
		if result != nil {
			printResult(result)
		}
		return err

	default:
		return augur.Run(ctx)
	}
}

func main() {
	zerolog.TimeFieldFormat = time.RFC3339

	var cfg Config
	err := loadConfig(&cfg, "")
	if err != nil {
		log.Error().Msgf("loading config: %v", err)
		os.Exit(1)
	}

	level, _ := zerolog.ParseLevel(cfg.LogLevel)
	zerolog.SetGlobalLevel(level)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go handleTermination(ctx, cancel)

	err = run(ctx, &cfg)
	if err != nil {
		log.Error().Msgf("%s: %v", cfg.Mode, err)
		cancel()
		os.Exit(1)
	}
}
