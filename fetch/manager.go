package fetch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dnldd/augur/metrics"
	"github.com/dnldd/augur/shared"
	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"
)

const (
	// DefaultCatchUpDays is the default trailing span refreshed by a catch up.
	DefaultCatchUpDays = 52
)

// ManagerConfig represents the configuration for the ingestion manager.
type ManagerConfig struct {
	// Fetcher represents the market data provider.
	Fetcher shared.MarketFetcher
	// Store represents the candle store.
	Store shared.CandleStorer
	// CatchUpDays is the trailing span, in days, refreshed by a catch up.
	CatchUpDays int
	// JobScheduler represents the job scheduler.
	JobScheduler *gocron.Scheduler
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *ManagerConfig) Validate() error {
	var errs error

	if cfg.Fetcher == nil {
		errs = errors.Join(errs, fmt.Errorf("market fetcher cannot be nil"))
	}
	if cfg.Store == nil {
		errs = errors.Join(errs, fmt.Errorf("candle store cannot be nil"))
	}
	if cfg.CatchUpDays <= 0 {
		errs = errors.Join(errs, fmt.Errorf("catch up days must be positive"))
	}
	if cfg.JobScheduler == nil {
		errs = errors.Join(errs, fmt.Errorf("job scheduler cannot be nil"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// Manager ingests daily candles from the market data provider into the store.
type Manager struct {
	cfg *ManagerConfig
	now func() time.Time
	mtx sync.Mutex
}

// NewManager initializes the ingestion manager.
func NewManager(cfg *ManagerConfig) (*Manager, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating ingestion manager config: %w", err)
	}

	return &Manager{
		cfg: cfg,
		now: time.Now,
	}, nil
}

// Backfill ingests daily candles for [from, to). The range is fetched in
// consecutive windows no larger than the provider allows, oldest first, and
// each candle is inserted only if its date is not already stored. A failed
// window aborts the remaining windows, candles from earlier windows are kept.
// The progress made is returned alongside any error so the run can be resumed.
func (m *Manager) Backfill(ctx context.Context, from time.Time, to time.Time) (*shared.BackfillResult, error) {
	windows, err := shared.PartitionWindows(from, to, m.cfg.Fetcher.MaxWindowDays())
	if err != nil {
		return nil, fmt.Errorf("partitioning backfill range: %w", err)
	}

	m.mtx.Lock()
	defer m.mtx.Unlock()

	result := &shared.BackfillResult{}
	for idx := range windows {
		window := windows[idx]

		inserted, seen, err := m.ingestWindow(ctx, window)
		result.Inserted += inserted
		result.Seen += seen
		if err != nil {
			m.cfg.Logger.Error().Msgf("backfill aborted at window %d/%d %s: %v",
				idx+1, len(windows), window.String(), err)
			return result, fmt.Errorf("ingesting window %s: %w", window.String(), err)
		}

		result.Windows++
		m.cfg.Logger.Info().Msgf("ingested window %d/%d %s: %d inserted, %d seen",
			idx+1, len(windows), window.String(), inserted, seen)
	}

	return result, nil
}

// ingestWindow fetches and stores the candles of a single window.
func (m *Manager) ingestWindow(ctx context.Context, window shared.Window) (int, int, error) {
	data, err := m.cfg.Fetcher.FetchDailyHistorical(ctx, window.Start, window.End)
	if err != nil {
		metrics.IngestionFailures.Inc()
		return 0, 0, err
	}

	candles, err := ParseCandles(data, window)
	if err != nil {
		metrics.IngestionFailures.Inc()
		return 0, 0, err
	}

	var inserted, seen int
	for idx := range candles {
		seen++
		metrics.CandlesSeen.Inc()

		ok, err := m.cfg.Store.InsertCandle(ctx, &candles[idx])
		if err != nil {
			metrics.IngestionFailures.Inc()
			return inserted, seen, fmt.Errorf("storing candle for %s: %w", candles[idx].Day(), err)
		}
		if ok {
			inserted++
			metrics.CandlesInserted.Inc()
		}
	}

	return inserted, seen, nil
}

// CatchUp ingests the trailing catch up span of completed daily candles. The
// span ends at the start of the current UTC day, so a partial day is never
// stored.
func (m *Manager) CatchUp(ctx context.Context) (*shared.BackfillResult, error) {
	to := shared.TruncateDay(m.now())
	from := to.AddDate(0, 0, -m.cfg.CatchUpDays)

	return m.Backfill(ctx, from, to)
}

// catchUpJob runs a scheduled catch up.
func (m *Manager) catchUpJob(ctx context.Context) {
	result, err := m.CatchUp(ctx)
	if err != nil {
		m.cfg.Logger.Error().Msgf("scheduled catch up: %v", err)
		return
	}

	m.cfg.Logger.Info().Msgf("scheduled catch up complete: %d inserted, %d seen across %d windows",
		result.Inserted, result.Seen, result.Windows)
}

// ScheduleCatchUp registers a daily catch up at the provided time of day (HH:MM).
func (m *Manager) ScheduleCatchUp(ctx context.Context, at string) error {
	_, err := m.cfg.JobScheduler.Every(1).Day().At(at).Tag("catchup").Do(m.catchUpJob, ctx)
	if err != nil {
		return fmt.Errorf("scheduling catch up job: %w", err)
	}

	return nil
}
