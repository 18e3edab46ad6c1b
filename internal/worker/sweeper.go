// Package worker runs the periodic maintenance loops of the service.
package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/stanstork/reconciler/internal/metrics"
)

// LockSweeper removes expired locks.
type LockSweeper interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

// JobCleaner deletes terminal jobs past their retention.
type JobCleaner interface {
	CleanupOlderThan(ctx context.Context, retention time.Duration) (int64, error)
}

type SweeperConfig struct {
	LockInterval    time.Duration
	CleanupInterval time.Duration
	Retention       time.Duration
}

// Sweeper evicts expired locks on a fixed interval whether or not any lock
// traffic happens, and trims old jobs on a slower one.
type Sweeper struct {
	cfg     SweeperConfig
	locks   LockSweeper
	jobs    JobCleaner
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

func NewSweeper(cfg SweeperConfig, locks LockSweeper, jobs JobCleaner, m *metrics.Metrics, logger zerolog.Logger) *Sweeper {
	if cfg.LockInterval <= 0 {
		cfg.LockInterval = 5 * time.Minute
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Hour
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 7 * 24 * time.Hour
	}
	return &Sweeper{
		cfg:     cfg,
		locks:   locks,
		jobs:    jobs,
		metrics: m,
		logger:  logger.With().Str("component", "sweeper").Logger(),
	}
}

// Start blocks until ctx is done.
func (s *Sweeper) Start(ctx context.Context) error {
	s.logger.Info().
		Dur("lock_interval", s.cfg.LockInterval).
		Dur("cleanup_interval", s.cfg.CleanupInterval).
		Msg("sweeper started")

	lockTicker := time.NewTicker(s.cfg.LockInterval)
	defer lockTicker.Stop()
	cleanupTicker := time.NewTicker(s.cfg.CleanupInterval)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("sweeper stopped")
			return ctx.Err()
		case <-lockTicker.C:
			s.SweepLocks(ctx)
		case <-cleanupTicker.C:
			s.CleanupJobs(ctx)
		}
	}
}

// RunOnce performs one lock sweep and one job cleanup.
func (s *Sweeper) RunOnce(ctx context.Context) (locks, jobs int64) {
	return s.SweepLocks(ctx), s.CleanupJobs(ctx)
}

// SweepLocks logs failures and keeps going; the next tick retries.
func (s *Sweeper) SweepLocks(ctx context.Context) int64 {
	n, err := s.locks.CleanupExpired(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("expired lock sweep failed")
		return 0
	}
	s.metrics.Swept(n, 0)
	return n
}

func (s *Sweeper) CleanupJobs(ctx context.Context) int64 {
	if s.jobs == nil {
		return 0
	}
	n, err := s.jobs.CleanupOlderThan(ctx, s.cfg.Retention)
	if err != nil {
		s.logger.Error().Err(err).Msg("job cleanup failed")
		return 0
	}
	s.metrics.Swept(0, n)
	return n
}
