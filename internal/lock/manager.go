// Package lock manages time-bounded named locks stored in the relational
// lock table. Expiry is advisory: an expired lock only becomes eligible for
// eviction and for a new acquirer.
package lock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/stanstork/reconciler/internal/metrics"
	"github.com/stanstork/reconciler/internal/models"
	"github.com/stanstork/reconciler/internal/repository"
)

var ErrInvalidType = errors.New("invalid lock type")

type Manager struct {
	repo       repository.LockRepository
	defaultTTL time.Duration
	metrics    *metrics.Metrics
	logger     zerolog.Logger
	now        func() time.Time
}

type Option func(*Manager)

// WithClock replaces the wall clock, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

func NewManager(repo repository.LockRepository, defaultTTL time.Duration, logger zerolog.Logger, opts ...Option) *Manager {
	if defaultTTL <= 0 {
		defaultTTL = 30 * time.Minute
	}
	m := &Manager{
		repo:       repo,
		defaultTTL: defaultTTL,
		logger:     logger.With().Str("component", "lock_manager").Logger(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Request describes one acquisition. A zero TTL uses the manager default.
type Request struct {
	Key     string
	Type    models.LockType
	OwnerID string
	JobID   string
	TTL     time.Duration
}

// Acquire sweeps expired locks of (key, type) and takes the lock unless an
// active one exists. Refusal is reported as false, not as an error.
func (m *Manager) Acquire(ctx context.Context, req Request) (bool, error) {
	if !req.Type.Valid() {
		return false, errors.Wrapf(ErrInvalidType, "%q", req.Type)
	}
	now := m.now()
	if _, err := m.repo.DeleteExpiredFor(ctx, req.Key, req.Type, now); err != nil {
		return false, err
	}

	ttl := req.TTL
	if ttl <= 0 {
		ttl = m.defaultTTL
	}
	l := models.Lock{
		ID:         uuid.NewString(),
		Key:        req.Key,
		Type:       req.Type,
		UserID:     req.OwnerID,
		AcquiredAt: now,
		ExpiresAt:  now.Add(ttl),
	}
	if req.JobID != "" {
		jobID := req.JobID
		l.JobID = &jobID
	}

	ok, err := m.repo.InsertIfNoneActive(ctx, l, now)
	if err != nil {
		return false, err
	}
	m.metrics.LockAttempt(string(req.Type), ok)
	m.logger.Debug().
		Str("lock_key", req.Key).
		Str("lock_type", string(req.Type)).
		Str("owner", req.OwnerID).
		Bool("acquired", ok).
		Msg("lock acquisition")
	return ok, nil
}

// AcquireLock is the minute-based form of Acquire.
func (m *Manager) AcquireLock(ctx context.Context, key string, lockType models.LockType, ownerID, jobID string, ttlMinutes int) (bool, error) {
	return m.Acquire(ctx, Request{
		Key:     key,
		Type:    lockType,
		OwnerID: ownerID,
		JobID:   jobID,
		TTL:     time.Duration(ttlMinutes) * time.Minute,
	})
}

// Release deletes the lock on (key, type) whether or not it expired.
func (m *Manager) Release(ctx context.Context, key string, lockType models.LockType) (bool, error) {
	return m.repo.Delete(ctx, key, lockType)
}

// Extend pushes back the expiry of an active lock. It reports false when no
// active lock exists.
func (m *Manager) Extend(ctx context.Context, key string, lockType models.LockType, extra time.Duration) (bool, error) {
	return m.repo.Extend(ctx, key, lockType, extra, m.now())
}

func (m *Manager) IsLocked(ctx context.Context, key string, lockType models.LockType) (bool, error) {
	_, err := m.repo.FindActive(ctx, key, lockType, m.now())
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Holder returns the active lock on (key, type).
func (m *Manager) Holder(ctx context.Context, key string, lockType models.LockType) (models.Lock, error) {
	return m.repo.FindActive(ctx, key, lockType, m.now())
}

func (m *Manager) ReleaseAllUserLocks(ctx context.Context, ownerID string) (int64, error) {
	n, err := m.repo.DeleteActiveByUser(ctx, ownerID, m.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		m.logger.Info().Str("owner", ownerID).Int64("released", n).Msg("released user locks")
	}
	return n, nil
}

func (m *Manager) ReleaseLockByJobID(ctx context.Context, jobID string) (bool, error) {
	n, err := m.repo.DeleteActiveByJob(ctx, jobID, m.now())
	if err != nil {
		return false, err
	}
	if n > 1 {
		m.logger.Warn().Str("job_id", jobID).Int64("released", n).Msg("more than one active lock carried the job id")
	}
	return n > 0, nil
}

// CleanupExpired removes every expired lock. The sweeper calls it on a
// fixed interval.
func (m *Manager) CleanupExpired(ctx context.Context) (int64, error) {
	n, err := m.repo.DeleteExpired(ctx, m.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		m.logger.Info().Int64("swept", n).Msg("expired locks removed")
	}
	return n, nil
}
