package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stanstork/reconciler/internal/lock"
	"github.com/stanstork/reconciler/internal/lock/locktest"
	"github.com/stanstork/reconciler/internal/models"
)

type countingLocks struct {
	calls int32
	n     int64
	err   error
}

func (c *countingLocks) CleanupExpired(context.Context) (int64, error) {
	atomic.AddInt32(&c.calls, 1)
	return c.n, c.err
}

type recordingJobs struct {
	retention time.Duration
	n         int64
}

func (r *recordingJobs) CleanupOlderThan(_ context.Context, retention time.Duration) (int64, error) {
	r.retention = retention
	return r.n, nil
}

func TestSweeper_SweepsOnIntervalWithoutLockTraffic(t *testing.T) {
	locks := &countingLocks{n: 1}
	s := NewSweeper(SweeperConfig{LockInterval: 5 * time.Millisecond, CleanupInterval: time.Hour},
		locks, nil, nil, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	require.Eventually(t, func() bool { return atomic.LoadInt32(&locks.calls) >= 3 }, time.Second, time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestSweeper_ErrorsDoNotStopTheLoop(t *testing.T) {
	locks := &countingLocks{err: errors.New("connection refused")}
	s := NewSweeper(SweeperConfig{LockInterval: 2 * time.Millisecond}, locks, nil, nil, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Start(ctx)

	require.Eventually(t, func() bool { return atomic.LoadInt32(&locks.calls) >= 2 }, time.Second, time.Millisecond)
}

func TestSweeper_RunOnceRemovesExpiredLocks(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	repo := locktest.NewRepository()

	past := lock.NewManager(repo, time.Minute, zerolog.Nop(), lock.WithClock(func() time.Time { return now.Add(-time.Hour) }))
	ok, err := past.AcquireLock(ctx, "upload:1", models.LockTypeUpload, "u1", "", 5)
	require.NoError(t, err)
	require.True(t, ok)

	current := lock.NewManager(repo, time.Minute, zerolog.Nop(), lock.WithClock(func() time.Time { return now }))
	ok, err = current.AcquireLock(ctx, "upload:2", models.LockTypeUpload, "u1", "", 5)
	require.NoError(t, err)
	require.True(t, ok)

	jobs := &recordingJobs{n: 4}
	s := NewSweeper(SweeperConfig{Retention: 48 * time.Hour}, current, jobs, nil, zerolog.Nop())

	swept, cleaned := s.RunOnce(ctx)
	assert.Equal(t, int64(1), swept)
	assert.Equal(t, int64(4), cleaned)
	assert.Equal(t, 48*time.Hour, jobs.retention)

	remaining := repo.All()
	require.Len(t, remaining, 1)
	assert.Equal(t, "upload:2", remaining[0].Key)
}
