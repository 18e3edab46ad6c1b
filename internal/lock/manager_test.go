package lock

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stanstork/reconciler/internal/lock/locktest"
	"github.com/stanstork/reconciler/internal/models"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newManager() (*Manager, *locktest.Repository, *clock) {
	repo := locktest.NewRepository()
	c := &clock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	return NewManager(repo, 30*time.Minute, zerolog.Nop(), WithClock(c.now)), repo, c
}

func TestAcquireReleaseAcquire(t *testing.T) {
	m, _, _ := newManager()
	ctx := context.Background()

	ok, err := m.AcquireLock(ctx, "upload:c1", models.LockTypeUpload, "u1", "", 10)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.AcquireLock(ctx, "upload:c1", models.LockTypeUpload, "u2", "", 10)
	require.NoError(t, err)
	assert.False(t, ok)

	released, err := m.Release(ctx, "upload:c1", models.LockTypeUpload)
	require.NoError(t, err)
	assert.True(t, released)

	ok, err = m.AcquireLock(ctx, "upload:c1", models.LockTypeUpload, "u2", "", 10)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSameKeyDifferentTypeIsIndependent(t *testing.T) {
	m, _, _ := newManager()
	ctx := context.Background()

	ok, _ := m.AcquireLock(ctx, "k", models.LockTypeJob, "u1", "", 5)
	assert.True(t, ok)
	ok, _ = m.AcquireLock(ctx, "k", models.LockTypeUser, "u1", "", 5)
	assert.True(t, ok)
}

func TestRefusalDoesNotModifyState(t *testing.T) {
	m, repo, _ := newManager()
	ctx := context.Background()

	_, _ = m.AcquireLock(ctx, "k", models.LockTypeJob, "u1", "j1", 5)
	before := repo.All()
	ok, err := m.AcquireLock(ctx, "k", models.LockTypeJob, "u2", "j2", 60)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, before, repo.All())
}

func TestExpiredLockIsNotActive(t *testing.T) {
	m, repo, c := newManager()
	ctx := context.Background()

	ok, _ := m.AcquireLock(ctx, "k", models.LockTypeGlobal, "u1", "", 5)
	require.True(t, ok)

	c.advance(6 * time.Minute)
	locked, err := m.IsLocked(ctx, "k", models.LockTypeGlobal)
	require.NoError(t, err)
	assert.False(t, locked)

	n, err := m.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Empty(t, repo.All())
}

func TestAcquireSweepsExpiredOfSameKey(t *testing.T) {
	m, repo, c := newManager()
	ctx := context.Background()

	_, _ = m.AcquireLock(ctx, "k", models.LockTypeJob, "u1", "", 1)
	c.advance(2 * time.Minute)

	ok, err := m.AcquireLock(ctx, "k", models.LockTypeJob, "u2", "", 1)
	require.NoError(t, err)
	assert.True(t, ok)
	require.Len(t, repo.All(), 1)
	assert.Equal(t, "u2", repo.All()[0].UserID)
}

func TestExtendOnlyActive(t *testing.T) {
	m, _, c := newManager()
	ctx := context.Background()

	ok, err := m.Extend(ctx, "k", models.LockTypeJob, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	_, _ = m.AcquireLock(ctx, "k", models.LockTypeJob, "u1", "", 5)
	ok, err = m.Extend(ctx, "k", models.LockTypeJob, 10*time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	c.advance(10 * time.Minute)
	locked, _ := m.IsLocked(ctx, "k", models.LockTypeJob)
	assert.True(t, locked)
}

func TestReleaseAllUserLocks(t *testing.T) {
	m, repo, _ := newManager()
	ctx := context.Background()

	_, _ = m.AcquireLock(ctx, "a", models.LockTypeUser, "u1", "", 5)
	_, _ = m.AcquireLock(ctx, "b", models.LockTypeJob, "u1", "", 5)
	_, _ = m.AcquireLock(ctx, "c", models.LockTypeJob, "u2", "", 5)

	n, err := m.ReleaseAllUserLocks(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Len(t, repo.All(), 1)
}

func TestReleaseLockByJobID(t *testing.T) {
	m, _, _ := newManager()
	ctx := context.Background()

	_, _ = m.AcquireLock(ctx, "recon:c1", models.LockTypeJob, "u1", "job-1", 5)

	ok, err := m.ReleaseLockByJobID(ctx, "job-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.ReleaseLockByJobID(ctx, "job-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAcquireRejectsUnknownType(t *testing.T) {
	m, _, _ := newManager()
	_, err := m.AcquireLock(context.Background(), "k", models.LockType("SHARED"), "u1", "", 5)
	assert.ErrorIs(t, err, ErrInvalidType)
}

func TestDefaultTTL(t *testing.T) {
	m, repo, _ := newManager()
	ok, err := m.Acquire(context.Background(), Request{Key: "k", Type: models.LockTypeJob, OwnerID: "u1"})
	require.NoError(t, err)
	require.True(t, ok)
	l := repo.All()[0]
	assert.Equal(t, 30*time.Minute, l.ExpiresAt.Sub(l.AcquiredAt))
}
