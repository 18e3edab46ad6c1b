package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stanstork/reconciler/internal/models"
)

func TestLockRepositoryInsertIfNoneActive(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	lock := models.Lock{
		ID:         "lock-1",
		Key:        "recon:client-1",
		Type:       models.LockTypeJob,
		UserID:     "user-1",
		AcquiredAt: now,
		ExpiresAt:  now.Add(30 * time.Minute),
	}
	mock.ExpectExec(regexp.QuoteMeta("WHERE NOT EXISTS")).
		WithArgs("lock-1", "recon:client-1", models.LockTypeJob, "user-1", nil, now, lock.ExpiresAt, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("WHERE NOT EXISTS")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewLockRepository(db)
	ok, err := repo.InsertIfNoneActive(context.Background(), lock, now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.InsertIfNoneActive(context.Background(), lock, now)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockRepositoryFindActiveNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("expires_at > $3")).
		WithArgs("k", models.LockTypeUpload, now).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err = NewLockRepository(db).FindActive(context.Background(), "k", models.LockTypeUpload, now)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLockRepositoryFindActive(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	cols := []string{"id", "lock_key", "lock_type", "user_id", "job_id", "acquired_at", "expires_at"}
	mock.ExpectQuery(regexp.QuoteMeta("FROM reconciliation.locks")).
		WithArgs("k", models.LockTypeJob, now).
		WillReturnRows(sqlmock.NewRows(cols).AddRow("l1", "k", "JOB", "u1", "job-9", now, now.Add(time.Minute)))

	l, err := NewLockRepository(db).FindActive(context.Background(), "k", models.LockTypeJob, now)
	require.NoError(t, err)
	require.NotNil(t, l.JobID)
	assert.Equal(t, "job-9", *l.JobID)
	assert.Equal(t, models.LockTypeJob, l.Type)
}

func TestLockRepositoryExtend(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE reconciliation.locks")).
		WithArgs(int64(600), "k", models.LockTypeGlobal, now).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := NewLockRepository(db).Extend(context.Background(), "k", models.LockTypeGlobal, 10*time.Minute, now)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockRepositoryDeleteExpired(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	mock.ExpectExec(regexp.QuoteMeta("WHERE expires_at <= $1")).
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := NewLockRepository(db).DeleteExpired(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}
