package repository

import (
	"context"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stanstork/reconciler/internal/models"
)

func TestJobRepositoryCreate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO reconciliation.jobs")).
		WithArgs("job-1", "client-1", models.JobStatusPending, "bo.csv", "partner.csv", nil).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	job, err := NewJobRepository(db).Create(context.Background(), models.Job{
		ID:              "job-1",
		ClientID:        "client-1",
		Status:          models.JobStatusCompleted,
		BOFilePath:      "bo.csv",
		PartnerFilePath: "partner.csv",
	})
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, job.Status)
	assert.Equal(t, now, job.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJobRepositoryGet(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	cols := []string{"id", "client_id", "status", "bo_file_path", "partner_file_path", "config", "progress", "result", "error_message", "created_at", "updated_at", "completed_at"}
	mock.ExpectQuery(regexp.QuoteMeta("FROM reconciliation.jobs WHERE id = $1")).
		WithArgs("job-1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(
			"job-1", "client-1", "FAILED", "bo.csv", "partner.csv",
			nil, []byte(`{"percentage":0,"message":"boom"}`), nil, "boom", now, now, now,
		))

	job, err := NewJobRepository(db).Get(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	require.NotNil(t, job.Progress)
	assert.Equal(t, "boom", job.Progress.Message)
	require.NotNil(t, job.ErrorMessage)
	assert.Equal(t, "boom", *job.ErrorMessage)
	assert.Nil(t, job.Result)
	require.NotNil(t, job.CompletedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJobRepositoryGetNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("FROM reconciliation.jobs")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err = NewJobRepository(db).Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestJobRepositoryUpdateProgress(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	progress := models.Progress{Percentage: 30, Message: "configuring"}
	payload, _ := json.Marshal(progress)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE reconciliation.jobs")).
		WithArgs(payload, models.JobStatusProcessing, "job-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	changed, err := NewJobRepository(db).UpdateProgress(context.Background(), "job-1", progress)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJobRepositoryTerminalWritesAreGuarded(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	progress := models.Progress{Message: "late"}
	payload, _ := json.Marshal(progress)
	mock.ExpectExec(regexp.QuoteMeta("status NOT IN ('COMPLETED', 'FAILED', 'CANCELLED')")).
		WithArgs(models.JobStatusFailed, "late", payload, "job-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	changed, err := NewJobRepository(db).Fail(context.Background(), "job-1", "late", progress)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJobRepositoryDeleteOlderThan(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	cutoff := time.Now().Add(-time.Hour)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM reconciliation.jobs")).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := NewJobRepository(db).DeleteOlderThan(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}
