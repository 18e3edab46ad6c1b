package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/stanstork/reconciler/internal/models"
)

type JobRepository interface {
	Create(ctx context.Context, job models.Job) (models.Job, error)
	Get(ctx context.Context, jobID string) (models.Job, error)
	// UpdateProgress overwrites the progress snapshot and moves a PENDING job
	// to PROCESSING. Terminal jobs are left untouched; the return reports
	// whether a row changed.
	UpdateProgress(ctx context.Context, jobID string, progress models.Progress) (bool, error)
	// Complete and Fail write the final progress snapshot together with the
	// terminal status so it survives the terminal guard.
	Complete(ctx context.Context, jobID string, result json.RawMessage, progress models.Progress) (bool, error)
	Fail(ctx context.Context, jobID, message string, progress models.Progress) (bool, error)
	Cancel(ctx context.Context, jobID string) (bool, error)
	SetConfig(ctx context.Context, jobID string, config json.RawMessage) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type jobRepository struct {
	db *sql.DB
}

func NewJobRepository(db *sql.DB) JobRepository {
	return &jobRepository{db: db}
}

const jobColumns = `id, client_id, status, bo_file_path, partner_file_path, config, progress, result, error_message, created_at, updated_at, completed_at`

// notTerminal guards every status write so no transition leaves a terminal state.
const notTerminal = `status NOT IN ('COMPLETED', 'FAILED', 'CANCELLED')`

func (r *jobRepository) Create(ctx context.Context, job models.Job) (models.Job, error) {
	const query = `
		INSERT INTO reconciliation.jobs (id, client_id, status, bo_file_path, partner_file_path, config)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`
	job.Status = models.JobStatusPending
	err := r.db.QueryRowContext(ctx, query,
		job.ID,
		job.ClientID,
		job.Status,
		job.BOFilePath,
		job.PartnerFilePath,
		nullJSON(job.Config),
	).Scan(&job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return job, errors.Wrap(err, "insert job")
	}
	return job, nil
}

func (r *jobRepository) Get(ctx context.Context, jobID string) (models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM reconciliation.jobs WHERE id = $1`

	var (
		job                      models.Job
		config, progress, result []byte
		errMsg                   sql.NullString
		completedAt              sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, query, jobID).Scan(
		&job.ID,
		&job.ClientID,
		&job.Status,
		&job.BOFilePath,
		&job.PartnerFilePath,
		&config,
		&progress,
		&result,
		&errMsg,
		&job.CreatedAt,
		&job.UpdatedAt,
		&completedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return job, ErrNotFound
		}
		return job, errors.Wrapf(err, "select job %s", jobID)
	}

	if len(config) > 0 {
		job.Config = config
	}
	if len(result) > 0 {
		job.Result = result
	}
	if len(progress) > 0 {
		var p models.Progress
		if err := json.Unmarshal(progress, &p); err != nil {
			return job, errors.Wrap(err, "decode job progress")
		}
		job.Progress = &p
	}
	if errMsg.Valid {
		job.ErrorMessage = &errMsg.String
	}
	if completedAt.Valid {
		job.CompletedAt = &completedAt.Time
	}
	return job, nil
}

func (r *jobRepository) UpdateProgress(ctx context.Context, jobID string, progress models.Progress) (bool, error) {
	payload, err := json.Marshal(progress)
	if err != nil {
		return false, errors.Wrap(err, "encode progress")
	}
	query := `
		UPDATE reconciliation.jobs
		   SET progress   = $1,
		       status     = $2,
		       updated_at = NOW()
		 WHERE id = $3 AND ` + notTerminal
	return r.execAffected(ctx, query, payload, models.JobStatusProcessing, jobID)
}

func (r *jobRepository) Complete(ctx context.Context, jobID string, result json.RawMessage, progress models.Progress) (bool, error) {
	payload, err := json.Marshal(progress)
	if err != nil {
		return false, errors.Wrap(err, "encode progress")
	}
	query := `
		UPDATE reconciliation.jobs
		   SET status       = $1,
		       result       = $2,
		       progress     = $3,
		       completed_at = NOW(),
		       updated_at   = NOW()
		 WHERE id = $4 AND ` + notTerminal
	return r.execAffected(ctx, query, models.JobStatusCompleted, nullJSON(result), payload, jobID)
}

func (r *jobRepository) Fail(ctx context.Context, jobID, message string, progress models.Progress) (bool, error) {
	payload, err := json.Marshal(progress)
	if err != nil {
		return false, errors.Wrap(err, "encode progress")
	}
	query := `
		UPDATE reconciliation.jobs
		   SET status        = $1,
		       error_message = $2,
		       progress      = $3,
		       completed_at  = NOW(),
		       updated_at    = NOW()
		 WHERE id = $4 AND ` + notTerminal
	return r.execAffected(ctx, query, models.JobStatusFailed, message, payload, jobID)
}

func (r *jobRepository) Cancel(ctx context.Context, jobID string) (bool, error) {
	query := `
		UPDATE reconciliation.jobs
		   SET status       = $1,
		       completed_at = NOW(),
		       updated_at   = NOW()
		 WHERE id = $2 AND ` + notTerminal
	return r.execAffected(ctx, query, models.JobStatusCancelled, jobID)
}

func (r *jobRepository) SetConfig(ctx context.Context, jobID string, config json.RawMessage) error {
	const query = `UPDATE reconciliation.jobs SET config = $1, updated_at = NOW() WHERE id = $2`
	_, err := r.db.ExecContext(ctx, query, nullJSON(config), jobID)
	return errors.Wrap(err, "update job config")
}

// DeleteOlderThan removes terminal jobs completed before cutoff.
func (r *jobRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `
		DELETE FROM reconciliation.jobs
		 WHERE status IN ('COMPLETED', 'FAILED', 'CANCELLED')
		   AND completed_at < $1
	`
	res, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, errors.Wrap(err, "delete old jobs")
	}
	return res.RowsAffected()
}

func (r *jobRepository) execAffected(ctx context.Context, query string, args ...interface{}) (bool, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func nullJSON(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
