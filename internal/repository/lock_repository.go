package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/stanstork/reconciler/internal/models"
)

// LockRepository persists advisory locks. Every method takes the caller's
// notion of "now" so expiry is decided by one clock.
type LockRepository interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	DeleteExpiredFor(ctx context.Context, key string, lockType models.LockType, now time.Time) (int64, error)
	FindActive(ctx context.Context, key string, lockType models.LockType, now time.Time) (models.Lock, error)
	// InsertIfNoneActive inserts lock unless an active lock already holds
	// (key, type). It reports whether the row was inserted.
	InsertIfNoneActive(ctx context.Context, lock models.Lock, now time.Time) (bool, error)
	Delete(ctx context.Context, key string, lockType models.LockType) (bool, error)
	Extend(ctx context.Context, key string, lockType models.LockType, extra time.Duration, now time.Time) (bool, error)
	DeleteActiveByUser(ctx context.Context, userID string, now time.Time) (int64, error)
	DeleteActiveByJob(ctx context.Context, jobID string, now time.Time) (int64, error)
}

type lockRepository struct {
	db *sql.DB
}

func NewLockRepository(db *sql.DB) LockRepository {
	return &lockRepository{db: db}
}

func (r *lockRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	const query = `DELETE FROM reconciliation.locks WHERE expires_at <= $1`
	res, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, errors.Wrap(err, "delete expired locks")
	}
	return res.RowsAffected()
}

func (r *lockRepository) DeleteExpiredFor(ctx context.Context, key string, lockType models.LockType, now time.Time) (int64, error) {
	const query = `
		DELETE FROM reconciliation.locks
		 WHERE lock_key = $1 AND lock_type = $2 AND expires_at <= $3
	`
	res, err := r.db.ExecContext(ctx, query, key, lockType, now)
	if err != nil {
		return 0, errors.Wrapf(err, "delete expired %s lock %s", lockType, key)
	}
	return res.RowsAffected()
}

func (r *lockRepository) FindActive(ctx context.Context, key string, lockType models.LockType, now time.Time) (models.Lock, error) {
	const query = `
		SELECT id, lock_key, lock_type, user_id, job_id, acquired_at, expires_at
		  FROM reconciliation.locks
		 WHERE lock_key = $1 AND lock_type = $2 AND expires_at > $3
		 ORDER BY acquired_at
		 LIMIT 1
	`
	var (
		l     models.Lock
		jobID sql.NullString
	)
	err := r.db.QueryRowContext(ctx, query, key, lockType, now).Scan(
		&l.ID,
		&l.Key,
		&l.Type,
		&l.UserID,
		&jobID,
		&l.AcquiredAt,
		&l.ExpiresAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return l, ErrNotFound
		}
		return l, errors.Wrapf(err, "select %s lock %s", lockType, key)
	}
	if jobID.Valid {
		l.JobID = &jobID.String
	}
	return l, nil
}

func (r *lockRepository) InsertIfNoneActive(ctx context.Context, lock models.Lock, now time.Time) (bool, error) {
	const query = `
		INSERT INTO reconciliation.locks (id, lock_key, lock_type, user_id, job_id, acquired_at, expires_at)
		SELECT $1, $2, $3, $4, $5, $6, $7
		 WHERE NOT EXISTS (
			SELECT 1 FROM reconciliation.locks
			 WHERE lock_key = $2 AND lock_type = $3 AND expires_at > $8
		 )
	`
	var jobID interface{}
	if lock.JobID != nil {
		jobID = *lock.JobID
	}
	res, err := r.db.ExecContext(ctx, query,
		lock.ID,
		lock.Key,
		lock.Type,
		lock.UserID,
		jobID,
		lock.AcquiredAt,
		lock.ExpiresAt,
		now,
	)
	if err != nil {
		return false, errors.Wrapf(err, "insert %s lock %s", lock.Type, lock.Key)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *lockRepository) Delete(ctx context.Context, key string, lockType models.LockType) (bool, error) {
	const query = `DELETE FROM reconciliation.locks WHERE lock_key = $1 AND lock_type = $2`
	res, err := r.db.ExecContext(ctx, query, key, lockType)
	if err != nil {
		return false, errors.Wrapf(err, "delete %s lock %s", lockType, key)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *lockRepository) Extend(ctx context.Context, key string, lockType models.LockType, extra time.Duration, now time.Time) (bool, error) {
	const query = `
		UPDATE reconciliation.locks
		   SET expires_at = expires_at + ($1 * INTERVAL '1 second')
		 WHERE lock_key = $2 AND lock_type = $3 AND expires_at > $4
	`
	res, err := r.db.ExecContext(ctx, query, int64(extra/time.Second), key, lockType, now)
	if err != nil {
		return false, errors.Wrapf(err, "extend %s lock %s", lockType, key)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *lockRepository) DeleteActiveByUser(ctx context.Context, userID string, now time.Time) (int64, error) {
	const query = `DELETE FROM reconciliation.locks WHERE user_id = $1 AND expires_at > $2`
	res, err := r.db.ExecContext(ctx, query, userID, now)
	if err != nil {
		return 0, errors.Wrapf(err, "delete locks of user %s", userID)
	}
	return res.RowsAffected()
}

func (r *lockRepository) DeleteActiveByJob(ctx context.Context, jobID string, now time.Time) (int64, error) {
	const query = `DELETE FROM reconciliation.locks WHERE job_id = $1 AND expires_at > $2`
	res, err := r.db.ExecContext(ctx, query, jobID, now)
	if err != nil {
		return 0, errors.Wrapf(err, "delete lock of job %s", jobID)
	}
	return res.RowsAffected()
}
