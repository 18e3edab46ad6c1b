package models

import "time"

type LockType string

const (
	LockTypeGlobal LockType = "GLOBAL"
	LockTypeUser   LockType = "USER"
	LockTypeJob    LockType = "JOB"
	LockTypeUpload LockType = "UPLOAD"
)

// Valid reports whether t is one of the known lock types.
func (t LockType) Valid() bool {
	switch t {
	case LockTypeGlobal, LockTypeUser, LockTypeJob, LockTypeUpload:
		return true
	}
	return false
}

type Lock struct {
	ID         string    `json:"id" db:"id"`
	Key        string    `json:"key" db:"lock_key"`
	Type       LockType  `json:"type" db:"lock_type"`
	UserID     string    `json:"user_id" db:"user_id"`
	JobID      *string   `json:"job_id,omitempty" db:"job_id"`
	AcquiredAt time.Time `json:"acquired_at" db:"acquired_at"`
	ExpiresAt  time.Time `json:"expires_at" db:"expires_at"`
}

// ActiveAt reports whether the lock has not yet expired at now.
func (l Lock) ActiveAt(now time.Time) bool {
	return now.Before(l.ExpiresAt)
}
