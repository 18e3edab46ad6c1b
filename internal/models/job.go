package models

import (
	"encoding/json"
	"time"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusFailed     JobStatus = "FAILED"
	JobStatusCancelled  JobStatus = "CANCELLED"
)

// IsTerminal reports whether no further transition is allowed out of s.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// CanTransition reports whether the job state machine allows s -> next.
func (s JobStatus) CanTransition(next JobStatus) bool {
	if s.IsTerminal() {
		return false
	}
	switch next {
	case JobStatusProcessing:
		return s == JobStatusPending || s == JobStatusProcessing
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// Progress is the latest snapshot of a running job. Processed and Total are
// reserved for granular row counts.
type Progress struct {
	Percentage int    `json:"percentage"`
	Message    string `json:"message"`
	Processed  int64  `json:"processed"`
	Total      int64  `json:"total"`
}

type Job struct {
	ID              string          `json:"id" db:"id"`
	ClientID        string          `json:"client_id" db:"client_id"`
	Status          JobStatus       `json:"status" db:"status"`
	BOFilePath      string          `json:"bo_file_path" db:"bo_file_path"`
	PartnerFilePath string          `json:"partner_file_path" db:"partner_file_path"`
	Config          json.RawMessage `json:"config,omitempty" db:"config"`
	Progress        *Progress       `json:"progress,omitempty" db:"progress"`
	Result          json.RawMessage `json:"result,omitempty" db:"result"`
	ErrorMessage    *string         `json:"error_message,omitempty" db:"error_message"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty" db:"completed_at"`
}

// JobConfig is the serialized configuration a reconciliation ran with.
type JobConfig struct {
	LogicType         ReconciliationLogicType `json:"logic_type"`
	BOKeyColumn       string                  `json:"bo_key_column"`
	PartnerKeyColumn  string                  `json:"partner_key_column"`
	Treatments        []string                `json:"treatments,omitempty"`
	Rules             []CorrespondenceRule    `json:"rules"`
	ComparisonColumns []ComparisonColumn      `json:"comparison_columns"`
	KeyConfidence     float64                 `json:"key_confidence"`
	FallbackKey       bool                    `json:"fallback_key,omitempty"`
}
