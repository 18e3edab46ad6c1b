package models

import "time"

type NotificationEvent string

const (
	NotificationEventProgress  NotificationEvent = "job_progress"
	NotificationEventCompleted NotificationEvent = "job_completed"
	NotificationEventFailed    NotificationEvent = "job_failed"
	NotificationEventCancelled NotificationEvent = "job_cancelled"
)

// ProgressEvent is what progress sinks receive for every snapshot.
type ProgressEvent struct {
	JobID     string            `json:"job_id"`
	ClientID  string            `json:"client_id,omitempty"`
	Event     NotificationEvent `json:"event"`
	Status    JobStatus         `json:"status"`
	Progress  Progress          `json:"progress"`
	Timestamp time.Time         `json:"timestamp"`
}
