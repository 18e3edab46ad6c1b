// Package jobs owns the reconciliation job lifecycle:
// PENDING -> PROCESSING -> COMPLETED | FAILED | CANCELLED.
package jobs

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/stanstork/reconciler/internal/metrics"
	"github.com/stanstork/reconciler/internal/models"
	"github.com/stanstork/reconciler/internal/notification"
	"github.com/stanstork/reconciler/internal/repository"
)

// ErrTerminal is returned when a write targets a job that already reached
// a terminal status. The write has no effect.
var ErrTerminal = errors.New("job already in a terminal state")

type Service struct {
	repo     repository.JobRepository
	notifier notification.Service
	metrics  *metrics.Metrics
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(repo repository.JobRepository, notifier notification.Service, m *metrics.Metrics, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		notifier: notifier,
		metrics:  m,
		logger:   logger.With().Str("component", "job_service").Logger(),
		now:      time.Now,
	}
}

// NewJob describes a job to create. An empty ID is generated.
type NewJob struct {
	ID              string
	ClientID        string
	BOFilePath      string
	PartnerFilePath string
}

// Create persists a PENDING job.
func (s *Service) Create(ctx context.Context, in NewJob) (models.Job, error) {
	id := in.ID
	if id == "" {
		id = uuid.NewString()
	}
	job, err := s.repo.Create(ctx, models.Job{
		ID:              id,
		ClientID:        in.ClientID,
		BOFilePath:      in.BOFilePath,
		PartnerFilePath: in.PartnerFilePath,
	})
	if err != nil {
		return job, errors.Wrap(err, "create job")
	}
	s.logger.Info().Str("job_id", job.ID).Str("client_id", job.ClientID).Msg("job created")
	return job, nil
}

func (s *Service) Get(ctx context.Context, jobID string) (models.Job, error) {
	return s.repo.Get(ctx, jobID)
}

// UpdateProgress overwrites the job's progress snapshot. The first update
// moves the job to PROCESSING.
func (s *Service) UpdateProgress(ctx context.Context, jobID string, percentage int, message string) error {
	p := models.Progress{Percentage: clampPercentage(percentage), Message: message}
	changed, err := s.repo.UpdateProgress(ctx, jobID, p)
	if err != nil {
		return errors.Wrapf(err, "update progress of job %s", jobID)
	}
	if !changed {
		return s.unchanged(ctx, jobID)
	}
	s.publish(ctx, jobID, models.JobStatusProcessing, p)
	return nil
}

// CompletedMessage is the progress message of a successful job.
const CompletedMessage = "Reconciliation completed"

// Complete stores result, marks the job COMPLETED and sets progress to 100%.
func (s *Service) Complete(ctx context.Context, jobID string, result interface{}) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return errors.Wrap(err, "encode job result")
	}
	p := models.Progress{Percentage: 100, Message: CompletedMessage}
	changed, err := s.repo.Complete(ctx, jobID, payload, p)
	if err != nil {
		return errors.Wrapf(err, "complete job %s", jobID)
	}
	if !changed {
		return s.unchanged(ctx, jobID)
	}
	s.logger.Info().Str("job_id", jobID).Msg("job completed")
	s.publish(ctx, jobID, models.JobStatusCompleted, p)
	return nil
}

// Fail marks the job FAILED with message and resets progress to 0% with
// the same message.
func (s *Service) Fail(ctx context.Context, jobID, message string) error {
	p := models.Progress{Percentage: 0, Message: message}
	changed, err := s.repo.Fail(ctx, jobID, message, p)
	if err != nil {
		return errors.Wrapf(err, "fail job %s", jobID)
	}
	if !changed {
		return s.unchanged(ctx, jobID)
	}
	s.logger.Warn().Str("job_id", jobID).Str("reason", message).Msg("job failed")
	s.publish(ctx, jobID, models.JobStatusFailed, p)
	return nil
}

// Cancel is an external terminal transition. It does not interrupt a
// running pipeline; the pipeline's own terminal write becomes a no-op.
func (s *Service) Cancel(ctx context.Context, jobID string) error {
	changed, err := s.repo.Cancel(ctx, jobID)
	if err != nil {
		return errors.Wrapf(err, "cancel job %s", jobID)
	}
	if !changed {
		return s.unchanged(ctx, jobID)
	}
	s.logger.Info().Str("job_id", jobID).Msg("job cancelled")
	s.publish(ctx, jobID, models.JobStatusCancelled, models.Progress{Message: "cancelled"})
	return nil
}

// unchanged explains a guarded write that matched no row: the job is either
// unknown (repository.ErrNotFound) or already terminal (ErrTerminal).
func (s *Service) unchanged(ctx context.Context, jobID string) error {
	if _, err := s.repo.Get(ctx, jobID); err != nil {
		return err
	}
	return ErrTerminal
}

// RecordConfig stores the resolved reconciliation configuration for diagnostics.
func (s *Service) RecordConfig(ctx context.Context, jobID string, cfg models.JobConfig) error {
	payload, err := json.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "encode job config")
	}
	return s.repo.SetConfig(ctx, jobID, payload)
}

// CleanupOlderThan deletes terminal jobs completed more than retention ago.
func (s *Service) CleanupOlderThan(ctx context.Context, retention time.Duration) (int64, error) {
	n, err := s.repo.DeleteOlderThan(ctx, s.now().Add(-retention))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info().Int64("deleted", n).Dur("retention", retention).Msg("old jobs cleaned up")
	}
	return n, nil
}

func (s *Service) publish(ctx context.Context, jobID string, status models.JobStatus, p models.Progress) {
	if status.IsTerminal() {
		s.metrics.JobFinishedNow(string(status))
	}
	if s.notifier == nil {
		return
	}
	s.notifier.Publish(ctx, models.ProgressEvent{
		JobID:     jobID,
		Event:     notification.EventFor(status),
		Status:    status,
		Progress:  p,
		Timestamp: s.now().UTC(),
	})
}

func clampPercentage(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
