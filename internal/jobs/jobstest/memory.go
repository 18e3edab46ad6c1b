// Package jobstest provides an in-memory job repository for tests.
package jobstest

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/stanstork/reconciler/internal/models"
	"github.com/stanstork/reconciler/internal/repository"
)

// Repository follows the same terminal guard as the SQL repository and, like
// database/sql, refuses to run with a cancelled context.
type Repository struct {
	mu   sync.Mutex
	jobs map[string]models.Job
	// History records every status a job went through, in order.
	History map[string][]models.JobStatus
	Now     func() time.Time
}

func NewRepository() *Repository {
	return &Repository{
		jobs:    map[string]models.Job{},
		History: map[string][]models.JobStatus{},
		Now:     time.Now,
	}
}

var _ repository.JobRepository = (*Repository)(nil)

func (r *Repository) Create(ctx context.Context, job models.Job) (models.Job, error) {
	if err := ctx.Err(); err != nil {
		return models.Job{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.Now()
	job.Status = models.JobStatusPending
	job.CreatedAt, job.UpdatedAt = now, now
	r.jobs[job.ID] = job
	r.History[job.ID] = []models.JobStatus{job.Status}
	return job, nil
}

func (r *Repository) Get(ctx context.Context, jobID string) (models.Job, error) {
	if err := ctx.Err(); err != nil {
		return models.Job{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return models.Job{}, repository.ErrNotFound
	}
	return job, nil
}

func (r *Repository) transition(jobID string, next models.JobStatus, apply func(*models.Job)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	if !ok || !job.Status.CanTransition(next) {
		return false
	}
	apply(&job)
	if job.Status != next {
		r.History[jobID] = append(r.History[jobID], next)
	}
	job.Status = next
	job.UpdatedAt = r.Now()
	if next.IsTerminal() {
		t := job.UpdatedAt
		job.CompletedAt = &t
	}
	r.jobs[jobID] = job
	return true
}

func (r *Repository) UpdateProgress(ctx context.Context, jobID string, progress models.Progress) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return r.transition(jobID, models.JobStatusProcessing, func(j *models.Job) {
		p := progress
		j.Progress = &p
	}), nil
}

func (r *Repository) Complete(ctx context.Context, jobID string, result json.RawMessage, progress models.Progress) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return r.transition(jobID, models.JobStatusCompleted, func(j *models.Job) {
		p := progress
		j.Result = result
		j.Progress = &p
	}), nil
}

func (r *Repository) Fail(ctx context.Context, jobID, message string, progress models.Progress) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return r.transition(jobID, models.JobStatusFailed, func(j *models.Job) {
		m, p := message, progress
		j.ErrorMessage = &m
		j.Progress = &p
	}), nil
}

func (r *Repository) Cancel(ctx context.Context, jobID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return r.transition(jobID, models.JobStatusCancelled, func(*models.Job) {}), nil
}

func (r *Repository) SetConfig(ctx context.Context, jobID string, config json.RawMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return repository.ErrNotFound
	}
	job.Config = config
	r.jobs[jobID] = job
	return nil
}

func (r *Repository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, job := range r.jobs {
		if job.Status.IsTerminal() && job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
			delete(r.jobs, id)
			n++
		}
	}
	return n, nil
}
