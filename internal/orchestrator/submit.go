package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/stanstork/reconciler/internal/jobs"
	"github.com/stanstork/reconciler/internal/lock"
	"github.com/stanstork/reconciler/internal/models"
)

// ErrBusy means the same datasets are already being reconciled for the client.
var ErrBusy = errors.New("reconciliation already running for these datasets")

// Submission is a reconciliation request coming from an outer surface.
type Submission struct {
	ClientID        string
	UserID          string
	BOFilePath      string
	PartnerFilePath string
	BO              []models.Row
	Partner         []models.Row
	BOColumns       []string
	PartnerColumns  []string
	PartnerFileName string
	ModelID         string
}

// LockKey identifies the datasets of s for locking.
func LockKey(s Submission) string {
	h := sha256.New()
	h.Write([]byte(s.BOFilePath))
	h.Write([]byte{0})
	h.Write([]byte(s.PartnerFilePath))
	return "reconciliation:" + s.ClientID + ":" + hex.EncodeToString(h.Sum(nil))[:16]
}

// Submit locks the datasets, creates the job and dispatches it. The lock is
// released when the dispatched run resolves.
func (o *Orchestrator) Submit(ctx context.Context, s Submission) (models.Job, *Future, error) {
	jobID := uuid.NewString()
	key := LockKey(s)
	log := o.logger.With().Str("job_id", jobID).Str("lock_key", key).Logger()

	ok, err := o.locks.Acquire(ctx, lock.Request{
		Key:     key,
		Type:    models.LockTypeJob,
		OwnerID: s.UserID,
		JobID:   jobID,
		TTL:     o.cfg.LockTTL,
	})
	if err != nil {
		return models.Job{}, nil, errors.Wrap(err, "acquire reconciliation lock")
	}
	if !ok {
		return models.Job{}, nil, ErrBusy
	}

	job, err := o.jobs.Create(ctx, jobs.NewJob{
		ID:              jobID,
		ClientID:        s.ClientID,
		BOFilePath:      s.BOFilePath,
		PartnerFilePath: s.PartnerFilePath,
	})
	if err != nil {
		o.releaseJobLock(jobID)
		return models.Job{}, nil, err
	}

	f, err := o.dispatcher.Dispatch(ctx, Input{
		JobID:           jobID,
		BO:              s.BO,
		Partner:         s.Partner,
		BOColumns:       s.BOColumns,
		PartnerColumns:  s.PartnerColumns,
		PartnerFileName: s.PartnerFileName,
		ModelID:         s.ModelID,
	})
	if err != nil {
		log.Error().Err(err).Msg("dispatch failed")
		o.fail(ctx, jobID, errors.Wrap(err, "dispatch").Error(), nil)
		o.releaseJobLock(jobID)
		return job, nil, errors.Wrap(err, "dispatch reconciliation")
	}

	go func() {
		<-f.Done()
		o.releaseJobLock(jobID)
	}()
	log.Info().Str("client_id", s.ClientID).Msg("reconciliation submitted")
	return job, f, nil
}

func (o *Orchestrator) releaseJobLock(jobID string) {
	ctx, cancel := context.WithTimeout(context.Background(), terminalWriteTimeout)
	defer cancel()
	if _, err := o.locks.ReleaseLockByJobID(ctx, jobID); err != nil {
		o.logger.Warn().Err(err).Str("job_id", jobID).Msg("could not release job lock")
	}
}
