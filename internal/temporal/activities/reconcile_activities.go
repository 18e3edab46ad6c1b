package activities

import (
	"context"
	"time"

	"go.temporal.io/sdk/activity"

	"github.com/stanstork/reconciler/internal/orchestrator"
	"github.com/stanstork/reconciler/internal/temporal"
)

// Runner executes one reconciliation pipeline synchronously.
type Runner interface {
	Run(ctx context.Context, in orchestrator.Input) orchestrator.Result
}

// LockReleaser frees the dataset lock held by a job.
type LockReleaser interface {
	ReleaseLockByJobID(ctx context.Context, jobID string) (bool, error)
}

type Activities struct {
	Runner            Runner
	Locks             LockReleaser
	HeartbeatInterval time.Duration
}

// RunReconciliationActivity runs the pipeline. Pipeline failures are part of
// the returned Result and persisted on the job, so they are not activity errors.
func (a *Activities) RunReconciliationActivity(ctx context.Context, params temporal.ReconciliationParams) (*orchestrator.Result, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("Running reconciliation pipeline", "JobID", params.Input.JobID,
		"BORows", len(params.Input.BO), "PartnerRows", len(params.Input.Partner))

	interval := a.HeartbeatInterval
	if interval <= 0 {
		interval = temporal.HeartbeatInterval
	}
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				activity.RecordHeartbeat(ctx, params.Input.JobID)
			}
		}
	}()

	res := a.Runner.Run(ctx, params.Input)
	if !res.Success {
		logger.Warn("Reconciliation did not succeed", "JobID", res.JobID, "Status", string(res.Status), "error", res.Error)
	}
	return &res, nil
}

func (a *Activities) ReleaseLockActivity(ctx context.Context, jobID string) error {
	logger := activity.GetLogger(ctx)
	released, err := a.Locks.ReleaseLockByJobID(ctx, jobID)
	if err != nil {
		logger.Error("Failed to release job lock", "JobID", jobID, "error", err)
		return err
	}
	logger.Info("Job lock released", "JobID", jobID, "Released", released)
	return nil
}
