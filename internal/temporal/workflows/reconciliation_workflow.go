package workflows

import (
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/stanstork/reconciler/internal/orchestrator"
	rtemporal "github.com/stanstork/reconciler/internal/temporal"
	"github.com/stanstork/reconciler/internal/temporal/activities"
)

// ReconciliationWorkflow runs one pipeline and always releases the job's
// dataset lock afterwards, even when the workflow is cancelled.
func ReconciliationWorkflow(ctx workflow.Context, params rtemporal.ReconciliationParams) (*orchestrator.Result, error) {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: rtemporal.DefaultActivityTimeout,
		HeartbeatTimeout:    3 * rtemporal.HeartbeatInterval,
		// The pipeline writes terminal job states; a retry would only find
		// the job already terminal.
		RetryPolicy: &temporal.RetryPolicy{MaximumAttempts: 1},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	logger := workflow.GetLogger(ctx)
	jobID := params.Input.JobID
	logger.Info("Starting reconciliation workflow", "JobID", jobID)

	var a *activities.Activities

	defer func() {
		releaseCtx, _ := workflow.NewDisconnectedContext(ctx)
		releaseCtx = workflow.WithActivityOptions(releaseCtx, workflow.ActivityOptions{
			StartToCloseTimeout: time.Minute,
			RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 3},
		})
		if err := workflow.ExecuteActivity(releaseCtx, a.ReleaseLockActivity, jobID).Get(releaseCtx, nil); err != nil {
			logger.Error("Failed to release job lock.", "JobID", jobID, "error", err)
		}
	}()

	var res orchestrator.Result
	if err := workflow.ExecuteActivity(ctx, a.RunReconciliationActivity, params).Get(ctx, &res); err != nil {
		logger.Error("Reconciliation activity failed.", "JobID", jobID, "error", err)
		return nil, err
	}

	logger.Info("Reconciliation workflow finished.", "JobID", jobID, "Success", res.Success)
	return &res, nil
}

// Register adds the workflow and its activities to a worker.
func Register(r worker.Registry, acts *activities.Activities) {
	r.RegisterWorkflowWithOptions(ReconciliationWorkflow, workflow.RegisterOptions{Name: rtemporal.ReconciliationWorkflowName})
	r.RegisterActivityWithOptions(acts.RunReconciliationActivity, activity.RegisterOptions{Name: "RunReconciliationActivity"})
	r.RegisterActivityWithOptions(acts.ReleaseLockActivity, activity.RegisterOptions{Name: "ReleaseLockActivity"})
}
