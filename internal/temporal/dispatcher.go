package temporal

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"go.temporal.io/sdk/client"

	"github.com/stanstork/reconciler/internal/orchestrator"
)

// JobFailer marks a job failed when its workflow dies before the pipeline
// could write a terminal state itself.
type JobFailer interface {
	Fail(ctx context.Context, jobID, message string) error
}

// Dispatcher starts one workflow per job. It satisfies orchestrator.Dispatcher.
type Dispatcher struct {
	client    client.Client
	taskQueue string
	jobs      JobFailer
	logger    zerolog.Logger
}

var _ orchestrator.Dispatcher = (*Dispatcher)(nil)

type DispatcherOption func(*Dispatcher)

func WithJobFailer(j JobFailer) DispatcherOption {
	return func(d *Dispatcher) { d.jobs = j }
}

func NewDispatcher(c client.Client, taskQueue string, logger zerolog.Logger, opts ...DispatcherOption) *Dispatcher {
	if taskQueue == "" {
		taskQueue = TaskQueueName
	}
	d := &Dispatcher{
		client:    c,
		taskQueue: taskQueue,
		logger:    logger.With().Str("component", "temporal_dispatcher").Logger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch starts the workflow and resolves the future when it finishes.
func (d *Dispatcher) Dispatch(ctx context.Context, in orchestrator.Input) (*orchestrator.Future, error) {
	opts := client.StartWorkflowOptions{
		ID:        WorkflowID(in.JobID),
		TaskQueue: d.taskQueue,
	}
	run, err := d.client.ExecuteWorkflow(ctx, opts, ReconciliationWorkflowName, ReconciliationParams{Input: in})
	if err != nil {
		return nil, errors.Wrap(err, "start reconciliation workflow")
	}
	d.logger.Info().Str("job_id", in.JobID).Str("workflow_id", opts.ID).Msg("reconciliation workflow started")

	f := orchestrator.NewFuture()
	go func() {
		var res orchestrator.Result
		if err := run.Get(context.Background(), &res); err != nil {
			d.logger.Error().Err(err).Str("job_id", in.JobID).Msg("reconciliation workflow failed")
			res = orchestrator.Result{JobID: in.JobID, Error: err.Error()}
			d.failJob(in.JobID, err)
		}
		f.Complete(res)
	}()
	return f, nil
}

// failJob is a no-op for jobs the pipeline already finished.
func (d *Dispatcher) failJob(jobID string, cause error) {
	if d.jobs == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := d.jobs.Fail(ctx, jobID, "Reconciliation workflow failed: "+cause.Error()); err != nil {
		d.logger.Debug().Err(err).Str("job_id", jobID).Msg("job not marked failed after workflow error")
	}
}
