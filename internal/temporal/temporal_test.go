package temporal

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/mocks"

	"github.com/stanstork/reconciler/internal/models"
	"github.com/stanstork/reconciler/internal/orchestrator"
)

func TestDispatcher_StartsWorkflowAndResolvesFuture(t *testing.T) {
	c := &mocks.Client{}
	run := &mocks.WorkflowRun{}

	c.On("ExecuteWorkflow", mock.Anything,
		mock.MatchedBy(func(o client.StartWorkflowOptions) bool {
			return o.ID == "reconciliation-job-1" && o.TaskQueue == "recon-q"
		}),
		ReconciliationWorkflowName,
		mock.AnythingOfType("temporal.ReconciliationParams"),
	).Return(run, nil)
	run.On("Get", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		res := args.Get(1).(*orchestrator.Result)
		*res = orchestrator.Result{JobID: "job-1", Success: true, Status: models.JobStatusCompleted}
	}).Return(nil)

	d := NewDispatcher(c, "recon-q", zerolog.Nop())
	f, err := d.Dispatch(context.Background(), orchestrator.Input{JobID: "job-1"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	res, err := f.Wait(ctx)
	require.NoError(t, err)
	assert.True(t, res.Success)
	c.AssertExpectations(t)
}

func TestDispatcher_StartFailure(t *testing.T) {
	c := &mocks.Client{}
	c.On("ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("namespace not found"))

	d := NewDispatcher(c, "", zerolog.Nop())
	f, err := d.Dispatch(context.Background(), orchestrator.Input{JobID: "job-2"})
	require.Error(t, err)
	assert.Nil(t, f)
	assert.Contains(t, err.Error(), "namespace not found")
}

func TestDispatcher_WorkflowErrorBecomesFailedResult(t *testing.T) {
	c := &mocks.Client{}
	run := &mocks.WorkflowRun{}
	c.On("ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(run, nil)
	run.On("Get", mock.Anything, mock.Anything).Return(errors.New("activity timeout"))

	f, err := NewDispatcher(c, "", zerolog.Nop()).Dispatch(context.Background(), orchestrator.Input{JobID: "job-3"})
	require.NoError(t, err)

	res, err := f.Wait(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "job-3", res.JobID)
	assert.Equal(t, "activity timeout", res.Error)
}

type recordingFailer struct {
	jobID   string
	message string
}

func (r *recordingFailer) Fail(_ context.Context, jobID, message string) error {
	r.jobID, r.message = jobID, message
	return nil
}

func TestDispatcher_WorkflowErrorFailsJob(t *testing.T) {
	c := &mocks.Client{}
	run := &mocks.WorkflowRun{}
	c.On("ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(run, nil)
	run.On("Get", mock.Anything, mock.Anything).Return(errors.New("heartbeat timeout"))

	failer := &recordingFailer{}
	f, err := NewDispatcher(c, "", zerolog.Nop(), WithJobFailer(failer)).
		Dispatch(context.Background(), orchestrator.Input{JobID: "job-4"})
	require.NoError(t, err)

	_, err = f.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "job-4", failer.jobID)
	assert.Contains(t, failer.message, "heartbeat timeout")
}

func TestWorkflowID(t *testing.T) {
	assert.Equal(t, "reconciliation-abc", WorkflowID("abc"))
}
