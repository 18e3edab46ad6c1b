package temporal

import (
	"time"

	"github.com/stanstork/reconciler/internal/orchestrator"
)

// TaskQueueName is the default task queue for reconciliation workflows.
const TaskQueueName = "RECONCILIATION"

// WorkflowIDPrefix prefixes the job id to form the workflow id, so one job
// maps to at most one running workflow.
const WorkflowIDPrefix = "reconciliation-"

// ReconciliationWorkflowName is the registered name of the workflow.
const ReconciliationWorkflowName = "ReconciliationWorkflow"

// DefaultActivityTimeout bounds one pipeline run.
const DefaultActivityTimeout = 30 * time.Minute

// HeartbeatInterval is how often a running pipeline activity heartbeats.
const HeartbeatInterval = 10 * time.Second

// Config is the connection and queue configuration.
type Config struct {
	HostPort  string `mapstructure:"host_port"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

// ReconciliationParams is the workflow input. Rows travel in the payload,
// which is subject to the server's blob size limit.
type ReconciliationParams struct {
	Input orchestrator.Input
}

func WorkflowID(jobID string) string {
	return WorkflowIDPrefix + jobID
}
