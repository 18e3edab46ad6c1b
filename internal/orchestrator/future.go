package orchestrator

import (
	"context"
	"sync"

	"github.com/stanstork/reconciler/internal/models"
)

// Result is the outcome of one pipeline run. Failures are carried here,
// never as an error of the entry point.
type Result struct {
	JobID     string                     `json:"job_id"`
	Success   bool                       `json:"success"`
	Status    models.JobStatus           `json:"status"`
	Error     string                     `json:"error,omitempty"`
	Discovery *models.KeyDiscoveryResult `json:"discovery,omitempty"`
	Response  *models.MatchResponse      `json:"response,omitempty"`
}

// Future resolves once with the Result of a dispatched pipeline.
type Future struct {
	done   chan struct{}
	once   sync.Once
	result Result
}

func NewFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Complete resolves the future. Later calls are ignored.
func (f *Future) Complete(r Result) {
	f.once.Do(func() {
		f.result = r
		close(f.done)
	})
}

func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the result is available or ctx ends.
func (f *Future) Wait(ctx context.Context) (Result, error) {
	select {
	case <-f.done:
		return f.result, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}
