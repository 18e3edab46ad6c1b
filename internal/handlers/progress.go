package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/stanstork/reconciler/internal/models"
	"github.com/stanstork/reconciler/internal/notification"
	"github.com/stanstork/reconciler/internal/repository"
)

// ProgressSubscriber hands out per-job progress streams.
type ProgressSubscriber interface {
	Subscribe(jobID string) (<-chan models.ProgressEvent, func())
}

// JobReader reads the stored state of a job.
type JobReader interface {
	Get(ctx context.Context, jobID string) (models.Job, error)
}

type ProgressHandler struct {
	subscriber ProgressSubscriber
	jobs       JobReader
	keepAlive  time.Duration
	logger     zerolog.Logger
}

func NewProgressHandler(subscriber ProgressSubscriber, jobs JobReader, logger zerolog.Logger) *ProgressHandler {
	return &ProgressHandler{
		subscriber: subscriber,
		jobs:       jobs,
		keepAlive:  15 * time.Second,
		logger:     logger.With().Str("handler", "progress").Logger(),
	}
}

// Stream pushes a job's progress events as server-sent events until the job
// reaches a terminal status or the client goes away. A job that is already
// terminal, or becomes so without its event reaching the subscriber, gets its
// stored snapshot as the last event.
func (h *ProgressHandler) Stream(w http.ResponseWriter, r *http.Request) {
	jobID := strings.TrimSpace(mux.Vars(r)["jobID"])
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	events, cancel := h.subscriber.Subscribe(jobID)
	defer cancel()

	job, err := h.jobs.Get(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("failed to load job for progress stream")
		writeError(w, http.StatusInternalServerError, "failed to load job")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	if job.Status.IsTerminal() {
		h.writeEvent(w, flusher, snapshot(job))
		return
	}

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if job, err := h.jobs.Get(r.Context(), jobID); err == nil && job.Status.IsTerminal() {
				h.writeEvent(w, flusher, snapshot(job))
				return
			}
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case evt, open := <-events:
			if !open {
				return
			}
			h.writeEvent(w, flusher, evt)
			if evt.Status.IsTerminal() {
				return
			}
		}
	}
}

func (h *ProgressHandler) writeEvent(w http.ResponseWriter, flusher http.Flusher, evt models.ProgressEvent) {
	payload, err := json.Marshal(evt)
	if err != nil {
		h.logger.Error().Err(err).Str("job_id", evt.JobID).Msg("failed to encode progress event")
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Event, payload)
	flusher.Flush()
}

func snapshot(job models.Job) models.ProgressEvent {
	evt := models.ProgressEvent{
		JobID:     job.ID,
		ClientID:  job.ClientID,
		Event:     notification.EventFor(job.Status),
		Status:    job.Status,
		Timestamp: job.UpdatedAt,
	}
	if job.Progress != nil {
		evt.Progress = *job.Progress
	}
	return evt
}
