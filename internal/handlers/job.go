package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/stanstork/reconciler/internal/jobs"
	"github.com/stanstork/reconciler/internal/models"
	"github.com/stanstork/reconciler/internal/repository"
)

// JobService is the part of the job lifecycle exposed over HTTP.
type JobService interface {
	Get(ctx context.Context, jobID string) (models.Job, error)
	Cancel(ctx context.Context, jobID string) error
}

type JobHandler struct {
	service JobService
	logger  zerolog.Logger
}

func NewJobHandler(service JobService, logger zerolog.Logger) *JobHandler {
	return &JobHandler{
		service: service,
		logger:  logger.With().Str("handler", "job").Logger(),
	}
}

// GetJob returns the persisted job: status, latest progress snapshot,
// result and error message.
func (h *JobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := strings.TrimSpace(mux.Vars(r)["jobID"])
	job, err := h.service.Get(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("failed to load job")
		writeError(w, http.StatusInternalServerError, "failed to load job")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// CancelJob moves a non-terminal job to CANCELLED. A running pipeline is
// not interrupted; its final write is discarded.
func (h *JobHandler) CancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := strings.TrimSpace(mux.Vars(r)["jobID"])
	err := h.service.Cancel(r.Context(), jobID)
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "job not found")
		return
	case errors.Is(err, jobs.ErrTerminal):
		writeError(w, http.StatusConflict, "job already finished")
		return
	default:
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("failed to cancel job")
		writeError(w, http.StatusInternalServerError, "failed to cancel job")
		return
	}

	job, err := h.service.Get(r.Context(), jobID)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]string{"id": jobID, "status": string(models.JobStatusCancelled)})
		return
	}
	writeJSON(w, http.StatusOK, job)
}
