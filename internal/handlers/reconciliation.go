package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/stanstork/reconciler/internal/models"
	"github.com/stanstork/reconciler/internal/orchestrator"
)

// Submitter starts a locked reconciliation.
type Submitter interface {
	Submit(ctx context.Context, s orchestrator.Submission) (models.Job, *orchestrator.Future, error)
}

type ReconciliationHandler struct {
	submitter Submitter
	maxBytes  int64
	logger    zerolog.Logger
}

func NewReconciliationHandler(submitter Submitter, logger zerolog.Logger) *ReconciliationHandler {
	return &ReconciliationHandler{
		submitter: submitter,
		maxBytes:  64 << 20,
		logger:    logger.With().Str("handler", "reconciliation").Logger(),
	}
}

type submitRequest struct {
	ClientID        string         `json:"client_id"`
	UserID          string         `json:"user_id"`
	BOFilePath      string         `json:"bo_file_path"`
	PartnerFilePath string         `json:"partner_file_path"`
	PartnerFileName string         `json:"partner_file_name"`
	ModelID         string         `json:"model_id"`
	BO              models.Dataset `json:"bo"`
	Partner         models.Dataset `json:"partner"`
}

// Submit accepts already-parsed rows and answers 202 with the PENDING job.
// Progress is then polled on the job or streamed from its events endpoint.
func (h *ReconciliationHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var payload submitRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.maxBytes)).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	if strings.TrimSpace(payload.ClientID) == "" {
		writeError(w, http.StatusBadRequest, "client_id is required")
		return
	}
	if len(payload.BO.Rows) == 0 || len(payload.Partner.Rows) == 0 {
		writeError(w, http.StatusBadRequest, "both datasets need at least one row")
		return
	}

	job, _, err := h.submitter.Submit(r.Context(), orchestrator.Submission{
		ClientID:        payload.ClientID,
		UserID:          payload.UserID,
		BOFilePath:      payload.BOFilePath,
		PartnerFilePath: payload.PartnerFilePath,
		BO:              payload.BO.Rows,
		Partner:         payload.Partner.Rows,
		BOColumns:       payload.BO.Columns,
		PartnerColumns:  payload.Partner.Columns,
		PartnerFileName: payload.PartnerFileName,
		ModelID:         payload.ModelID,
	})
	switch {
	case err == nil:
	case errors.Is(err, orchestrator.ErrBusy):
		writeError(w, http.StatusConflict, err.Error())
		return
	case job.ID != "":
		// Created but not dispatched; the job already carries the failure.
		h.logger.Error().Err(err).Str("job_id", job.ID).Msg("reconciliation dispatch failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "dispatch failed", "job_id": job.ID})
		return
	default:
		h.logger.Error().Err(err).Str("client_id", payload.ClientID).Msg("reconciliation submit failed")
		writeError(w, http.StatusInternalServerError, "failed to submit reconciliation")
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}
