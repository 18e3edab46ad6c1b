package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/stanstork/reconciler/internal/models"
	"github.com/stanstork/reconciler/internal/repository"
)

type LockInspector interface {
	Holder(ctx context.Context, key string, lockType models.LockType) (models.Lock, error)
}

type LockHandler struct {
	locks  LockInspector
	logger zerolog.Logger
}

func NewLockHandler(locks LockInspector, logger zerolog.Logger) *LockHandler {
	return &LockHandler{
		locks:  locks,
		logger: logger.With().Str("handler", "lock").Logger(),
	}
}

// GetLock reports the active lock on (type, key), or 404 when none is active.
func (h *LockHandler) GetLock(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	lockType := models.LockType(strings.ToUpper(vars["type"]))
	if !lockType.Valid() {
		writeError(w, http.StatusBadRequest, "unknown lock type")
		return
	}
	key := vars["key"]

	l, err := h.locks.Holder(r.Context(), key, lockType)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no active lock")
			return
		}
		h.logger.Error().Err(err).Str("lock_key", key).Msg("failed to read lock")
		writeError(w, http.StatusInternalServerError, "failed to read lock")
		return
	}
	writeJSON(w, http.StatusOK, l)
}
