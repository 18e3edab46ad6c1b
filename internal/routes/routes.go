package routes

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stanstork/reconciler/internal/handlers"
)

// Handlers groups everything the router serves. Nil handlers leave their
// routes unregistered.
type Handlers struct {
	Health          *handlers.HealthHandler
	Jobs            *handlers.JobHandler
	Locks           *handlers.LockHandler
	Progress        *handlers.ProgressHandler
	Reconciliations *handlers.ReconciliationHandler
	Metrics         prometheus.Gatherer
}

// NewRouter sets up the operational API routes.
func NewRouter(h Handlers) *mux.Router {
	router := mux.NewRouter()

	health := h.Health
	if health == nil {
		health = handlers.NewHealthHandler(nil)
	}
	router.HandleFunc("/health", health.HealthCheck).Methods(http.MethodGet)

	if h.Metrics != nil {
		router.Handle("/metrics", promhttp.HandlerFor(h.Metrics, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	api := router.PathPrefix("/api").Subrouter()
	if h.Reconciliations != nil {
		api.HandleFunc("/reconciliations", h.Reconciliations.Submit).Methods(http.MethodPost)
	}
	if h.Jobs != nil {
		api.HandleFunc("/jobs/{jobID}", h.Jobs.GetJob).Methods(http.MethodGet)
		api.HandleFunc("/jobs/{jobID}/cancel", h.Jobs.CancelJob).Methods(http.MethodPost)
	}
	if h.Progress != nil {
		api.HandleFunc("/jobs/{jobID}/events", h.Progress.Stream).Methods(http.MethodGet)
	}
	if h.Locks != nil {
		api.HandleFunc("/locks/{type}/{key}", h.Locks.GetLock).Methods(http.MethodGet)
	}
	return router
}
