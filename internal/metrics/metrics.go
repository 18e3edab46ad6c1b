// Package metrics holds the Prometheus collectors of the reconciliation service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	JobsFinished     *prometheus.CounterVec
	PipelineDuration prometheus.Histogram
	KeyConfidence    prometheus.Histogram
	LockAcquisitions *prometheus.CounterVec
	LocksSwept       prometheus.Counter
	JobsCleaned      prometheus.Counter
	QueueDepth       prometheus.Gauge
}

// New registers the collectors on reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		JobsFinished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "reconciliation_jobs_finished_total",
			Help: "Reconciliation jobs that reached a terminal status",
		}, []string{"status"}),
		PipelineDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "reconciliation_pipeline_duration_seconds",
			Help:    "Wall time of one reconciliation pipeline run",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 14),
		}),
		KeyConfidence: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "reconciliation_key_confidence",
			Help:    "Overall confidence of key discovery",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		LockAcquisitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "reconciliation_lock_acquisitions_total",
			Help: "Lock acquisition attempts by type and outcome",
		}, []string{"type", "outcome"}),
		LocksSwept: f.NewCounter(prometheus.CounterOpts{
			Name: "reconciliation_locks_swept_total",
			Help: "Expired locks removed by the sweeper",
		}),
		JobsCleaned: f.NewCounter(prometheus.CounterOpts{
			Name: "reconciliation_jobs_cleaned_total",
			Help: "Terminal jobs removed after the retention period",
		}),
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "reconciliation_queue_depth",
			Help: "Reconciliations waiting for a worker",
		}),
	}
}

// The helpers below accept a nil receiver so components can run unmetered.

func (m *Metrics) JobFinishedNow(status string) {
	if m == nil {
		return
	}
	m.JobsFinished.WithLabelValues(status).Inc()
}

func (m *Metrics) ObservePipeline(started time.Time) {
	if m == nil {
		return
	}
	m.PipelineDuration.Observe(time.Since(started).Seconds())
}

func (m *Metrics) ObserveKeyConfidence(c float64) {
	if m == nil {
		return
	}
	m.KeyConfidence.Observe(c)
}

func (m *Metrics) LockAttempt(lockType string, acquired bool) {
	if m == nil {
		return
	}
	outcome := "refused"
	if acquired {
		outcome = "acquired"
	}
	m.LockAcquisitions.WithLabelValues(lockType, outcome).Inc()
}

func (m *Metrics) Swept(locks, jobs int64) {
	if m == nil {
		return
	}
	m.LocksSwept.Add(float64(locks))
	m.JobsCleaned.Add(float64(jobs))
}

func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}
