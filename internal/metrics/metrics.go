// Package metrics holds the Prometheus collectors of the collector engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "otcollector"

// Run outcomes used as the status label of runs_total.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Metrics holds the collectors, registered on a private registry.
type Metrics struct {
	Registry *prometheus.Registry

	RecordsEmitted        *prometheus.CounterVec
	PagesFetched          *prometheus.CounterVec
	NormalizationFailures *prometheus.CounterVec
	DuplicatesSkipped     *prometheus.CounterVec
	Runs                  *prometheus.CounterVec
	CheckpointCursor      *prometheus.GaugeVec
	RunDuration           *prometheus.HistogramVec
}

// New creates the collectors and registers them, together with the Go and
// process collectors, on a new registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		RecordsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_emitted_total",
			Help:      "Total number of records emitted to the sink.",
		}, []string{"source"}),
		PagesFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_fetched_total",
			Help:      "Total number of API pages fetched.",
		}, []string{"source"}),
		NormalizationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "normalization_failures_total",
			Help:      "Total number of records emitted unenriched after a normalization failure.",
		}, []string{"source"}),
		DuplicatesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicates_skipped_total",
			Help:      "Total number of records skipped as in-run duplicates.",
		}, []string{"source"}),
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Total number of collection runs by outcome.",
		}, []string{"source", "status"}),
		CheckpointCursor: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "checkpoint_cursor",
			Help:      "Last saved checkpoint cursor in unix seconds.",
		}, []string{"source", "cursor"}),
		RunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of collection runs.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		}, []string{"source"}),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.RecordsEmitted,
		m.PagesFetched,
		m.NormalizationFailures,
		m.DuplicatesSkipped,
		m.Runs,
		m.CheckpointCursor,
		m.RunDuration,
	)
	return m
}

// ObserveRun records the outcome and duration of one run.
func (m *Metrics) ObserveRun(source string, elapsed time.Duration, err error) {
	status := StatusSuccess
	if err != nil {
		status = StatusFailure
	}
	m.Runs.WithLabelValues(source, status).Inc()
	m.RunDuration.WithLabelValues(source).Observe(elapsed.Seconds())
}

// SetCursor records a saved checkpoint cursor.
func (m *Metrics) SetCursor(source, cursor string, value int64) {
	m.CheckpointCursor.WithLabelValues(source, cursor).Set(float64(value))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
