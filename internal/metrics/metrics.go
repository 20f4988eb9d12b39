// Package metrics exposes ingest telemetry as Prometheus metrics. Metrics
// implements core.Observer so the pipeline reports into it directly.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JonMunkholm/datastorer/internal/core"
)

const namespace = "datastorer"

// Metrics holds the ingest collectors on a private registry.
type Metrics struct {
	RunsTotal     *prometheus.CounterVec
	RecordsTotal  prometheus.Counter
	BatchesTotal  *prometheus.CounterVec
	SkippedTotal  *prometheus.CounterVec
	ActiveRuns    prometheus.Gauge
	RunDuration   prometheus.Histogram
	BatchDuration prometheus.Histogram

	registry *prometheus.Registry
}

var _ core.Observer = (*Metrics)(nil)

// New creates and registers all collectors, plus Go runtime and process
// collectors.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Resource runs by outcome code (ok or an error code)",
		},
		[]string{"outcome"},
	)

	m.RecordsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_uploaded_total",
			Help:      "Records committed to the datastore",
		},
	)

	m.BatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "datastore_create calls by status",
		},
		[]string{"status"}, // "success", "error"
	)

	m.SkippedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resources_skipped_total",
			Help:      "Resources not ingested, by reason",
		},
		[]string{"reason"},
	)

	m.ActiveRuns = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "runs_active",
			Help:      "Resource runs in progress",
		},
	)

	m.RunDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Time to ingest one resource end to end",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)

	m.BatchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Time of one datastore_create call",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)

	m.registry.MustRegister(
		m.RunsTotal,
		m.RecordsTotal,
		m.BatchesTotal,
		m.SkippedTotal,
		m.ActiveRuns,
		m.RunDuration,
		m.BatchDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RunStarted implements core.Observer.
func (m *Metrics) RunStarted(string) {
	m.ActiveRuns.Inc()
}

// RunFinished implements core.Observer.
func (m *Metrics) RunFinished(_ string, _ int, d time.Duration, err error) {
	m.ActiveRuns.Dec()
	m.RunDuration.Observe(d.Seconds())
	m.RunsTotal.WithLabelValues(outcome(err)).Inc()
}

// BatchSent implements core.Observer.
func (m *Metrics) BatchSent(records int, d time.Duration, err error) {
	m.BatchDuration.Observe(d.Seconds())
	if err != nil {
		m.BatchesTotal.WithLabelValues("error").Inc()
		return
	}
	m.BatchesTotal.WithLabelValues("success").Inc()
	m.RecordsTotal.Add(float64(records))
}

// ResourceSkipped implements core.Observer.
func (m *Metrics) ResourceSkipped(reason string) {
	m.SkippedTotal.WithLabelValues(reason).Inc()
}

// outcome keeps label cardinality bounded by using the error code.
func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return core.MapError(err).Code
}
