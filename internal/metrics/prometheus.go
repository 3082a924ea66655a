// Package metrics exposes the prober's Prometheus instruments.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. Each instance owns its registry so
// tests can build as many as they need.
type Metrics struct {
	registry *prometheus.Registry

	// Probe metrics
	ProbesTotal   *prometheus.CounterVec
	ProbeDuration *prometheus.HistogramVec

	// Health metrics
	HealthChecksTotal *prometheus.CounterVec

	// Batch metrics
	BatchRunsTotal  *prometheus.CounterVec
	BatchDuration   *prometheus.HistogramVec
	BatchTimeouts   prometheus.Counter
	ActiveEndpoints prometheus.Gauge

	// Recorder metrics
	RecordsWritten  prometheus.Counter
	RecordsDropped  prometheus.Counter
	RecordErrors    prometheus.Counter
	RecorderBacklog prometheus.Gauge
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		ProbesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prober_probes_total",
				Help: "Total number of probes run",
			},
			[]string{"kind", "outcome"},
		),

		ProbeDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "prober_probe_duration_seconds",
				Help:    "Wall-clock duration of a probe",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		),

		HealthChecksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prober_health_checks_total",
				Help: "Total number of health evaluations",
			},
			[]string{"capability", "outcome"},
		),

		BatchRunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prober_batch_runs_total",
				Help: "Total number of fleet-wide runs",
			},
			[]string{"kind"},
		),

		BatchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "prober_batch_duration_seconds",
				Help:    "Duration of fleet-wide runs",
				Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"kind"},
		),

		BatchTimeouts: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "prober_batch_task_timeouts_total",
				Help: "Tasks still pending when the batch deadline expired",
			},
		),

		ActiveEndpoints: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "prober_active_endpoints",
				Help: "Active endpoints seen by the last fleet-wide run",
			},
		),

		RecordsWritten: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "prober_records_written_total",
				Help: "Records appended to the metrics sink",
			},
		),

		RecordsDropped: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "prober_records_dropped_total",
				Help: "Records dropped because the recorder queue was full or closed",
			},
		),

		RecordErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "prober_record_errors_total",
				Help: "Records the metrics sink failed to append",
			},
		),

		RecorderBacklog: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "prober_recorder_backlog",
				Help: "Records waiting in the recorder queue",
			},
		),
	}
}

// Handler serves this instance's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

func (m *Metrics) ObserveProbe(kind string, ok bool, seconds float64) {
	m.ProbesTotal.WithLabelValues(kind, outcome(ok)).Inc()
	m.ProbeDuration.WithLabelValues(kind).Observe(seconds)
}

func (m *Metrics) ObserveHealth(capability string, ok bool) {
	m.HealthChecksTotal.WithLabelValues(capability, outcome(ok)).Inc()
}

func (m *Metrics) ObserveBatch(kind string, seconds float64, endpoints int, timedOut int) {
	m.BatchRunsTotal.WithLabelValues(kind).Inc()
	m.BatchDuration.WithLabelValues(kind).Observe(seconds)
	m.ActiveEndpoints.Set(float64(endpoints))
	m.BatchTimeouts.Add(float64(timedOut))
}
