package telemetry

import (
	"io"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// Metrics collects Prometheus metrics for the adapter. A nil *Metrics or a
// disabled config is a no-op, so call sites never have to guard.
type Metrics struct {
	config MetricsConfig

	jobsStarted   *prometheus.CounterVec
	jobsCompleted *prometheus.CounterVec
	jobDuration   *prometheus.HistogramVec

	eventsEmitted *prometheus.CounterVec
	bytesWritten  prometheus.Counter

	registry *prometheus.Registry
}

// NewMetrics creates a metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	registry := prometheus.NewRegistry()
	namespace := cfg.Namespace

	m := &Metrics{
		config:   cfg,
		registry: registry,

		jobsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "jobs_started_total",
				Help:      "Total number of jobs started",
			},
			[]string{"kind"},
		),
		jobsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "jobs_completed_total",
				Help:      "Total number of jobs completed",
			},
			[]string{"exit_code"},
		),
		jobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "job_duration_seconds",
				Help:      "Duration of job execution in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"exit_code"},
		),
		eventsEmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_emitted_total",
				Help:      "Total number of events written to the stream",
			},
			[]string{"event"},
		),
		bytesWritten: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "envelope_bytes_written_total",
				Help:      "Total envelope bytes written to the stream",
			},
		),
	}

	for _, c := range []prometheus.Collector{
		m.jobsStarted, m.jobsCompleted, m.jobDuration, m.eventsEmitted, m.bytesWritten,
	} {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// WriteText dumps the collected metrics in the Prometheus text exposition
// format. This is how a one-shot run surfaces its counters: there is no
// long-lived process to scrape. A nil or disabled collector writes nothing.
func (m *Metrics) WriteText(w io.Writer) error {
	if m == nil || !m.config.Enabled {
		return nil
	}
	families, err := m.registry.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}

// Registry exposes the underlying registry for scraping or dumping.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// JobStarted records a job start for the given document kind.
func (m *Metrics) JobStarted(kind string) {
	if m == nil || !m.config.Enabled {
		return
	}
	m.jobsStarted.WithLabelValues(kind).Inc()
}

// JobCompleted records a finished job with its exit code and duration.
func (m *Metrics) JobCompleted(code int, d time.Duration) {
	if m == nil || !m.config.Enabled {
		return
	}
	label := strconv.Itoa(code)
	m.jobsCompleted.WithLabelValues(label).Inc()
	m.jobDuration.WithLabelValues(label).Observe(d.Seconds())
}

// EventEmitted records one envelope written to the stream.
func (m *Metrics) EventEmitted(eventType string, bytes int) {
	if m == nil || !m.config.Enabled {
		return
	}
	m.eventsEmitted.WithLabelValues(eventType).Inc()
	m.bytesWritten.Add(float64(bytes))
}
