package observability

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/aretw0/conductor/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "conductor"

// Metrics collects run and node metrics from executor callbacks.
type Metrics struct {
	registry *prometheus.Registry

	runsStarted  prometheus.Counter
	runsFinished *prometheus.CounterVec
	runDuration  prometheus.Histogram
	activeRuns   prometheus.Gauge
	steps        *prometheus.CounterVec
	stepDuration *prometheus.HistogramVec
	meshRounds   prometheus.Counter
	pauses       prometheus.Counter

	mu     sync.Mutex
	starts map[string]time.Time
}

// Option configures Metrics.
type Option func(*options)

type options struct {
	processCollectors bool
}

// WithProcessCollectors also registers the Go runtime and process collectors.
func WithProcessCollectors() Option {
	return func(o *options) {
		o.processCollectors = true
	}
}

// NewMetrics creates and registers the collectors.
func NewMetrics(opts ...Option) *Metrics {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
		starts:   make(map[string]time.Time),
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_started_total",
			Help:      "Runs started.",
		}),
		runsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_finished_total",
			Help:      "Runs finished, by outcome (complete or aborted).",
		}, []string{"outcome"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of finished runs.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		activeRuns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_runs",
			Help:      "Runs currently executing.",
		}),
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_executions_total",
			Help:      "Finished node executions, by node kind, unit kind and status.",
		}, []string{"kind", "unit", "status"}),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "node_duration_seconds",
			Help:      "Duration of node executions, by node kind.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		meshRounds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mesh_rounds_total",
			Help:      "Mesh member answers produced across all rounds.",
		}),
		pauses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "run_pauses_total",
			Help:      "Times a run paused, by request or at a breakpoint.",
		}),
	}

	m.registry.MustRegister(
		m.runsStarted, m.runsFinished, m.runDuration, m.activeRuns,
		m.steps, m.stepDuration, m.meshRounds, m.pauses,
	)
	if o.processCollectors {
		m.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return m
}

// Registry exposes the underlying registry, mainly for tests and for
// registering additional collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Callbacks returns executor callbacks that feed the metrics.
func (m *Metrics) Callbacks() domain.Callbacks {
	return domain.Callbacks{OnEvent: m.observe}
}

func (m *Metrics) observe(_ context.Context, e domain.Event) {
	switch e.Type {
	case domain.EventRunStart:
		m.mu.Lock()
		m.starts[e.RunID] = e.Timestamp
		m.mu.Unlock()
		m.runsStarted.Inc()
		m.activeRuns.Inc()
	case domain.EventRunComplete:
		m.finish(e, "complete")
	case domain.EventRunAborted:
		m.finish(e, "aborted")
	case domain.EventRunPaused:
		m.pauses.Inc()
	case domain.EventStepProgress:
		if e.Unit == domain.UnitMesh {
			m.meshRounds.Inc()
		}
	case domain.EventStepComplete, domain.EventStepError:
		status := string(domain.NodeSuccess)
		if e.Type == domain.EventStepError {
			status = string(domain.NodeError)
		}
		m.steps.WithLabelValues(string(e.Kind), string(e.Unit), status).Inc()
		m.stepDuration.WithLabelValues(string(e.Kind)).Observe(float64(e.DurationMs) / 1000)
	}
}

func (m *Metrics) finish(e domain.Event, outcome string) {
	m.mu.Lock()
	started, ok := m.starts[e.RunID]
	delete(m.starts, e.RunID)
	m.mu.Unlock()

	m.runsFinished.WithLabelValues(outcome).Inc()
	if !ok {
		return
	}
	m.activeRuns.Dec()
	if !started.IsZero() && !e.Timestamp.IsZero() {
		m.runDuration.Observe(e.Timestamp.Sub(started).Seconds())
	}
}
