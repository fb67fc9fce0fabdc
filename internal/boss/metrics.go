package boss

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "job_boss"

// Metrics holds the boss's prometheus collectors on a private registry
type Metrics struct {
	registry *prometheus.Registry

	Running        prometheus.Gauge
	Capacity       prometheus.Gauge
	Dispatched     prometheus.Counter
	DispatchErrors *prometheus.CounterVec
	Killed         prometheus.Counter
	Lost           prometheus.Counter
	Redone         prometheus.Counter
	CleanupErrors  prometheus.Counter
}

// NewMetrics creates and registers the boss collectors
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Running: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "running_employees",
			Help:      "Employees currently tracked in the running set.",
		}),
		Capacity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "spare_capacity",
			Help:      "Employee slots free after the last cleanup.",
		}),
		Dispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "dispatched_total",
			Help:      "Jobs handed to a new employee.",
		}),
		DispatchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "dispatch_errors_total",
			Help:      "Dispatch attempts that did not start an employee.",
		}, []string{"reason"}),
		Killed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "killed_total",
			Help:      "Employees terminated because their job was cancelled.",
		}),
		Lost: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "lost_total",
			Help:      "Employees that vanished while their job was still running.",
		}),
		Redone: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "redo_total",
			Help:      "Jobs marked for redo at shutdown.",
		}),
		CleanupErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "cleanup_errors_total",
			Help:      "Cleanup cycles that could not read the job store.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Running,
		m.Capacity,
		m.Dispatched,
		m.DispatchErrors,
		m.Killed,
		m.Lost,
		m.Redone,
		m.CleanupErrors,
	)

	return m
}

// Handler serves the registry in the prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
