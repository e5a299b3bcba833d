// ABOUTME: Prometheus metrics for the orchestration core
// ABOUTME: Execution lifecycle counters, running gauge, and heartbeat tick counters

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors for one server instance. Registering on an
// explicit registry keeps tests from colliding on the global default.
type Metrics struct {
	Registry *prometheus.Registry

	ExecutionsStarted   prometheus.Counter
	ExecutionsCompleted *prometheus.CounterVec
	RunningExecutions   prometheus.Gauge
	EventsPublished     prometheus.Counter
	HeartbeatTicks      prometheus.Counter
	HeartbeatSkips      prometheus.Counter
}

// New creates a metrics set on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		ExecutionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "troupe_executions_started_total",
			Help: "Task executions started.",
		}),
		ExecutionsCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "troupe_executions_finished_total",
			Help: "Task executions finished, by outcome.",
		}, []string{"status"}),
		RunningExecutions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "troupe_executions_running",
			Help: "Task executions currently in flight.",
		}),
		EventsPublished: factory.NewCounter(prometheus.CounterOpts{
			Name: "troupe_events_published_total",
			Help: "Events published on the in-process bus.",
		}),
		HeartbeatTicks: factory.NewCounter(prometheus.CounterOpts{
			Name: "troupe_heartbeat_ticks_total",
			Help: "Heartbeat sweeps run.",
		}),
		HeartbeatSkips: factory.NewCounter(prometheus.CounterOpts{
			Name: "troupe_heartbeat_skips_total",
			Help: "Heartbeat sweeps skipped because the previous one was still running.",
		}),
	}
}
