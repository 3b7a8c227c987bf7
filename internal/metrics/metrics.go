// Package metrics exposes Prometheus collectors for the supervisor.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	launches = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sidecard",
			Subsystem: "supervisor",
			Name:      "launches_total",
			Help:      "Number of backend launch attempts.",
		},
	)
	restarts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sidecard",
			Subsystem: "supervisor",
			Name:      "restarts_total",
			Help:      "Number of automatic restarts after a crash or failed probe.",
		},
	)
	healthFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sidecard",
			Subsystem: "supervisor",
			Name:      "health_failures_total",
			Help:      "Number of failed post-readiness health probes.",
		},
	)
	readinessDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "sidecard",
			Subsystem: "supervisor",
			Name:      "readiness_duration_seconds",
			Help:      "Time from spawn to observed readiness.",
			Buckets:   prometheus.DefBuckets,
		},
	)
	stateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sidecard",
			Subsystem: "supervisor",
			Name:      "state_transitions_total",
			Help:      "Number of supervisor state transitions.",
		}, []string{"from", "to"},
	)
	currentState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "sidecard",
			Subsystem: "supervisor",
			Name:      "current_state",
			Help:      "Current supervisor state (1 = active state, 0 = inactive).",
		}, []string{"state"},
	)
)

// Register registers all metrics with the provided registerer.
// Safe to call multiple times; duplicate registration is tolerated.
func Register(r prometheus.Registerer) error {
	cs := []prometheus.Collector{
		launches, restarts, healthFailures, readinessDuration, stateTransitions, currentState,
	}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}

// Handler returns an HTTP handler serving the default registry.
func Handler() http.Handler { return promhttp.Handler() }

func IncLaunch()        { launches.Inc() }
func IncRestart()       { restarts.Inc() }
func IncHealthFailure() { healthFailures.Inc() }

// ObserveReadiness records the spawn-to-ready latency.
func ObserveReadiness(d time.Duration) { readinessDuration.Observe(d.Seconds()) }

// RecordStateTransition counts a from->to edge and flips the state gauges.
func RecordStateTransition(from, to string) {
	stateTransitions.WithLabelValues(from, to).Inc()
	currentState.WithLabelValues(from).Set(0)
	currentState.WithLabelValues(to).Set(1)
}
