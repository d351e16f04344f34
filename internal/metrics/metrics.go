package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics wraps Prometheus collectors for the failsafe monitor.
type Metrics struct {
	registry                 *prometheus.Registry
	cycleDurationSeconds     prometheus.Histogram
	failingServices          *prometheus.GaugeVec
	rollbacksTotal           *prometheus.CounterVec
	restartsTotal            *prometheus.CounterVec
	checkpointsTotal         prometheus.Counter
	runtimeErrorsTotal       prometheus.Counter
	healthyStreak            prometheus.Gauge
	lastSuccessfulCycleGauge prometheus.Gauge
}

// New initializes a Metrics registry with all collectors registered.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		cycleDurationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "modelgate_cycle_duration_seconds",
			Help:    "Duration of failsafe monitor cycles in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
		failingServices: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "modelgate_failing_services",
			Help: "Services failing in the last cycle, by failure state.",
		}, []string{"state"}),
		rollbacksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "modelgate_rollbacks_total",
			Help: "Total revert attempts by result.",
		}, []string{"result"}),
		restartsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "modelgate_restarts_total",
			Help: "Total service restart attempts by result.",
		}, []string{"result"}),
		checkpointsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "modelgate_checkpoints_total",
			Help: "Total checkpoint tags created on sustained health.",
		}),
		runtimeErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "modelgate_runtime_errors_total",
			Help: "Total container runtime errors after retries.",
		}),
		healthyStreak: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "modelgate_healthy_cycles_streak",
			Help: "Consecutive healthy cycles since the last failure or checkpoint.",
		}),
		lastSuccessfulCycleGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "modelgate_last_successful_cycle_timestamp",
			Help: "Unix timestamp of the last successful cycle.",
		}),
	}

	registry.MustRegister(
		m.cycleDurationSeconds,
		m.failingServices,
		m.rollbacksTotal,
		m.restartsTotal,
		m.checkpointsTotal,
		m.runtimeErrorsTotal,
		m.healthyStreak,
		m.lastSuccessfulCycleGauge,
	)

	return m
}

// Handler returns a Prometheus HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveCycleDuration records the duration of a completed cycle.
func (m *Metrics) ObserveCycleDuration(duration time.Duration) {
	if m == nil {
		return
	}
	m.cycleDurationSeconds.Observe(duration.Seconds())
}

// SetFailingServices sets the failing gauge for the given state.
func (m *Metrics) SetFailingServices(state string, value int) {
	if m == nil {
		return
	}
	m.failingServices.WithLabelValues(state).Set(float64(value))
}

// IncRollbacks increments the rollback counter for the given result.
func (m *Metrics) IncRollbacks(result string) {
	if m == nil {
		return
	}
	m.rollbacksTotal.WithLabelValues(result).Inc()
}

// IncRestarts increments the restart counter for the given result.
func (m *Metrics) IncRestarts(result string) {
	if m == nil {
		return
	}
	m.restartsTotal.WithLabelValues(result).Inc()
}

// IncCheckpoints increments the checkpoint counter.
func (m *Metrics) IncCheckpoints() {
	if m == nil {
		return
	}
	m.checkpointsTotal.Inc()
}

// IncRuntimeErrors increments the runtime error counter.
func (m *Metrics) IncRuntimeErrors() {
	if m == nil {
		return
	}
	m.runtimeErrorsTotal.Inc()
}

// SetHealthyStreak records the consecutive healthy cycle count.
func (m *Metrics) SetHealthyStreak(count int) {
	if m == nil {
		return
	}
	m.healthyStreak.Set(float64(count))
}

// SetLastSuccessfulCycleTimestamp sets the last successful cycle time.
func (m *Metrics) SetLastSuccessfulCycleTimestamp(t time.Time) {
	if m == nil {
		return
	}
	m.lastSuccessfulCycleGauge.Set(float64(t.Unix()))
}
