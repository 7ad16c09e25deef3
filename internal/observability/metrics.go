// Package observability exposes Prometheus metrics, health endpoints and
// OpenTelemetry tracing for the chimera process.
package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	messagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chimera_messages_total",
			Help: "Total number of messages processed by actors",
		},
		[]string{"outcome"},
	)

	handleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chimera_message_handle_duration_seconds",
			Help:    "Message handling duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	modeDetections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chimera_mode_detections_total",
			Help: "Total number of mode classifications by resulting mode",
		},
		[]string{"mode"},
	)

	retryAttempts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chimera_retry_attempts_total",
			Help: "Total number of handling attempts including retries",
		},
	)

	breakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chimera_circuit_breaker_state",
			Help: "Circuit breaker state per dependency (0 closed, 1 open, 2 half-open)",
		},
		[]string{"dependency"},
	)

	dlqSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chimera_dlq_size",
			Help: "Number of entries in the dead letter queue",
		},
	)

	dlqEvicted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chimera_dlq_evicted_total",
			Help: "Total dead letter entries lost to capacity eviction",
		},
	)

	dlqOldestAge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chimera_dlq_oldest_age_seconds",
			Help: "Age of the oldest dead letter entry in seconds",
		},
	)

	eventStoreSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chimera_event_store_events",
			Help: "Number of events currently held in memory",
		},
	)

	activeActors = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chimera_active_actors",
			Help: "Number of live user session actors",
		},
	)

	initOnce sync.Once
)

// InitMetrics registers all metrics with the default registry.
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			messagesTotal,
			handleDuration,
			modeDetections,
			retryAttempts,
			breakerState,
			dlqSize,
			dlqEvicted,
			dlqOldestAge,
			eventStoreSize,
			activeActors,
		)
	})
}

// MetricsHandler returns an HTTP handler for the /metrics endpoint.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// RecordMessage records the outcome of one message ("ok" or "failed").
func RecordMessage(outcome string, duration time.Duration) {
	messagesTotal.WithLabelValues(outcome).Inc()
	handleDuration.Observe(duration.Seconds())
}

// RecordModeDetected counts a mode classification result.
func RecordModeDetected(mode string) {
	modeDetections.WithLabelValues(mode).Inc()
}

// RecordRetryAttempt counts one handling attempt.
func RecordRetryAttempt() {
	retryAttempts.Inc()
}

// SetBreakerState publishes a circuit breaker state change.
func SetBreakerState(dependency string, state int) {
	breakerState.WithLabelValues(dependency).Set(float64(state))
}

// SetDLQStats publishes dead letter queue gauges.
func SetDLQStats(size int, evicted uint64, oldestAge time.Duration) {
	dlqSize.Set(float64(size))
	dlqOldestAge.Set(oldestAge.Seconds())
}

// AddDLQEvicted counts entries lost to eviction.
func AddDLQEvicted(n uint64) {
	dlqEvicted.Add(float64(n))
}

// SetEventStoreSize publishes the current event store occupancy.
func SetEventStoreSize(n int) {
	eventStoreSize.Set(float64(n))
}

// SetActiveActors publishes the live actor count.
func SetActiveActors(n int) {
	activeActors.Set(float64(n))
}
