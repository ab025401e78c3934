package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	PublishTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bus_publish_total",
			Help: "Total number of publish attempts by outcome (count)",
		},
		[]string{"subject", "status"},
	)

	PublishDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bus_publish_duration_ms",
			Help:    "Duration of publish attempts in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"subject"},
	)

	ValidationFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bus_validation_failures_total",
			Help: "Total number of envelopes rejected by schema validation (count)",
		},
		[]string{"subject"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open) (state code)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker (count)",
		},
		[]string{"name", "state"},
	)

	CircuitBreakerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_failures_total",
			Help: "Total number of counted failures through circuit breaker (count)",
		},
		[]string{"name"},
	)

	OutboxStoredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_stored_total",
			Help: "Total number of messages persisted for redelivery (count)",
		},
		[]string{"subject"},
	)

	OutboxDrainedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_drained_total",
			Help: "Total number of drain attempts on persisted messages (count)",
		},
		[]string{"status"},
	)

	OutboxBacklog = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "outbox_backlog",
			Help: "Number of persisted messages awaiting redelivery (count)",
		},
	)

	TransportWriteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "transport_write_duration_ms",
			Help:    "Duration of transport publish calls in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"subject"},
	)

	TransportMessagesReadTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transport_messages_read_total",
			Help: "Total number of messages read from the transport (count)",
		},
		[]string{"subject"},
	)

	InboxDuplicatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inbox_duplicates_total",
			Help: "Total number of duplicate deliveries suppressed by the inbox guard (count)",
		},
		[]string{"subject"},
	)

	MonitorMessagesPerSecond = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "monitor_messages_per_second",
			Help: "Publish throughput observed by the performance monitor (rate)",
		},
	)

	MonitorAvgLatency = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "monitor_avg_latency_ms",
			Help: "Average publish latency over the sample window (milliseconds)",
		},
	)

	MonitorP95Latency = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "monitor_p95_latency_ms",
			Help: "95th percentile publish latency over the sample window (milliseconds)",
		},
	)

	MonitorErrorsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "monitor_errors_total",
			Help: "Cumulative error count observed by the performance monitor (count)",
		},
	)

	RateLimitRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_requests_total",
			Help: "Total number of HTTP publish requests by rate limit outcome (count)",
		},
		[]string{"result"},
	)
)

func RegisterBusMetrics() {
	prometheus.MustRegister(PublishTotal)
	prometheus.MustRegister(PublishDuration)
	prometheus.MustRegister(ValidationFailuresTotal)
	prometheus.MustRegister(RateLimitRequestsTotal)
}

func RegisterCircuitBreakerMetrics() {
	prometheus.MustRegister(CircuitBreakerState)
	prometheus.MustRegister(CircuitBreakerRequests)
	prometheus.MustRegister(CircuitBreakerFailures)
}

func RegisterOutboxMetrics() {
	prometheus.MustRegister(OutboxStoredTotal)
	prometheus.MustRegister(OutboxDrainedTotal)
	prometheus.MustRegister(OutboxBacklog)
}

func RegisterTransportMetrics() {
	prometheus.MustRegister(TransportWriteDuration)
	prometheus.MustRegister(TransportMessagesReadTotal)
	prometheus.MustRegister(InboxDuplicatesTotal)
}

func RegisterMonitorMetrics() {
	prometheus.MustRegister(MonitorMessagesPerSecond)
	prometheus.MustRegister(MonitorAvgLatency)
	prometheus.MustRegister(MonitorP95Latency)
	prometheus.MustRegister(MonitorErrorsTotal)
}

func IncPublish(subject, status string) {
	PublishTotal.WithLabelValues(subject, status).Inc()
}

func ObservePublishDuration(subject string, duration time.Duration) {
	PublishDuration.WithLabelValues(subject).Observe(float64(duration.Milliseconds()))
}

func ObserveTransportWrite(subject string, duration time.Duration) {
	TransportWriteDuration.WithLabelValues(subject).Observe(float64(duration.Milliseconds()))
}

func SetOutboxBacklog(size int) {
	OutboxBacklog.Set(float64(size))
}
