package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	AdmissionRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admission_requests_total",
			Help: "Total number of requests evaluated by the admission gate (count)",
		},
		[]string{"topic", "kind", "result"},
	)

	AdmissionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "admission_duration_ms",
			Help:    "Time spent evaluating a request in milliseconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 25, 50, 100, 250},
		},
		[]string{"topic", "kind"},
	)

	AdmissionPayloadBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "admission_payload_bytes",
			Help:    "Size of notification payloads as received in bytes",
			Buckets: []float64{100, 1000, 10000, 66560, 250000, 1000000, 1536000},
		},
		[]string{"topic"},
	)

	DeliveryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delivery_attempts_total",
			Help: "Total number of webhook delivery attempts (count)",
		},
		[]string{"topic", "subscriber", "status"},
	)

	DeliveryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "delivery_duration_ms",
			Help:    "Duration of webhook deliveries in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
		[]string{"topic", "subscriber"},
	)

	DeliveryFilteredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delivery_filtered_total",
			Help: "Total number of events dropped by a subscriber filter (count)",
		},
		[]string{"topic", "subscriber"},
	)

	SubscribersValidated = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "subscribers_validated",
			Help: "Number of subscribers currently able to receive events (count)",
		},
		[]string{"topic"},
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
			Help: "Total number of failures through circuit breaker (count)",
		},
		[]string{"name"},
	)

	RateLimitRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_requests_total",
			Help: "Total number of requests checked against rate limit (count)",
		},
		[]string{"status"},
	)

	KafkaMessagesWrittenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_written_total",
			Help: "Total number of messages written to Kafka (count)",
		},
		[]string{"service", "topic"},
	)

	KafkaMessageSizeBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_message_size_bytes",
			Help:    "Size of Kafka messages in bytes",
			Buckets: []float64{100, 500, 1000, 5000, 10000, 50000, 100000, 500000},
		},
		[]string{"service", "topic", "direction"},
	)

	KafkaWriteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_write_duration_ms",
			Help:    "Duration of writing messages to Kafka in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"service", "topic"},
	)
)

var (
	admissionOnce      sync.Once
	deliveryOnce       sync.Once
	brokerOnce         sync.Once
	circuitBreakerOnce sync.Once
	rateLimitOnce      sync.Once
)

func RegisterAdmissionMetrics() {
	admissionOnce.Do(func() {
		prometheus.MustRegister(AdmissionRequestsTotal)
		prometheus.MustRegister(AdmissionDuration)
		prometheus.MustRegister(AdmissionPayloadBytes)
	})
}

func RegisterDeliveryMetrics() {
	deliveryOnce.Do(func() {
		prometheus.MustRegister(DeliveryAttemptsTotal)
		prometheus.MustRegister(DeliveryDuration)
		prometheus.MustRegister(DeliveryFilteredTotal)
		prometheus.MustRegister(SubscribersValidated)
	})
}

func RegisterBrokerMetrics() {
	brokerOnce.Do(func() {
		prometheus.MustRegister(KafkaMessagesWrittenTotal)
		prometheus.MustRegister(KafkaMessageSizeBytes)
		prometheus.MustRegister(KafkaWriteDuration)
	})
}

func RegisterCircuitBreakerMetrics() {
	circuitBreakerOnce.Do(func() {
		prometheus.MustRegister(CircuitBreakerState)
		prometheus.MustRegister(CircuitBreakerRequests)
		prometheus.MustRegister(CircuitBreakerFailures)
	})
}

func RegisterRateLimitMetrics() {
	rateLimitOnce.Do(func() {
		prometheus.MustRegister(RateLimitRequestsTotal)
	})
}

func IncAdmissionRequest(topic, kind, result string) {
	AdmissionRequestsTotal.WithLabelValues(topic, kind, result).Inc()
}

func ObserveAdmissionDuration(topic, kind string, duration time.Duration) {
	AdmissionDuration.WithLabelValues(topic, kind).Observe(float64(duration.Microseconds()) / 1000)
}

func ObservePayloadSize(topic string, sizeBytes int) {
	AdmissionPayloadBytes.WithLabelValues(topic).Observe(float64(sizeBytes))
}

func IncDeliveryAttempt(topic, subscriber, status string) {
	DeliveryAttemptsTotal.WithLabelValues(topic, subscriber, status).Inc()
}

func ObserveDeliveryDuration(topic, subscriber string, duration time.Duration) {
	DeliveryDuration.WithLabelValues(topic, subscriber).Observe(float64(duration.Milliseconds()))
}

func IncDeliveryFiltered(topic, subscriber string) {
	DeliveryFilteredTotal.WithLabelValues(topic, subscriber).Inc()
}

func SetSubscribersValidated(topic string, count int) {
	SubscribersValidated.WithLabelValues(topic).Set(float64(count))
}

func IncKafkaMessagesWritten(service, topic string) {
	KafkaMessagesWrittenTotal.WithLabelValues(service, topic).Inc()
}

func ObserveKafkaMessageSize(service, topic, direction string, sizeBytes int) {
	KafkaMessageSizeBytes.WithLabelValues(service, topic, direction).Observe(float64(sizeBytes))
}

func ObserveKafkaWriteDuration(service, topic string, duration time.Duration) {
	KafkaWriteDuration.WithLabelValues(service, topic).Observe(float64(duration.Milliseconds()))
}
