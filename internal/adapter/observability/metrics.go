package observability

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/fairyhunter13/chronoq/internal/domain"
)

var (
	jobsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_processed_total",
			Help: "Total number of jobs processed by outcome",
		},
		[]string{"status"},
	)
	jobsDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "jobs_duration_seconds",
			Help:    "Time spent running one job to a terminal decision",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
	)
	jobsHTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_http_requests_total",
			Help: "Total number of webhook deliveries by HTTP status code",
		},
		[]string{"status_code"},
	)
	jobsKafkaMessagesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "jobs_kafka_messages_total",
			Help: "Total number of messages published to Kafka",
		},
	)
	currentProcessingJobs = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "current_processing_jobs",
			Help: "Number of jobs currently held by workers",
		},
	)
)

// InitMetrics registers all collectors with the default registry and touches
// the known label combinations at zero so scrapes see every series before the
// first event. Call once per process.
func InitMetrics() {
	prometheus.MustRegister(jobsProcessedTotal)
	prometheus.MustRegister(jobsDurationSeconds)
	prometheus.MustRegister(jobsHTTPRequestsTotal)
	prometheus.MustRegister(jobsKafkaMessagesTotal)
	prometheus.MustRegister(currentProcessingJobs)

	for _, outcome := range []string{domain.OutcomeSuccess, domain.OutcomeFailure, domain.OutcomeRetry} {
		jobsProcessedTotal.WithLabelValues(outcome).Add(0)
	}
	jobsHTTPRequestsTotal.WithLabelValues("200").Add(0)
	jobsKafkaMessagesTotal.Add(0)
	currentProcessingJobs.Set(0)
}

// Metrics is the engine's sink over the package collectors. The zero value is
// usable; the type exists so workers and executors depend on the domain port
// rather than on Prometheus.
type Metrics struct{}

// NewMetrics returns the process-wide sink.
func NewMetrics() *Metrics { return &Metrics{} }

var _ domain.MetricsSink = (*Metrics)(nil)

// JobProcessed counts one terminal decision for a job attempt.
func (*Metrics) JobProcessed(outcome string) {
	jobsProcessedTotal.WithLabelValues(outcome).Inc()
}

// ObserveJobDuration records how long one attempt took, in seconds.
func (*Metrics) ObserveJobDuration(seconds float64) {
	jobsDurationSeconds.Observe(seconds)
}

// HTTPRequest counts one webhook response by status code.
func (*Metrics) HTTPRequest(statusCode int) {
	jobsHTTPRequestsTotal.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// KafkaMessage counts one acknowledged publish.
func (*Metrics) KafkaMessage() {
	jobsKafkaMessagesTotal.Inc()
}

// IncProcessing marks one more job in flight.
func (*Metrics) IncProcessing() { currentProcessingJobs.Inc() }

// DecProcessing marks one job leaving flight.
func (*Metrics) DecProcessing() { currentProcessingJobs.Dec() }
