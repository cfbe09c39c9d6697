package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/fairyhunter13/chronoq/internal/domain"
)

func TestMetricsSink(t *testing.T) {
	m := NewMetrics()

	t.Run("job outcomes", func(t *testing.T) {
		before := testutil.ToFloat64(jobsProcessedTotal.WithLabelValues(domain.OutcomeSuccess))
		m.JobProcessed(domain.OutcomeSuccess)
		m.JobProcessed(domain.OutcomeSuccess)
		after := testutil.ToFloat64(jobsProcessedTotal.WithLabelValues(domain.OutcomeSuccess))
		assert.Equal(t, before+2, after)
	})

	t.Run("http status labels", func(t *testing.T) {
		before := testutil.ToFloat64(jobsHTTPRequestsTotal.WithLabelValues("503"))
		m.HTTPRequest(503)
		after := testutil.ToFloat64(jobsHTTPRequestsTotal.WithLabelValues("503"))
		assert.Equal(t, before+1, after)
	})

	t.Run("kafka messages", func(t *testing.T) {
		before := testutil.ToFloat64(jobsKafkaMessagesTotal)
		m.KafkaMessage()
		after := testutil.ToFloat64(jobsKafkaMessagesTotal)
		assert.Equal(t, before+1, after)
	})

	t.Run("processing gauge balances", func(t *testing.T) {
		before := testutil.ToFloat64(currentProcessingJobs)
		m.IncProcessing()
		m.IncProcessing()
		assert.Equal(t, before+2, testutil.ToFloat64(currentProcessingJobs))
		m.DecProcessing()
		m.DecProcessing()
		assert.Equal(t, before, testutil.ToFloat64(currentProcessingJobs))
	})

	t.Run("duration histogram", func(t *testing.T) {
		before := testutil.CollectAndCount(jobsDurationSeconds)
		m.ObserveJobDuration(0.42)
		assert.Equal(t, before, testutil.CollectAndCount(jobsDurationSeconds))
	})
}

func TestMetricsSinkSatisfiesPort(t *testing.T) {
	var _ domain.MetricsSink = NewMetrics()
}
