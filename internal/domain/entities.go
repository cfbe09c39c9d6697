package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Error taxonomy (sentinels)
var (
	ErrDatabase      = errors.New("database error")
	ErrConnection    = errors.New("database connection error")
	ErrHTTP          = errors.New("http error")
	ErrKafka         = errors.New("kafka error")
	ErrConfig        = errors.New("config error")
	ErrValidation    = errors.New("validation error")
	ErrJobProcessing = errors.New("job processing error")
	ErrSerialization = errors.New("serialization error")
	ErrIO            = errors.New("io error")
	ErrNotFound      = errors.New("not found")
)

// JobType enumerates supported dispatch targets.
type JobType string

const (
	JobTypeHTTP  JobType = "http"
	JobTypeKafka JobType = "kafka"
)

// ParseJobType normalizes a client-supplied type string. Matching is
// case-insensitive.
func ParseJobType(s string) (JobType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(JobTypeHTTP):
		return JobTypeHTTP, nil
	case string(JobTypeKafka):
		return JobTypeKafka, nil
	default:
		return "", fmt.Errorf("%w: invalid job type: %s. Supported types: http, kafka", ErrValidation, s)
	}
}

type JobStatus string

const (
	JobScheduled  JobStatus = "scheduled"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobDeleted    JobStatus = "deleted"
	JobFailed     JobStatus = "failed"
)

// Job is the immutable-ish schedule row. Time is naive UTC; Retries counts
// reschedules performed so far and never exceeds the configured maximum.
type Job struct {
	ID        uuid.UUID
	Time      time.Time
	Retries   int
	Target    string
	Type      JobType
	Payload   json.RawMessage
	CreatedAt time.Time
	UpdatedAt time.Time
}

// JobMetadata is the 1:1 execution-state row for a job.
type JobMetadata struct {
	JobID       uuid.UUID
	Status      JobStatus
	Failure     *string
	ProcessedAt *time.Time
}

// ClaimedJob pairs a job with its metadata as returned by a claim.
type ClaimedJob struct {
	Job      Job
	Metadata JobMetadata
}

// Repositories (ports)

type JobRepository interface {
	Insert(ctx Context, j Job) error
	// ClaimBatch atomically flips up to limit due Scheduled jobs to
	// Processing and returns them, oldest schedule time first. Rows locked
	// by concurrent claimers are skipped, never waited on.
	ClaimBatch(ctx Context, limit int) ([]ClaimedJob, error)
	MarkCompleted(ctx Context, id uuid.UUID) error
	// RescheduleForRetry moves the job to newTime with the given retry
	// count and resets its metadata to Scheduled. Both rows change or
	// neither does.
	RescheduleForRetry(ctx Context, id uuid.UUID, newTime time.Time, retries int) error
	MarkFailed(ctx Context, id uuid.UUID, failure string) error
	// CancelUnprocessed removes a still-Scheduled job together with its
	// metadata. Returns false when the job does not exist or has left
	// Scheduled.
	CancelUnprocessed(ctx Context, id uuid.UUID) (bool, error)
	// RescheduleUnprocessed moves a still-Scheduled job to newTime.
	// Returns false when the job does not exist or has left Scheduled.
	RescheduleUnprocessed(ctx Context, id uuid.UUID, newTime time.Time) (bool, error)
	// RequeueStaleProcessing returns Processing jobs untouched for at
	// least age back to Scheduled and reports how many were requeued.
	RequeueStaleProcessing(ctx Context, age time.Duration) (int64, error)
}

// Executor (port)
//
// Execute delivers one payload to target. A nil return means the attempt is
// settled; an error means the attempt may be retried per the retry policy.
type Executor interface {
	Execute(ctx Context, target string, payload json.RawMessage) error
}

// Processed-job outcomes as recorded by the metrics sink.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeRetry   = "retry"
)

// MetricsSink (port)

type MetricsSink interface {
	JobProcessed(outcome string)
	ObserveJobDuration(seconds float64)
	HTTPRequest(statusCode int)
	KafkaMessage()
	IncProcessing()
	DecProcessing()
}

// Context is an alias to allow decoupling from std context in domain.
// Adapters and usecases pass context.Context through unchanged.

type Context = context.Context
