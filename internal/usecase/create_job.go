// Package usecase contains the application services behind the admin API and
// the engine tick.
package usecase

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fairyhunter13/chronoq/internal/domain"
	"github.com/fairyhunter13/chronoq/internal/observability"
)

// CreateJobService persists new jobs for later dispatch.
type CreateJobService struct {
	Jobs domain.JobRepository
}

// NewCreateJobService constructs a CreateJobService.
func NewCreateJobService(jobs domain.JobRepository) CreateJobService {
	return CreateJobService{Jobs: jobs}
}

// CreateJobInput is the validated admin request for a new job. A nil Time
// schedules the job immediately.
type CreateJobInput struct {
	Target  string
	Time    *time.Time
	Type    string
	Payload json.RawMessage
}

// Create validates the input, assigns an ID, and inserts the job as
// Scheduled with zero retries.
func (s CreateJobService) Create(ctx domain.Context, in CreateJobInput) (uuid.UUID, error) {
	if strings.TrimSpace(in.Target) == "" {
		return uuid.Nil, fmt.Errorf("%w: target cannot be empty", domain.ErrValidation)
	}
	jobType, err := domain.ParseJobType(in.Type)
	if err != nil {
		return uuid.Nil, err
	}
	scheduled := time.Now().UTC()
	if in.Time != nil {
		scheduled = in.Time.UTC()
	}
	payload := in.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}

	job := domain.Job{
		ID:      uuid.New(),
		Time:    scheduled,
		Retries: 0,
		Target:  in.Target,
		Type:    jobType,
		Payload: payload,
	}
	if err := s.Jobs.Insert(ctx, job); err != nil {
		return uuid.Nil, err
	}
	observability.LoggerFromContext(ctx).Info("job created",
		"job_id", job.ID.String(), "type", string(jobType), "time", scheduled)
	return job.ID, nil
}
