package usecase

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fairyhunter13/chronoq/internal/domain"
	"github.com/fairyhunter13/chronoq/internal/observability"
)

// RescheduleJobService moves unclaimed jobs to a new fire time.
type RescheduleJobService struct {
	Jobs domain.JobRepository
}

// NewRescheduleJobService constructs a RescheduleJobService.
func NewRescheduleJobService(jobs domain.JobRepository) RescheduleJobService {
	return RescheduleJobService{Jobs: jobs}
}

// Reschedule updates the job's time if it is still Scheduled. A job that
// does not exist or has already been claimed maps to ErrNotFound.
func (s RescheduleJobService) Reschedule(ctx domain.Context, id uuid.UUID, newTime time.Time) error {
	updated, err := s.Jobs.RescheduleUnprocessed(ctx, id, newTime.UTC())
	if err != nil {
		return err
	}
	if !updated {
		return fmt.Errorf("%w: Job not found or already processed", domain.ErrNotFound)
	}
	observability.LoggerFromContext(ctx).Info("job rescheduled",
		"job_id", id.String(), "time", newTime.UTC())
	return nil
}
