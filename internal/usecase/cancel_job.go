package usecase

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/fairyhunter13/chronoq/internal/domain"
	"github.com/fairyhunter13/chronoq/internal/observability"
)

// CancelJobService removes jobs that have not been claimed yet.
type CancelJobService struct {
	Jobs domain.JobRepository
}

// NewCancelJobService constructs a CancelJobService.
func NewCancelJobService(jobs domain.JobRepository) CancelJobService {
	return CancelJobService{Jobs: jobs}
}

// Cancel deletes the job if it is still Scheduled. A job that does not exist
// or has already been claimed maps to ErrNotFound.
func (s CancelJobService) Cancel(ctx domain.Context, id uuid.UUID) error {
	deleted, err := s.Jobs.CancelUnprocessed(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return fmt.Errorf("%w: Job not found or already processed", domain.ErrNotFound)
	}
	observability.LoggerFromContext(ctx).Info("job deleted", "job_id", id.String())
	return nil
}
