package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/fairyhunter13/chronoq/internal/domain"
)

// ProcessJobsService is one engine tick: claim due jobs, run each through
// its executor inside a bounded worker slot, and record the terminal
// decision. The batch size equals the slot count, so the semaphore acts as
// an admission limiter rather than a queue, and permits are never held
// across ticks.
type ProcessJobsService struct {
	Jobs             domain.JobRepository
	Executors        map[domain.JobType]domain.Executor
	Metrics          domain.MetricsSink
	MaxConcurrent    int
	MaxRetries       int
	BaseDelayMinutes int

	slots *semaphore.Weighted
}

// NewProcessJobsService wires the tick body with its dependencies.
func NewProcessJobsService(jobs domain.JobRepository, executors map[domain.JobType]domain.Executor, metrics domain.MetricsSink, maxConcurrent, maxRetries, baseDelayMinutes int) *ProcessJobsService {
	return &ProcessJobsService{
		Jobs:             jobs,
		Executors:        executors,
		Metrics:          metrics,
		MaxConcurrent:    maxConcurrent,
		MaxRetries:       maxRetries,
		BaseDelayMinutes: baseDelayMinutes,
		slots:            semaphore.NewWeighted(int64(maxConcurrent)),
	}
}

// Tick claims one batch and drains it. The claim observes ctx; claimed
// workers run on a detached context so shutdown lets them reach a terminal
// state. Returns how many jobs were dispatched.
func (s *ProcessJobsService) Tick(ctx context.Context) (int, error) {
	claimed, err := s.Jobs.ClaimBatch(ctx, s.MaxConcurrent)
	if err != nil {
		return 0, err
	}
	if len(claimed) == 0 {
		return 0, nil
	}
	slog.Info("processing jobs", slog.Int("count", len(claimed)))

	// Workers must finish even when shutdown cancels ctx; their wall clock
	// is bounded by the executor client timeouts.
	wctx := context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	for _, c := range claimed {
		// Acquire on the detached context too: a shutdown that races the
		// claim must not abandon already-claimed rows to the sweeper. The
		// wait is bounded by the executor timeouts of the jobs ahead in
		// this batch.
		if err := s.slots.Acquire(wctx, 1); err != nil {
			slog.Warn("worker slot acquire interrupted; leaving job for sweeper",
				slog.String("job_id", c.Job.ID.String()), slog.Any("error", err))
			continue
		}
		wg.Add(1)
		go func(c domain.ClaimedJob) {
			defer wg.Done()
			defer s.slots.Release(1)
			s.runJob(wctx, c)
		}(c)
	}
	wg.Wait()
	return len(claimed), nil
}

// runJob executes one claimed job to a terminal decision. Executor errors
// never propagate: they become a reschedule or a permanent failure. A failed
// terminal write is logged and the row stays Processing for the sweeper.
func (s *ProcessJobsService) runJob(ctx context.Context, c domain.ClaimedJob) {
	job := c.Job
	s.Metrics.IncProcessing()
	start := time.Now()
	defer func() {
		s.Metrics.DecProcessing()
		s.Metrics.ObserveJobDuration(time.Since(start).Seconds())
	}()

	execErr := s.execute(ctx, job)
	if execErr == nil {
		if err := s.Jobs.MarkCompleted(ctx, job.ID); err != nil {
			slog.Error("failed to mark job completed; row left processing",
				slog.String("job_id", job.ID.String()), slog.Any("error", err))
			return
		}
		slog.Info("job completed", slog.String("job_id", job.ID.String()))
		s.Metrics.JobProcessed(domain.OutcomeSuccess)
		return
	}

	if domain.ShouldRetry(job.Retries, s.MaxRetries) {
		newTime := domain.Backoff(job.Time, job.Retries, s.BaseDelayMinutes)
		slog.Info("retrying job",
			slog.String("job_id", job.ID.String()),
			slog.Int("attempt", job.Retries+1),
			slog.Int("max_attempts", s.MaxRetries),
			slog.Time("next_time", newTime),
			slog.Any("error", execErr))
		if err := s.Jobs.RescheduleForRetry(ctx, job.ID, newTime, job.Retries+1); err != nil {
			slog.Error("failed to reschedule job; row left processing",
				slog.String("job_id", job.ID.String()), slog.Any("error", err))
			return
		}
		s.Metrics.JobProcessed(domain.OutcomeRetry)
		return
	}

	slog.Warn("job failed permanently",
		slog.String("job_id", job.ID.String()),
		slog.Int("retries", job.Retries),
		slog.Any("error", execErr))
	if err := s.Jobs.MarkFailed(ctx, job.ID, execErr.Error()); err != nil {
		slog.Error("failed to mark job failed; row left processing",
			slog.String("job_id", job.ID.String()), slog.Any("error", err))
		return
	}
	s.Metrics.JobProcessed(domain.OutcomeFailure)
}

func (s *ProcessJobsService) execute(ctx context.Context, job domain.Job) error {
	exec, ok := s.Executors[job.Type]
	if !ok {
		return fmt.Errorf("%w: no executor registered for job type %s", domain.ErrJobProcessing, job.Type)
	}
	return exec.Execute(ctx, job.Target, job.Payload)
}
