package app

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/chronoq/internal/domain"
)

// StaleJobSweeper returns Processing rows abandoned by a crashed engine back
// to Scheduled. A claim touches the job's updated_at, so any Processing row
// older than maxProcessingAge has no live worker behind it — or a very slow
// one, which at-least-once delivery tolerates.
type StaleJobSweeper struct {
	jobs             domain.JobRepository
	maxProcessingAge time.Duration
	interval         time.Duration
}

// NewStaleJobSweeper constructs a sweeper with guarded defaults.
func NewStaleJobSweeper(jobs domain.JobRepository, maxProcessingAge, interval time.Duration) *StaleJobSweeper {
	if jobs == nil {
		return nil
	}
	if maxProcessingAge <= 0 {
		maxProcessingAge = 5 * time.Minute
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &StaleJobSweeper{
		jobs:             jobs,
		maxProcessingAge: maxProcessingAge,
		interval:         interval,
	}
}

// Run sweeps once immediately, then on every interval until ctx is cancelled.
func (s *StaleJobSweeper) Run(ctx context.Context) {
	if s == nil || s.jobs == nil {
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweepOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("stale job sweeper stopping")
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *StaleJobSweeper) sweepOnce(ctx context.Context) {
	tracer := otel.Tracer("jobs.sweeper")
	ctx, span := tracer.Start(ctx, "StaleJobSweeper.sweepOnce")
	defer span.End()
	span.SetAttributes(
		attribute.Float64("jobs.max_processing_age_seconds", s.maxProcessingAge.Seconds()),
	)

	requeued, err := s.jobs.RequeueStaleProcessing(ctx, s.maxProcessingAge)
	if err != nil {
		span.RecordError(err)
		slog.Error("stale job sweep failed", slog.Any("error", err))
		return
	}
	span.SetAttributes(attribute.Int64("jobs.requeued", requeued))
	if requeued > 0 {
		slog.Warn("requeued stale processing jobs",
			slog.Int64("count", requeued),
			slog.Duration("max_processing_age", s.maxProcessingAge))
	}
}
