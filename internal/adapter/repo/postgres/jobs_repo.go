// Package postgres provides the PostgreSQL store gateway.
//
// It implements the job repository port over a minimal pgx pool. All state
// transitions the engine relies on (claim, complete, reschedule, fail) are
// single statements or explicit transactions so that concurrent engines and
// the admin API stay consistent under row locking.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/chronoq/internal/domain"
)

// PgxPool is a minimal subset of pgxpool used by the repo for easy testing.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// JobRepo persists jobs and drives their state machine in PostgreSQL.
//
// MaxRetries bounds claim eligibility. Reschedules stop at the policy limit,
// so a Scheduled row never carries retries beyond it; the claim query still
// filters on the bound as a guard against configuration changes between
// runs.
type JobRepo struct {
	Pool       PgxPool
	MaxRetries int
}

// NewJobRepo constructs a JobRepo with the given pool and retry bound.
func NewJobRepo(p PgxPool, maxRetries int) *JobRepo {
	return &JobRepo{Pool: p, MaxRetries: maxRetries}
}

// Insert persists a new job row together with its Scheduled metadata row.
func (r *JobRepo) Insert(ctx domain.Context, j domain.Job) error {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.Insert")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "INSERT"),
		attribute.String("db.sql.table", "job"),
	)
	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return wrapDBErr("job.insert", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()
	now := time.Now().UTC()
	const insertJob = `INSERT INTO job (id, time, retries, target, type, payload, created_at, updated_at) VALUES ($1,$2,$3,$4,$5,$6,$7,$7)`
	if _, err := tx.Exec(ctx, insertJob, j.ID, j.Time, j.Retries, j.Target, string(j.Type), j.Payload, now); err != nil {
		return wrapDBErr("job.insert", err)
	}
	const insertMeta = `INSERT INTO job_metadata (job_id, status) VALUES ($1,$2)`
	if _, err := tx.Exec(ctx, insertMeta, j.ID, string(domain.JobScheduled)); err != nil {
		return wrapDBErr("job.insert", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return wrapDBErr("job.insert", err)
	}
	return nil
}

// ClaimBatch flips up to limit due Scheduled jobs to Processing inside one
// transaction and returns them oldest schedule time first. The locking
// sub-select skips rows held by concurrent claimers, so parallel engines
// receive disjoint batches. The claim also touches job.updated_at: that
// timestamp is what ages out abandoned Processing rows (see
// RequeueStaleProcessing).
func (r *JobRepo) ClaimBatch(ctx domain.Context, limit int) ([]domain.ClaimedJob, error) {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.ClaimBatch")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "UPDATE"),
		attribute.String("db.sql.table", "job_metadata"),
	)
	if limit <= 0 {
		return nil, nil
	}
	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, wrapDBErr("job.claim_batch", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const flag = `UPDATE job_metadata SET status = 'processing'
		WHERE job_id IN (
			SELECT job.id FROM job
			INNER JOIN job_metadata ON job.id = job_metadata.job_id
			WHERE job.time <= NOW()
			  AND job_metadata.status = 'scheduled'
			  AND job.retries <= $2
			ORDER BY job.time ASC
			FOR UPDATE SKIP LOCKED
			LIMIT $1
		)
		RETURNING job_id`
	rows, err := tx.Query(ctx, flag, limit, r.MaxRetries)
	if err != nil {
		return nil, wrapDBErr("job.claim_batch", err)
	}
	ids := make([]uuid.UUID, 0, limit)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, wrapDBErr("job.claim_batch_scan", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr("job.claim_batch_rows", err)
	}
	if len(ids) == 0 {
		if err := tx.Commit(ctx); err != nil {
			return nil, wrapDBErr("job.claim_batch", err)
		}
		return nil, nil
	}

	const touch = `UPDATE job SET updated_at = NOW() WHERE id = ANY($1)`
	if _, err := tx.Exec(ctx, touch, ids); err != nil {
		return nil, wrapDBErr("job.claim_batch_touch", err)
	}

	const hydrate = `SELECT job.id, job.time, job.retries, job.target, job.type, job.payload, job.created_at, job.updated_at,
			job_metadata.status, job_metadata.failure, job_metadata.processed_at
		FROM job
		INNER JOIN job_metadata ON job.id = job_metadata.job_id
		WHERE job.id = ANY($1)
		ORDER BY job.time ASC`
	rows, err = tx.Query(ctx, hydrate, ids)
	if err != nil {
		return nil, wrapDBErr("job.claim_batch_hydrate", err)
	}
	claimed := make([]domain.ClaimedJob, 0, len(ids))
	for rows.Next() {
		var c domain.ClaimedJob
		var typ string
		var status string
		if err := rows.Scan(&c.Job.ID, &c.Job.Time, &c.Job.Retries, &c.Job.Target, &typ, &c.Job.Payload,
			&c.Job.CreatedAt, &c.Job.UpdatedAt, &status, &c.Metadata.Failure, &c.Metadata.ProcessedAt); err != nil {
			rows.Close()
			return nil, wrapDBErr("job.claim_batch_hydrate_scan", err)
		}
		c.Job.Type = domain.JobType(typ)
		c.Metadata.JobID = c.Job.ID
		c.Metadata.Status = domain.JobStatus(status)
		claimed = append(claimed, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr("job.claim_batch_hydrate_rows", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, wrapDBErr("job.claim_batch", err)
	}
	return claimed, nil
}

// MarkCompleted records a successful attempt. Re-applying it is a no-op:
// the first processed_at is kept.
func (r *JobRepo) MarkCompleted(ctx domain.Context, id uuid.UUID) error {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.MarkCompleted")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "UPDATE"),
		attribute.String("db.sql.table", "job_metadata"),
	)
	const q = `UPDATE job_metadata SET status = 'completed', failure = NULL, processed_at = COALESCE(processed_at, $2) WHERE job_id = $1`
	tag, err := r.Pool.Exec(ctx, q, id, time.Now().UTC())
	if err != nil {
		return wrapDBErr("job.mark_completed", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=job.mark_completed: %w", domain.ErrNotFound)
	}
	return nil
}

// RescheduleForRetry moves the job to newTime with the given retry count and
// resets its metadata to Scheduled. Runs in one transaction: either both
// rows change or neither does.
func (r *JobRepo) RescheduleForRetry(ctx domain.Context, id uuid.UUID, newTime time.Time, retries int) error {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.RescheduleForRetry")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "UPDATE"),
		attribute.String("db.sql.table", "job"),
	)
	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return wrapDBErr("job.reschedule_for_retry", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()
	const updJob = `UPDATE job SET time = $2, retries = $3, updated_at = NOW() WHERE id = $1`
	tag, err := tx.Exec(ctx, updJob, id, newTime, retries)
	if err != nil {
		return wrapDBErr("job.reschedule_for_retry", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=job.reschedule_for_retry: %w", domain.ErrNotFound)
	}
	const updMeta = `UPDATE job_metadata SET status = 'scheduled', failure = NULL, processed_at = NULL WHERE job_id = $1`
	tag, err = tx.Exec(ctx, updMeta, id)
	if err != nil {
		return wrapDBErr("job.reschedule_for_retry", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=job.reschedule_for_retry: %w", domain.ErrNotFound)
	}
	if err := tx.Commit(ctx); err != nil {
		return wrapDBErr("job.reschedule_for_retry", err)
	}
	return nil
}

// MarkFailed records a permanent failure with its reason.
func (r *JobRepo) MarkFailed(ctx domain.Context, id uuid.UUID, failure string) error {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.MarkFailed")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "UPDATE"),
		attribute.String("db.sql.table", "job_metadata"),
	)
	const q = `UPDATE job_metadata SET status = 'failed', failure = $2, processed_at = $3 WHERE job_id = $1`
	tag, err := r.Pool.Exec(ctx, q, id, failure, time.Now().UTC())
	if err != nil {
		return wrapDBErr("job.mark_failed", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=job.mark_failed: %w", domain.ErrNotFound)
	}
	return nil
}

// CancelUnprocessed removes a still-Scheduled job; the FK cascade takes the
// metadata row with it. Rows in any other state are left untouched and the
// call reports false.
func (r *JobRepo) CancelUnprocessed(ctx domain.Context, id uuid.UUID) (bool, error) {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.CancelUnprocessed")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "DELETE"),
		attribute.String("db.sql.table", "job"),
	)
	const q = `DELETE FROM job USING job_metadata
		WHERE job.id = $1 AND job_metadata.job_id = job.id AND job_metadata.status = 'scheduled'`
	tag, err := r.Pool.Exec(ctx, q, id)
	if err != nil {
		return false, wrapDBErr("job.cancel_unprocessed", err)
	}
	return tag.RowsAffected() == 1, nil
}

// RescheduleUnprocessed moves a still-Scheduled job to newTime. The metadata
// row is locked first so a concurrent claim cannot slip between the status
// check and the time update.
func (r *JobRepo) RescheduleUnprocessed(ctx domain.Context, id uuid.UUID, newTime time.Time) (bool, error) {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.RescheduleUnprocessed")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "UPDATE"),
		attribute.String("db.sql.table", "job"),
	)
	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, wrapDBErr("job.reschedule_unprocessed", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()
	const lock = `SELECT status FROM job_metadata WHERE job_id = $1 FOR UPDATE`
	var status string
	if err := tx.QueryRow(ctx, lock, id).Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, wrapDBErr("job.reschedule_unprocessed", err)
	}
	if status != string(domain.JobScheduled) {
		return false, nil
	}
	const upd = `UPDATE job SET time = $2, updated_at = NOW() WHERE id = $1`
	if _, err := tx.Exec(ctx, upd, id, newTime); err != nil {
		return false, wrapDBErr("job.reschedule_unprocessed", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, wrapDBErr("job.reschedule_unprocessed", err)
	}
	return true, nil
}

// RequeueStaleProcessing returns Processing jobs whose claim is older than
// age back to Scheduled and reports how many were requeued. Delivery is
// at-least-once: a worker that is merely slow may run alongside the
// requeued copy.
func (r *JobRepo) RequeueStaleProcessing(ctx domain.Context, age time.Duration) (int64, error) {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.RequeueStaleProcessing")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "UPDATE"),
		attribute.String("db.sql.table", "job_metadata"),
	)
	cutoff := time.Now().UTC().Add(-age)
	const q = `UPDATE job_metadata SET status = 'scheduled', failure = NULL, processed_at = NULL
		FROM job
		WHERE job_metadata.job_id = job.id
		  AND job_metadata.status = 'processing'
		  AND job.updated_at < $1`
	tag, err := r.Pool.Exec(ctx, q, cutoff)
	if err != nil {
		return 0, wrapDBErr("job.requeue_stale_processing", err)
	}
	return tag.RowsAffected(), nil
}
