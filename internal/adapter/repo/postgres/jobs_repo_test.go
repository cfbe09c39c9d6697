package postgres_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/chronoq/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/chronoq/internal/domain"
)

func TestJobRepo_Insert(t *testing.T) {
	ctx := context.Background()
	job := domain.Job{
		ID:      uuid.New(),
		Time:    time.Now().UTC(),
		Target:  "https://example.com/hook",
		Type:    domain.JobTypeHTTP,
		Payload: json.RawMessage(`{"k":"v"}`),
	}

	t.Run("success", func(t *testing.T) {
		var calls []string
		tx := &txStub{exec: func(sql string, _ []any) (pgconn.CommandTag, error) {
			calls = append(calls, sql)
			return pgconn.NewCommandTag("INSERT 0 1"), nil
		}}
		pool := &poolStub{tx: tx}
		repo := postgres.NewJobRepo(pool, 3)

		require.NoError(t, repo.Insert(ctx, job))
		assert.True(t, tx.committed)
		require.Len(t, calls, 2)
		assert.Contains(t, calls[0], "INSERT INTO job ")
		assert.Contains(t, calls[1], "INSERT INTO job_metadata")
	})

	t.Run("exec error rolls back", func(t *testing.T) {
		tx := &txStub{exec: func(string, []any) (pgconn.CommandTag, error) {
			return pgconn.CommandTag{}, assert.AnError
		}}
		pool := &poolStub{tx: tx}
		repo := postgres.NewJobRepo(pool, 3)

		err := repo.Insert(ctx, job)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "op=job.insert")
		assert.ErrorIs(t, err, domain.ErrDatabase)
		assert.False(t, tx.committed)
		assert.True(t, tx.rolledBack)
	})

	t.Run("begin error", func(t *testing.T) {
		pool := &poolStub{beginErr: assert.AnError}
		repo := postgres.NewJobRepo(pool, 3)
		err := repo.Insert(ctx, job)
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrDatabase)
	})
}

func TestJobRepo_ClaimBatch(t *testing.T) {
	ctx := context.Background()

	t.Run("zero limit claims nothing", func(t *testing.T) {
		pool := &poolStub{beginErr: errors.New("BeginTx must not be called")}
		repo := postgres.NewJobRepo(pool, 3)
		claimed, err := repo.ClaimBatch(ctx, 0)
		require.NoError(t, err)
		assert.Nil(t, claimed)
	})

	t.Run("empty result commits and returns nil", func(t *testing.T) {
		tx := &txStub{query: func(sql string, _ []any) (pgx.Rows, error) {
			assert.Contains(t, sql, "FOR UPDATE SKIP LOCKED")
			return &rowsStub{}, nil
		}}
		pool := &poolStub{tx: tx}
		repo := postgres.NewJobRepo(pool, 3)

		claimed, err := repo.ClaimBatch(ctx, 5)
		require.NoError(t, err)
		assert.Nil(t, claimed)
		assert.True(t, tx.committed)
	})

	t.Run("claims and hydrates", func(t *testing.T) {
		id := uuid.New()
		schedAt := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
		createdAt := schedAt.Add(-time.Hour)

		flagRows := &rowsStub{scans: []func(dest ...any) error{
			func(dest ...any) error {
				*(dest[0].(*uuid.UUID)) = id
				return nil
			},
		}}
		hydrateRows := &rowsStub{scans: []func(dest ...any) error{
			func(dest ...any) error {
				*(dest[0].(*uuid.UUID)) = id
				*(dest[1].(*time.Time)) = schedAt
				*(dest[2].(*int)) = 1
				*(dest[3].(*string)) = "https://example.com/hook"
				*(dest[4].(*string)) = "http"
				*(dest[5].(*json.RawMessage)) = json.RawMessage(`{"k":"v"}`)
				*(dest[6].(*time.Time)) = createdAt
				*(dest[7].(*time.Time)) = schedAt
				*(dest[8].(*string)) = "processing"
				*(dest[9].(**string)) = nil
				*(dest[10].(**time.Time)) = nil
				return nil
			},
		}}

		queries := 0
		var touched []string
		tx := &txStub{
			query: func(sql string, args []any) (pgx.Rows, error) {
				queries++
				if queries == 1 {
					require.Len(t, args, 2)
					assert.Equal(t, 5, args[0])
					assert.Equal(t, 3, args[1])
					return flagRows, nil
				}
				return hydrateRows, nil
			},
			exec: func(sql string, _ []any) (pgconn.CommandTag, error) {
				touched = append(touched, sql)
				return pgconn.NewCommandTag("UPDATE 1"), nil
			},
		}
		pool := &poolStub{tx: tx}
		repo := postgres.NewJobRepo(pool, 3)

		claimed, err := repo.ClaimBatch(ctx, 5)
		require.NoError(t, err)
		require.Len(t, claimed, 1)
		assert.True(t, tx.committed)
		require.Len(t, touched, 1)
		assert.Contains(t, touched[0], "SET updated_at = NOW()")

		got := claimed[0]
		assert.Equal(t, id, got.Job.ID)
		assert.Equal(t, domain.JobTypeHTTP, got.Job.Type)
		assert.Equal(t, 1, got.Job.Retries)
		assert.Equal(t, id, got.Metadata.JobID)
		assert.Equal(t, domain.JobProcessing, got.Metadata.Status)
		assert.Nil(t, got.Metadata.Failure)
		assert.Nil(t, got.Metadata.ProcessedAt)
	})
}

func TestJobRepo_MarkCompleted(t *testing.T) {
	ctx := context.Background()
	id := uuid.New()

	t.Run("success", func(t *testing.T) {
		pool := &poolStub{execTag: pgconn.NewCommandTag("UPDATE 1")}
		repo := postgres.NewJobRepo(pool, 3)
		require.NoError(t, repo.MarkCompleted(ctx, id))
		require.Len(t, pool.execSQL, 1)
		assert.Contains(t, pool.execSQL[0], "COALESCE(processed_at, $2)")
	})

	t.Run("missing row", func(t *testing.T) {
		pool := &poolStub{execTag: pgconn.NewCommandTag("UPDATE 0")}
		repo := postgres.NewJobRepo(pool, 3)
		err := repo.MarkCompleted(ctx, id)
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("database error", func(t *testing.T) {
		pool := &poolStub{execErr: assert.AnError}
		repo := postgres.NewJobRepo(pool, 3)
		err := repo.MarkCompleted(ctx, id)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "op=job.mark_completed")
		assert.ErrorIs(t, err, domain.ErrDatabase)
	})
}

func TestJobRepo_MarkFailed(t *testing.T) {
	ctx := context.Background()
	id := uuid.New()

	t.Run("success", func(t *testing.T) {
		pool := &poolStub{execTag: pgconn.NewCommandTag("UPDATE 1")}
		repo := postgres.NewJobRepo(pool, 3)
		require.NoError(t, repo.MarkFailed(ctx, id, "connect timeout"))
		require.Len(t, pool.execSQL, 1)
		assert.Contains(t, pool.execSQL[0], "status = 'failed'")
	})

	t.Run("missing row", func(t *testing.T) {
		pool := &poolStub{execTag: pgconn.NewCommandTag("UPDATE 0")}
		repo := postgres.NewJobRepo(pool, 3)
		err := repo.MarkFailed(ctx, id, "x")
		require.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestJobRepo_RescheduleForRetry(t *testing.T) {
	ctx := context.Background()
	id := uuid.New()
	newTime := time.Now().UTC().Add(4 * time.Minute)

	t.Run("updates both rows in order", func(t *testing.T) {
		var calls []string
		tx := &txStub{exec: func(sql string, _ []any) (pgconn.CommandTag, error) {
			calls = append(calls, sql)
			return pgconn.NewCommandTag("UPDATE 1"), nil
		}}
		pool := &poolStub{tx: tx}
		repo := postgres.NewJobRepo(pool, 3)

		require.NoError(t, repo.RescheduleForRetry(ctx, id, newTime, 2))
		assert.True(t, tx.committed)
		require.Len(t, calls, 2)
		assert.Contains(t, calls[0], "UPDATE job SET time")
		assert.Contains(t, calls[1], "status = 'scheduled'")
	})

	t.Run("missing metadata aborts both updates", func(t *testing.T) {
		call := 0
		tx := &txStub{exec: func(string, []any) (pgconn.CommandTag, error) {
			call++
			if call == 1 {
				return pgconn.NewCommandTag("UPDATE 1"), nil
			}
			return pgconn.NewCommandTag("UPDATE 0"), nil
		}}
		pool := &poolStub{tx: tx}
		repo := postgres.NewJobRepo(pool, 3)

		err := repo.RescheduleForRetry(ctx, id, newTime, 2)
		require.ErrorIs(t, err, domain.ErrNotFound)
		assert.False(t, tx.committed)
		assert.True(t, tx.rolledBack)
	})
}

func TestJobRepo_CancelUnprocessed(t *testing.T) {
	ctx := context.Background()
	id := uuid.New()

	t.Run("scheduled row cancelled", func(t *testing.T) {
		pool := &poolStub{execTag: pgconn.NewCommandTag("DELETE 1")}
		repo := postgres.NewJobRepo(pool, 3)
		ok, err := repo.CancelUnprocessed(ctx, id)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Contains(t, pool.execSQL[0], "DELETE FROM job")
		assert.Contains(t, pool.execSQL[0], "status = 'scheduled'")
	})

	t.Run("already processed", func(t *testing.T) {
		pool := &poolStub{execTag: pgconn.NewCommandTag("DELETE 0")}
		repo := postgres.NewJobRepo(pool, 3)
		ok, err := repo.CancelUnprocessed(ctx, id)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("database error", func(t *testing.T) {
		pool := &poolStub{execErr: assert.AnError}
		repo := postgres.NewJobRepo(pool, 3)
		ok, err := repo.CancelUnprocessed(ctx, id)
		require.Error(t, err)
		assert.False(t, ok)
	})
}

func TestJobRepo_RescheduleUnprocessed(t *testing.T) {
	ctx := context.Background()
	id := uuid.New()
	newTime := time.Now().UTC().Add(time.Hour)

	newTx := func(status string, scanErr error) *txStub {
		tx := &txStub{}
		tx.queryRow = func(sql string, _ []any) pgx.Row {
			assert.Contains(t, sql, "FOR UPDATE")
			return rowStub{scan: func(dest ...any) error {
				if scanErr != nil {
					return scanErr
				}
				*(dest[0].(*string)) = status
				return nil
			}}
		}
		tx.exec = func(string, []any) (pgconn.CommandTag, error) {
			return pgconn.NewCommandTag("UPDATE 1"), nil
		}
		return tx
	}

	t.Run("still scheduled", func(t *testing.T) {
		tx := newTx("scheduled", nil)
		pool := &poolStub{tx: tx}
		repo := postgres.NewJobRepo(pool, 3)
		ok, err := repo.RescheduleUnprocessed(ctx, id, newTime)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.True(t, tx.committed)
	})

	t.Run("already claimed", func(t *testing.T) {
		tx := newTx("processing", nil)
		pool := &poolStub{tx: tx}
		repo := postgres.NewJobRepo(pool, 3)
		ok, err := repo.RescheduleUnprocessed(ctx, id, newTime)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.False(t, tx.committed)
	})

	t.Run("missing job", func(t *testing.T) {
		tx := newTx("", pgx.ErrNoRows)
		pool := &poolStub{tx: tx}
		repo := postgres.NewJobRepo(pool, 3)
		ok, err := repo.RescheduleUnprocessed(ctx, id, newTime)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestJobRepo_RequeueStaleProcessing(t *testing.T) {
	ctx := context.Background()

	t.Run("reports requeued count", func(t *testing.T) {
		pool := &poolStub{execTag: pgconn.NewCommandTag("UPDATE 4")}
		repo := postgres.NewJobRepo(pool, 3)
		n, err := repo.RequeueStaleProcessing(ctx, 5*time.Minute)
		require.NoError(t, err)
		assert.Equal(t, int64(4), n)
		assert.Contains(t, pool.execSQL[0], "status = 'processing'")
	})

	t.Run("database error", func(t *testing.T) {
		pool := &poolStub{execErr: assert.AnError}
		repo := postgres.NewJobRepo(pool, 3)
		_, err := repo.RequeueStaleProcessing(ctx, 5*time.Minute)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "op=job.requeue_stale_processing")
	})
}

func TestJobRepo_SQLUsesRetryBound(t *testing.T) {
	ctx := context.Background()

	var gotLimit, gotMax any
	tx := &txStub{query: func(sql string, args []any) (pgx.Rows, error) {
		assert.Contains(t, sql, "job.retries <= $2")
		assert.Contains(t, sql, "ORDER BY job.time ASC")
		gotLimit, gotMax = args[0], args[1]
		return &rowsStub{}, nil
	}}
	pool := &poolStub{tx: tx}
	repo := postgres.NewJobRepo(pool, 7)

	_, err := repo.ClaimBatch(ctx, 12)
	require.NoError(t, err)
	assert.Equal(t, 12, gotLimit)
	assert.Equal(t, 7, gotMax)

	if !strings.Contains("sanity", "sanity") {
		t.Fatal("unreachable")
	}
}
