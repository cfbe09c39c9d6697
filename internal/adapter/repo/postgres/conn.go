package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/exaring/otelpgx"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fairyhunter13/chronoq/internal/config"
	"github.com/fairyhunter13/chronoq/internal/domain"
)

const (
	connectAttempts = 10
	connectInterval = 5 * time.Second
)

// NewPool creates a pgx connection pool tuned from configuration.
func NewPool(ctx context.Context, cfg config.Config) (*pgxpool.Pool, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("op=postgres.NewPool: %w: %v", domain.ErrConfig, err)
	}
	pcfg.MaxConns = int32(cfg.DatabaseMaxConnections)
	pcfg.MinConns = int32(cfg.DatabaseMinConnections)
	pcfg.MaxConnIdleTime = cfg.DatabaseIdleTimeout()
	pcfg.MaxConnLifetime = cfg.DatabaseMaxLifetime()
	pcfg.ConnConfig.ConnectTimeout = cfg.DatabaseConnectTimeout()
	pcfg.ConnConfig.Tracer = otelpgx.NewTracer()
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("op=postgres.NewPool: %w: %w", domain.ErrConnection, err)
	}
	return pool, nil
}

// ConnectWithRetry builds the pool and verifies connectivity, pinging every
// 5s for up to 10 attempts before giving up. The returned pool is closed on
// permanent failure.
func ConnectWithRetry(ctx context.Context, cfg config.Config) (*pgxpool.Pool, error) {
	pool, err := NewPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	attempt := 0
	op := func() error {
		attempt++
		pingCtx, cancel := context.WithTimeout(ctx, cfg.DatabaseAcquireTimeout())
		defer cancel()
		if err := pool.Ping(pingCtx); err != nil {
			slog.Warn("Failed to connect to DB. Retrying in 5s...",
				slog.Int("attempt", attempt),
				slog.Int("max_attempts", connectAttempts),
				slog.Any("error", err))
			return err
		}
		return nil
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(connectInterval), connectAttempts-1), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		pool.Close()
		return nil, fmt.Errorf("op=postgres.ConnectWithRetry: %w: %w", domain.ErrConnection, err)
	}
	return pool, nil
}

// isConnErr reports whether err looks like a transient connection failure
// rather than a query-level error. Callers use it to decide between
// reconnect-and-continue and pause-and-retry.
func isConnErr(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgerrcode.IsConnectionException(pgErr.Code) {
		return true
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// wrapDBErr maps a driver error onto the domain taxonomy, keeping the
// original chain intact.
func wrapDBErr(op string, err error) error {
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return fmt.Errorf("op=%s: %w", op, domain.ErrNotFound)
	case isConnErr(err):
		return fmt.Errorf("op=%s: %w: %w", op, domain.ErrConnection, err)
	default:
		return fmt.Errorf("op=%s: %w: %w", op, domain.ErrDatabase, err)
	}
}
