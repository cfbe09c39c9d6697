package postgres

import (
	"embed"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/fairyhunter13/chronoq/internal/domain"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate applies all SQL migrations embedded in this package, oldest first.
// Safe to call from every process at startup: applied versions are recorded
// in schema_migrations and skipped on later runs.
func Migrate(ctx domain.Context, pool PgxPool) error {
	const ensure = `CREATE TABLE IF NOT EXISTS schema_migrations (
		version TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`
	if _, err := pool.Exec(ctx, ensure); err != nil {
		return wrapDBErr("migrate.ensure_version_table", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("op=migrate.read_dir: %w: %w", domain.ErrIO, err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	logger := slog.Default().With(slog.String("component", "migrations"))
	for _, f := range files {
		version := strings.TrimSuffix(f, ".sql")
		applied, err := migrationApplied(ctx, pool, version)
		if err != nil {
			return err
		}
		if applied {
			continue
		}
		if err := applyMigration(ctx, pool, logger, version, f); err != nil {
			return err
		}
	}
	return nil
}

func migrationApplied(ctx domain.Context, pool PgxPool, version string) (bool, error) {
	var exists bool
	const q = `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)`
	if err := pool.QueryRow(ctx, q, version).Scan(&exists); err != nil {
		return false, wrapDBErr("migrate.check_version", err)
	}
	return exists, nil
}

func applyMigration(ctx domain.Context, pool PgxPool, logger *slog.Logger, version, file string) error {
	// No bind parameters: zero-arg Exec goes through the simple protocol,
	// which is what allows multi-statement migration files.
	sqlBytes, err := migrationsFS.ReadFile("migrations/" + file)
	if err != nil {
		return fmt.Errorf("op=migrate.read_file: %w: %w", domain.ErrIO, err)
	}
	logger.InfoContext(ctx, "applying migration", slog.String("version", version))
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return wrapDBErr("migrate.begin", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if _, err := tx.Exec(ctx, string(sqlBytes)); err != nil {
		return fmt.Errorf("op=migrate.apply %s: %w: %w", file, domain.ErrDatabase, err)
	}
	if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, version); err != nil {
		return wrapDBErr("migrate.record_version", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return wrapDBErr("migrate.commit", err)
	}
	return nil
}
