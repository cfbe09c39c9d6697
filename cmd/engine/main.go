// Command engine runs the dispatch engine: claim due jobs, execute their
// side effects, record the outcomes.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fairyhunter13/chronoq/internal/adapter/executor/kafka"
	"github.com/fairyhunter13/chronoq/internal/adapter/executor/webhook"
	"github.com/fairyhunter13/chronoq/internal/adapter/observability"
	"github.com/fairyhunter13/chronoq/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/chronoq/internal/app"
	"github.com/fairyhunter13/chronoq/internal/config"
	"github.com/fairyhunter13/chronoq/internal/domain"
	"github.com/fairyhunter13/chronoq/internal/usecase"
)

func main() {
	if err := run(); err != nil {
		slog.Error("engine exited with error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	// One cancellation token for everything: the tick sleep, the claim
	// query, the sweeper, and the metrics server all watch it.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go app.ServeMetrics(ctx, cfg.MetricsPort)

	pool, err := postgres.ConnectWithRetry(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := postgres.Migrate(ctx, pool); err != nil {
		return err
	}
	jobs := postgres.NewJobRepo(pool, cfg.EngineRetryAttempts)
	metrics := observability.NewMetrics()

	kafkaExec, err := kafka.New(cfg, metrics)
	if err != nil {
		return err
	}
	defer kafkaExec.Close()
	if err := kafkaExec.EnsureDefaultTopic(ctx); err != nil {
		slog.Warn("failed to ensure default topic; continuing",
			slog.String("topic", cfg.KafkaDefaultTopic), slog.Any("error", err))
	}

	executors := map[domain.JobType]domain.Executor{
		domain.JobTypeHTTP:  webhook.New(cfg, metrics),
		domain.JobTypeKafka: kafkaExec,
	}

	processor := usecase.NewProcessJobsService(
		jobs, executors, metrics,
		cfg.EngineMaxConcurrentJobs,
		cfg.EngineRetryAttempts,
		cfg.EngineBaseDelayMinutes,
	)

	if sweeper := app.NewStaleJobSweeper(jobs, cfg.MaxProcessingAge(), cfg.SweepInterval()); sweeper != nil {
		go sweeper.Run(ctx)
	}

	slog.Info("engine started",
		slog.Int("max_concurrent_jobs", cfg.EngineMaxConcurrentJobs),
		slog.Int("retry_attempts", cfg.EngineRetryAttempts))

	// Blocks until a signal cancels ctx; the last batch drains inside Run.
	app.NewDispatcher(processor, cfg.TickInterval(), cfg.ErrorPause()).Run(ctx)

	slog.Info("engine shutdown complete")
	return nil
}
