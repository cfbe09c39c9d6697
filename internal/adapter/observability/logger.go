// Package observability provides the logging, metrics, and tracing adapters.
//
// The metrics type implements the domain sink port over Prometheus
// collectors; logging is slog/JSON; tracing is OpenTelemetry over OTLP.
package observability

import (
	"log/slog"
	"os"

	"github.com/fairyhunter13/chronoq/internal/config"
)

// SetupLogger configures a JSON slog logger with environment fields.
func SetupLogger(cfg config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{}
	// In dev, show debug level; in prod, default to info
	if cfg.IsDev() {
		opts.Level = slog.LevelDebug
	}
	h := slog.NewJSONHandler(os.Stdout, opts)
	logger := slog.New(h).With(
		slog.String("service", cfg.OTELServiceName),
		slog.String("env", cfg.AppEnv),
	)
	return logger
}
