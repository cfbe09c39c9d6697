package observability

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoggerRoundTrip(t *testing.T) {
	t.Parallel()
	lg := slog.New(slog.NewTextHandler(os.Stderr, nil))
	ctx := ContextWithLogger(context.Background(), lg)
	assert.Same(t, lg, LoggerFromContext(ctx))
}

func TestLoggerFallsBackToDefault(t *testing.T) {
	t.Parallel()
	assert.Same(t, slog.Default(), LoggerFromContext(context.Background()))
	assert.NotNil(t, LoggerFromContext(nil)) //nolint:staticcheck // nil-safety is the contract under test
}

func TestLoggerNilIsNotStored(t *testing.T) {
	t.Parallel()
	ctx := ContextWithLogger(context.Background(), nil)
	assert.Same(t, slog.Default(), LoggerFromContext(ctx))
}

func TestRequestIDRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := ContextWithRequestID(context.Background(), "req-123")
	assert.Equal(t, "req-123", RequestIDFromContext(ctx))
}

func TestRequestIDEmptyIsNotStored(t *testing.T) {
	t.Parallel()
	ctx := ContextWithRequestID(context.Background(), "")
	assert.Empty(t, RequestIDFromContext(ctx))
	assert.Empty(t, RequestIDFromContext(context.Background()))
}
