package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/fairyhunter13/chronoq/internal/domain"
)

// TickProcessor is one pass of the engine: claim, dispatch, drain.
type TickProcessor interface {
	Tick(ctx context.Context) (int, error)
}

// Dispatcher paces the engine. Each iteration runs one tick, then sleeps the
// tick interval, or the error pause after a failed claim. The sleep is
// cancellable so shutdown is observed between batches; a tick in flight
// drains its workers before Run returns.
type Dispatcher struct {
	processor    TickProcessor
	tickInterval time.Duration
	errorPause   time.Duration
}

// NewDispatcher constructs a Dispatcher with guarded defaults.
func NewDispatcher(processor TickProcessor, tickInterval, errorPause time.Duration) *Dispatcher {
	if tickInterval <= 0 {
		tickInterval = 500 * time.Millisecond
	}
	if errorPause <= 0 {
		errorPause = 5 * time.Second
	}
	return &Dispatcher{processor: processor, tickInterval: tickInterval, errorPause: errorPause}
}

// Run loops until ctx is cancelled. Claim errors never stop the loop: a
// transient connection loss rides on the pool's reconnect, any other store
// error pauses one beat and retries.
func (d *Dispatcher) Run(ctx context.Context) {
	slog.Info("dispatcher started",
		slog.Duration("tick_interval", d.tickInterval),
		slog.Duration("error_pause", d.errorPause))
	for {
		if ctx.Err() != nil {
			slog.Info("dispatcher stopping")
			return
		}
		pause := d.tickInterval
		if _, err := d.processor.Tick(ctx); err != nil {
			if ctx.Err() != nil {
				slog.Info("dispatcher stopping")
				return
			}
			if errors.Is(err, domain.ErrConnection) {
				slog.Error("store connection lost; waiting for pool to recover", slog.Any("error", err))
			} else {
				slog.Error("tick failed", slog.Any("error", err))
			}
			pause = d.errorPause
		}
		if !sleepCtx(ctx, pause) {
			slog.Info("dispatcher stopping")
			return
		}
	}
}

// sleepCtx waits for d or cancellation, reporting false on cancellation.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
