package drip

import (
	"context"
	"errors"
	"fmt"
	"time"

	"log/slog"

	gerr "github.com/ketowell/waitlist-manager/internal/errors"
)

// Worker triggers a drip run on a fixed interval, for deployments without an
// external scheduler. The run lease keeps it safe next to a cron job.
type Worker struct {
	s        *Scheduler
	interval time.Duration
	ctx      context.Context
	stop     context.CancelFunc
}

func NewWorker(s *Scheduler, interval time.Duration) *Worker {
	return &Worker{
		s:        s,
		interval: interval,
	}
}

// Start starts the worker.
func (w *Worker) Start(ctx context.Context) error {
	if w.interval <= 0 {
		return fmt.Errorf("drip worker interval must be positive")
	}
	if w.ctx != nil && w.stop != nil {
		return fmt.Errorf("drip worker already started")
	}
	w.ctx, w.stop = context.WithCancel(ctx)
	go w.worker(w.ctx)
	return nil
}

// Stop stops the worker gracefully.
func (w *Worker) Stop() error {
	if w.stop == nil {
		return fmt.Errorf("drip worker already stopped or not started")
	}
	w.stop()
	w.stop = nil
	return nil
}

func (w *Worker) worker(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.runOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (w *Worker) runOnce(ctx context.Context) {
	_, err := w.s.Run(ctx)
	switch {
	case err == nil:
	case errors.Is(err, gerr.ErrDripRunInProgress):
		slog.Default().InfoContext(ctx, "drip run skipped, lease is held elsewhere")
	default:
		slog.Default().ErrorContext(ctx, "drip run failed",
			slog.String("err", err.Error()),
		)
	}
}
