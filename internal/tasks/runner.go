package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aoemotors/driveflow/internal/observability/metrics"
	"github.com/aoemotors/driveflow/pkg/logging"
)

const defaultTaskTimeout = 30 * time.Second

// Runner executes detached units of work. A submitted task cannot affect the
// HTTP response already returned to the caller; its failure is logged and
// counted, never silently dropped.
type Runner struct {
	logger  *logging.Logger
	metrics *metrics.Metrics
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewRunner creates a task runner.
func NewRunner(logger *logging.Logger, m *metrics.Metrics) *Runner {
	if logger == nil {
		logger = logging.Default()
	}
	return &Runner{
		logger:  logger,
		metrics: m,
		timeout: defaultTaskTimeout,
	}
}

// SetTimeout overrides the per-task timeout.
func (r *Runner) SetTimeout(d time.Duration) {
	if d > 0 {
		r.timeout = d
	}
}

// Go runs fn on its own goroutine with a bounded context, recovering panics.
func (r *Runner) Go(name string, fn func(ctx context.Context) error) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				r.metrics.ObserveTaskFailure(name)
				r.logger.Error("background task panicked", "task", name, "panic", fmt.Sprint(rec))
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()

		if err := fn(ctx); err != nil {
			r.metrics.ObserveTaskFailure(name)
			r.logger.Error("background task failed", "task", name, "error", err)
			return
		}
		r.logger.Debug("background task completed", "task", name)
	}()
}

// Drain blocks until all in-flight tasks finish or ctx is done.
func (r *Runner) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
