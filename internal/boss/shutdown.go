package boss

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/cuongbtq/job-boss/internal/events"
)

// ErrForeignProcess is returned when Shutdown runs in a process other than the boss
// that created the coordinator, such as a forked child inheriting the exit hook.
var ErrForeignProcess = errors.New("shutdown called outside the boss process")

// Coordinator stops every tracked employee once and hands its job back for redo
type Coordinator struct {
	boss   *Boss
	logger *slog.Logger
	pid    int
	getpid func() int

	once    sync.Once
	stopped int
	err     error
}

// NewCoordinator records the current pid as the only one allowed to tear down
func NewCoordinator(b *Boss) *Coordinator {
	return &Coordinator{
		boss:   b,
		logger: b.logger,
		pid:    os.Getpid(),
		getpid: os.Getpid,
	}
}

// Shutdown runs the teardown at most once and returns how many employees it stopped.
// Later calls return the first result.
func (c *Coordinator) Shutdown(ctx context.Context) (int, error) {
	if pid := c.getpid(); pid != c.pid {
		return 0, fmt.Errorf("%w: pid %d, boss pid %d", ErrForeignProcess, pid, c.pid)
	}

	c.once.Do(func() {
		c.stopped, c.err = c.teardown(ctx)
	})
	return c.stopped, c.err
}

func (c *Coordinator) teardown(ctx context.Context) (int, error) {
	b := c.boss

	entries, n := b.Cleanup(ctx)
	c.logger.Info(fmt.Sprintf("Stopping %d running employees", n),
		slog.Int("count", n),
	)

	var errs []error
	for _, e := range entries {
		if err := b.procs.Terminate(e.PID); err != nil {
			errs = append(errs, fmt.Errorf("failed to terminate job %s: %w", e.JobID, err))
		}

		// Whether or not it was still alive, the job goes back to the queue
		if err := b.store.MarkForRedo(ctx, e.JobID); err != nil {
			errs = append(errs, fmt.Errorf("failed to mark job %s for redo: %w", e.JobID, err))
		} else {
			b.metrics.Redone.Inc()
			b.publisher.Publish(ctx, events.Event{Type: events.JobRedo, JobID: e.JobID, Path: e.Path, PID: e.PID})
		}

		b.set.Remove(e.JobID)
	}
	b.updateGauges()

	c.logger.Info("Boss shutdown complete",
		slog.Int("stopped", n),
	)

	return n, errors.Join(errs...)
}
