// Package boss runs the scheduler: it keeps up to employee_limit employees busy with
// pending jobs, reconciles its view of them against the job store, and stops them on
// shutdown so their jobs can be redone.
package boss

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cuongbtq/job-boss/internal/domain"
	"github.com/cuongbtq/job-boss/internal/events"
)

// Store is the part of the job store the scheduler reads and writes
type Store interface {
	CountPending(ctx context.Context) (int, error)
	ListPendingPaths(ctx context.Context) ([]string, error)
	FindPending(ctx context.Context, path string) (*domain.Job, error)
	FindRunning(ctx context.Context, jobIDs []string) ([]domain.Job, error)
	MarkForRedo(ctx context.Context, jobID string) error
}

// Launcher starts an employee for a job and returns its pid.
// The job is RUNNING in the store once Dispatch succeeds.
type Launcher interface {
	Dispatch(ctx context.Context, job *domain.Job) (int, error)
}

// ProcessTable probes and signals employee processes
type ProcessTable interface {
	Alive(pid int) bool
	Terminate(pid int) error
}

// Config holds boss configuration
type Config struct {
	Logger        *slog.Logger
	Store         Store
	Launcher      Launcher
	Processes     ProcessTable
	Publisher     events.Publisher
	Metrics       *Metrics
	EmployeeLimit int
	SleepInterval time.Duration
}

// Boss is the scheduler loop and the state it owns
type Boss struct {
	logger        *slog.Logger
	store         Store
	launcher      Launcher
	procs         ProcessTable
	publisher     events.Publisher
	metrics       *Metrics
	set           *RunningSet
	employeeLimit int
	sleepInterval time.Duration
	now           func() time.Time
}

// New creates a boss with an empty running set
func New(cfg *Config) *Boss {
	publisher := cfg.Publisher
	if publisher == nil {
		publisher = events.Nop{}
	}

	metrics := cfg.Metrics
	if metrics == nil {
		metrics = NewMetrics()
	}

	return &Boss{
		logger:        cfg.Logger,
		store:         cfg.Store,
		launcher:      cfg.Launcher,
		procs:         cfg.Processes,
		publisher:     publisher,
		metrics:       metrics,
		set:           NewRunningSet(),
		employeeLimit: cfg.EmployeeLimit,
		sleepInterval: cfg.SleepInterval,
		now:           time.Now,
	}
}

// RunningSet exposes the tracked employees for status reporting
func (b *Boss) RunningSet() *RunningSet {
	return b.set
}

// EmployeeLimit returns the configured concurrency bound
func (b *Boss) EmployeeLimit() int {
	return b.employeeLimit
}

// Run schedules until ctx is cancelled. Runtime errors are logged and absorbed.
func (b *Boss) Run(ctx context.Context) error {
	b.logger.Info("Boss started",
		slog.Int("employee_limit", b.employeeLimit),
		slog.Duration("sleep_interval", b.sleepInterval),
	)

	for {
		if ctx.Err() != nil {
			b.logger.Info("Boss loop stopping - context canceled")
			return nil
		}

		if b.iterate(ctx) > 0 {
			continue
		}

		select {
		case <-ctx.Done():
		case <-time.After(b.sleepInterval):
		}
	}
}

// iterate runs one cleanup + dispatch pass and returns how many employees it started
func (b *Boss) iterate(ctx context.Context) int {
	_, size := b.Cleanup(ctx)
	capacity := b.employeeLimit - size
	if capacity <= 0 {
		return 0
	}

	pending, err := b.store.CountPending(ctx)
	if err != nil {
		b.logger.Error("Failed to count pending jobs",
			slog.Any("error", err),
		)
		return 0
	}
	if pending == 0 {
		return 0
	}

	paths, err := b.store.ListPendingPaths(ctx)
	if err != nil {
		b.logger.Error("Failed to list pending jobs",
			slog.Any("error", err),
		)
		return 0
	}

	started := 0
	for _, path := range paths {
		if capacity <= 0 || ctx.Err() != nil {
			break
		}

		if b.dispatch(ctx, path) {
			started++
			capacity--
		}
	}

	b.metrics.Capacity.Set(float64(capacity))
	return started
}

// dispatch starts the oldest pending job for path and tracks it
func (b *Boss) dispatch(ctx context.Context, path string) bool {
	job, err := b.store.FindPending(ctx, path)
	if err != nil {
		if !errors.Is(err, domain.ErrJobNotFound) {
			b.logger.Error("Failed to fetch pending job",
				slog.String("path", path),
				slog.Any("error", err),
			)
		}
		return false
	}

	pid, err := b.launcher.Dispatch(ctx, job)
	if err != nil {
		b.recordDispatchError(job, err)
		return false
	}

	b.set.Add(Entry{
		JobID:     job.JobID,
		Path:      job.Path,
		PID:       pid,
		StartedAt: b.now(),
	})
	b.metrics.Dispatched.Inc()
	b.metrics.Running.Set(float64(b.set.Len()))

	b.logger.Info("Employee dispatched",
		slog.String("job_id", job.JobID),
		slog.String("path", job.Path),
		slog.Int("employee_pid", pid),
	)
	b.publisher.Publish(ctx, events.Event{
		Type:  events.JobDispatched,
		JobID: job.JobID,
		Path:  job.Path,
		PID:   pid,
	})

	return true
}

func (b *Boss) recordDispatchError(job *domain.Job, err error) {
	switch {
	case errors.Is(err, domain.ErrJobAlreadyClaimed):
		// Another writer got there first
		b.metrics.DispatchErrors.WithLabelValues("already_claimed").Inc()
		b.logger.Debug("Job already claimed, skipping",
			slog.String("job_id", job.JobID),
		)
	case errors.Is(err, domain.ErrUnknownJobType), errors.Is(err, domain.ErrUnknownMethod):
		b.metrics.DispatchErrors.WithLabelValues("unknown_type").Inc()
		b.logger.Warn("Job has no handler, marked failed",
			slog.String("job_id", job.JobID),
			slog.String("path", job.Path),
			slog.Any("error", err),
		)
	default:
		b.metrics.DispatchErrors.WithLabelValues("launch").Inc()
		b.logger.Error("Failed to dispatch job",
			slog.String("job_id", job.JobID),
			slog.String("path", job.Path),
			slog.Any("error", err),
		)
	}
}
