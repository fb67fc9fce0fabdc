package boss

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/job-boss/internal/domain"
	"github.com/cuongbtq/job-boss/internal/events"
)

// Cleanup reconciles the running set against the job store and the process table.
// It returns the surviving entries and their count. Calling it twice with nothing
// changed in between leaves the set as it was.
func (b *Boss) Cleanup(ctx context.Context) ([]Entry, int) {
	if b.set.Len() == 0 {
		b.updateGauges()
		return nil, 0
	}

	// Always a fresh read; the set is only a cache of what the store says
	jobs, err := b.store.FindRunning(ctx, b.set.IDs())
	if err != nil {
		b.metrics.CleanupErrors.Inc()
		b.logger.Error("Failed to read running jobs, keeping running set",
			slog.Int("tracked", b.set.Len()),
			slog.Any("error", err),
		)
		entries := b.set.Entries()
		return entries, len(entries)
	}

	running := make(map[string]*domain.Job, len(jobs))
	for i := range jobs {
		running[jobs[i].JobID] = &jobs[i]
	}

	var published []events.Event
	b.set.Retain(func(e Entry) bool {
		job, ok := running[e.JobID]
		if !ok {
			b.logger.Debug("Employee finished",
				slog.String("job_id", e.JobID),
				slog.Int("employee_pid", e.PID),
			)
			return false
		}

		if job.IsCancelled() {
			if err := b.procs.Terminate(e.PID); err != nil {
				b.logger.Error("Failed to terminate cancelled employee",
					slog.String("job_id", e.JobID),
					slog.Int("employee_pid", e.PID),
					slog.Any("error", err),
				)
			}
			b.metrics.Killed.Inc()
			b.logger.Info("Cancelled job killed",
				slog.String("job_id", e.JobID),
				slog.Int("employee_pid", e.PID),
			)
			published = append(published, events.Event{Type: events.JobKilled, JobID: e.JobID, Path: e.Path, PID: e.PID})
			return false
		}

		if !b.procs.Alive(e.PID) {
			// The job stays RUNNING in the store and is not redone
			b.metrics.Lost.Inc()
			b.logger.Warn("Employee lost",
				slog.String("job_id", e.JobID),
				slog.Int("employee_pid", e.PID),
			)
			published = append(published, events.Event{Type: events.JobLost, JobID: e.JobID, Path: e.Path, PID: e.PID})
			return false
		}

		return true
	})

	for _, ev := range published {
		b.publisher.Publish(ctx, ev)
	}

	b.updateGauges()
	entries := b.set.Entries()
	return entries, len(entries)
}

func (b *Boss) updateGauges() {
	size := b.set.Len()
	b.metrics.Running.Set(float64(size))
	b.metrics.Capacity.Set(float64(b.employeeLimit - size))
}
