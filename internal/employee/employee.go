// Package employee runs a single dispatched job to completion inside its own process.
package employee

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/job-boss/internal/domain"
	"github.com/cuongbtq/job-boss/internal/jobs"
)

// Outcome is what happened to the job
type Outcome string

const (
	OutcomeCompleted   Outcome = "completed"
	OutcomeFailed      Outcome = "failed"
	OutcomeCancelled   Outcome = "cancelled"
	OutcomeInterrupted Outcome = "interrupted" // left RUNNING for the boss to redo
	OutcomeSkipped     Outcome = "skipped"     // job was not RUNNING when we looked
	OutcomeSuperseded  Outcome = "superseded"  // job left RUNNING before we could record
)

// Store is the part of the job store an employee touches
type Store interface {
	GetJobByID(ctx context.Context, jobID string) (*domain.Job, error)
	FinishJob(ctx context.Context, jobID, status string, result interface{}, errorMsg string) error
}

// Resolver finds the job type able to run a job
type Resolver interface {
	Resolve(jobType, method string) (*jobs.Type, error)
}

// Config holds employee configuration
type Config struct {
	Logger          *slog.Logger
	Store           Store
	Registry        Resolver
	ShutdownTimeout time.Duration // grace period for the handler after a stop signal
	StoreTimeout    time.Duration // bound on the final status write
}

// Employee executes one job
type Employee struct {
	logger          *slog.Logger
	store           Store
	registry        Resolver
	shutdownTimeout time.Duration
	storeTimeout    time.Duration
}

type runResult struct {
	value any
	err   error
}

// New creates an employee
func New(cfg *Config) *Employee {
	storeTimeout := cfg.StoreTimeout
	if storeTimeout <= 0 {
		storeTimeout = 10 * time.Second
	}

	return &Employee{
		logger:          cfg.Logger,
		store:           cfg.Store,
		registry:        cfg.Registry,
		shutdownTimeout: cfg.ShutdownTimeout,
		storeTimeout:    storeTimeout,
	}
}

// Run executes the job. ctx is cancelled when the process is asked to stop.
// Only store failures are returned as errors; job failures are recorded on the job.
func (e *Employee) Run(ctx context.Context, jobID string) (Outcome, error) {
	job, err := e.store.GetJobByID(ctx, jobID)
	if err != nil {
		return "", fmt.Errorf("failed to load job: %w", err)
	}

	logger := e.logger.With(
		slog.String("job_id", job.JobID),
		slog.String("path", job.Path),
	)

	if job.Status != domain.JobStatusRunning {
		logger.Warn("Job is not running, nothing to do",
			slog.String("status", job.Status),
		)
		return OutcomeSkipped, nil
	}

	typ, err := e.registry.Resolve(job.JobType, job.Method)
	if err != nil {
		return e.finish(ctx, logger, job.JobID, domain.JobStatusFailed, nil, err.Error())
	}

	handler, err := typ.NewHandler()
	if err != nil {
		return e.finish(ctx, logger, job.JobID, domain.JobStatusFailed, nil, fmt.Sprintf("failed to create handler: %v", err))
	}

	logger.Info("Executing job",
		slog.String("job_type", job.JobType),
		slog.String("method", job.Method),
	)

	start := time.Now()
	done := make(chan runResult, 1)
	go func() {
		value, err := handler.Run(ctx, job.Method, json.RawMessage(job.Args))
		done <- runResult{value: value, err: err}
	}()

	var res runResult
	select {
	case res = <-done:
	case <-ctx.Done():
		logger.Info("Stop requested, waiting for handler",
			slog.Duration("grace", e.shutdownTimeout),
		)
		select {
		case res = <-done:
		case <-time.After(e.shutdownTimeout):
			res = runResult{err: ctx.Err()}
		}
	}

	if res.err != nil && ctx.Err() != nil {
		return e.interrupted(ctx, logger, job.JobID)
	}

	if res.err != nil {
		logger.Error("Job failed",
			slog.Duration("elapsed", time.Since(start)),
			slog.Any("error", res.err),
		)
		return e.finish(ctx, logger, job.JobID, domain.JobStatusFailed, nil, res.err.Error())
	}

	logger.Info("Job completed",
		slog.Duration("elapsed", time.Since(start)),
	)
	return e.finish(ctx, logger, job.JobID, domain.JobStatusCompleted, res.value, "")
}

// interrupted finalises a cancelled job, or leaves it RUNNING so the boss redoes it
func (e *Employee) interrupted(ctx context.Context, logger *slog.Logger, jobID string) (Outcome, error) {
	storeCtx, cancel := e.storeContext(ctx)
	defer cancel()

	job, err := e.store.GetJobByID(storeCtx, jobID)
	if err != nil {
		return "", fmt.Errorf("failed to reload interrupted job: %w", err)
	}

	if !job.IsCancelled() {
		logger.Info("Job interrupted, leaving it for redo")
		return OutcomeInterrupted, nil
	}

	return e.finish(ctx, logger, jobID, domain.JobStatusCancelled, nil, "cancelled")
}

func (e *Employee) finish(ctx context.Context, logger *slog.Logger, jobID, status string, result any, errorMsg string) (Outcome, error) {
	storeCtx, cancel := e.storeContext(ctx)
	defer cancel()

	err := e.store.FinishJob(storeCtx, jobID, status, result, errorMsg)
	if errors.Is(err, domain.ErrJobAlreadyClaimed) {
		logger.Warn("Job is no longer running, outcome dropped",
			slog.String("status", status),
		)
		return OutcomeSuperseded, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to record job outcome: %w", err)
	}

	switch status {
	case domain.JobStatusCompleted:
		return OutcomeCompleted, nil
	case domain.JobStatusCancelled:
		return OutcomeCancelled, nil
	default:
		return OutcomeFailed, nil
	}
}

// storeContext outlives a stop signal so the final write still lands
func (e *Employee) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), e.storeTimeout)
}
