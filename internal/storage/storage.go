package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/job-boss/internal/domain"
	"github.com/cuongbtq/job-boss/shared/database"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const jobColumns = `
	job_id, path, job_type, method, args, status,
	employee_pid, employee_host, result, error_message,
	cancelled_at, started_at, completed_at, created_at, updated_at
`

// Storage handles all job store operations for the boss, employees and the API.
// Queries are written with ? placeholders and rebound for the driver in use.
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewStorage creates a new Storage instance
func NewStorage(client *database.Client, logger *slog.Logger) *Storage {
	return &Storage{
		db:     client.GetDB(),
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *Storage) exec(ctx context.Context, query string, args ...interface{}) (int64, error) {
	result, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Enqueue inserts a new PENDING job and returns it
func (s *Storage) Enqueue(ctx context.Context, jobType, method string, args json.RawMessage) (*domain.Job, error) {
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	if !json.Valid(args) {
		return nil, domain.ErrInvalidArgs
	}

	now := s.now()
	job := &domain.Job{
		JobID:     uuid.New().String(),
		Path:      domain.BuildPath(jobType, method),
		JobType:   jobType,
		Method:    method,
		Args:      string(args),
		Status:    domain.JobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	query := `
		INSERT INTO jobs (job_id, path, job_type, method, args, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	if _, err := s.exec(ctx, query,
		job.JobID, job.Path, job.JobType, job.Method, job.Args, job.Status, job.CreatedAt, job.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}

	s.logger.Debug("Job enqueued",
		slog.String("job_id", job.JobID),
		slog.String("path", job.Path),
	)

	return job, nil
}

// GetJobByID retrieves a job by its ID
func (s *Storage) GetJobByID(ctx context.Context, jobID string) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE job_id = ?`

	var job domain.Job
	if err := s.db.GetContext(ctx, &job, s.db.Rebind(query), jobID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return &job, nil
}

// CountPending returns the number of PENDING jobs
func (s *Storage) CountPending(ctx context.Context) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM jobs WHERE status = ?`
	if err := s.db.GetContext(ctx, &count, s.db.Rebind(query), domain.JobStatusPending); err != nil {
		return 0, fmt.Errorf("failed to count pending jobs: %w", err)
	}
	return count, nil
}

// ListPendingPaths returns the distinct paths that have PENDING work, ordered by the
// oldest pending job of each path (insertion order), then by path for ties.
func (s *Storage) ListPendingPaths(ctx context.Context) ([]string, error) {
	query := `
		SELECT path
		FROM jobs
		WHERE status = ?
		GROUP BY path
		ORDER BY MIN(created_at) ASC, path ASC
	`

	var paths []string
	if err := s.db.SelectContext(ctx, &paths, s.db.Rebind(query), domain.JobStatusPending); err != nil {
		return nil, fmt.Errorf("failed to list pending paths: %w", err)
	}
	return paths, nil
}

// FindPending returns the oldest PENDING job for a path, or ErrJobNotFound
func (s *Storage) FindPending(ctx context.Context, path string) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + `
		FROM jobs
		WHERE path = ? AND status = ?
		ORDER BY created_at ASC, job_id ASC
		LIMIT 1
	`

	var job domain.Job
	if err := s.db.GetContext(ctx, &job, s.db.Rebind(query), path, domain.JobStatusPending); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to find pending job: %w", err)
	}
	return &job, nil
}

// FindRunning re-reads the given jobs straight from the database and returns those
// still RUNNING, in no particular order.
func (s *Storage) FindRunning(ctx context.Context, jobIDs []string) ([]domain.Job, error) {
	if len(jobIDs) == 0 {
		return nil, nil
	}

	query, args, err := sqlx.In(`SELECT `+jobColumns+` FROM jobs WHERE status = ? AND job_id IN (?)`,
		domain.JobStatusRunning, jobIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to build running query: %w", err)
	}

	var jobs []domain.Job
	if err := s.db.SelectContext(ctx, &jobs, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to find running jobs: %w", err)
	}
	return jobs, nil
}

// ClaimJob moves a job from PENDING to RUNNING using optimistic locking
func (s *Storage) ClaimJob(ctx context.Context, jobID, host string) error {
	now := s.now()
	query := `
		UPDATE jobs
		SET status = ?,
		    employee_host = ?,
		    employee_pid = NULL,
		    started_at = ?,
		    updated_at = ?
		WHERE job_id = ? AND status = ?
	`

	rows, err := s.exec(ctx, query, domain.JobStatusRunning, host, now, now, jobID, domain.JobStatusPending)
	if err != nil {
		return fmt.Errorf("failed to claim job: %w", err)
	}

	if rows == 0 {
		s.logger.Debug("Failed to claim job - already claimed or not found",
			slog.String("job_id", jobID),
		)
		return domain.ErrJobAlreadyClaimed
	}

	return nil
}

// RecordEmployee stores the pid of the employee running a job
func (s *Storage) RecordEmployee(ctx context.Context, jobID string, pid int) error {
	query := `UPDATE jobs SET employee_pid = ?, updated_at = ? WHERE job_id = ? AND status = ?`
	if _, err := s.exec(ctx, query, pid, s.now(), jobID, domain.JobStatusRunning); err != nil {
		return fmt.Errorf("failed to record employee pid: %w", err)
	}
	return nil
}

// MarkForRedo puts a RUNNING job back in the queue so a later dispatch picks it up.
// A job that was flagged cancelled is finalised as CANCELLED instead.
func (s *Storage) MarkForRedo(ctx context.Context, jobID string) error {
	query := `
		UPDATE jobs
		SET status = CASE WHEN cancelled_at IS NULL THEN ? ELSE ? END,
		    employee_pid = NULL,
		    employee_host = NULL,
		    started_at = NULL,
		    updated_at = ?
		WHERE job_id = ? AND status = ?
	`

	rows, err := s.exec(ctx, query,
		domain.JobStatusPending, domain.JobStatusCancelled, s.now(), jobID, domain.JobStatusRunning)
	if err != nil {
		return fmt.Errorf("failed to mark job for redo: %w", err)
	}

	if rows == 0 {
		s.logger.Debug("Redo skipped - job no longer running",
			slog.String("job_id", jobID),
		)
	}

	return nil
}

// FailPending finalises a job that can never be dispatched
func (s *Storage) FailPending(ctx context.Context, jobID, errorMsg string) error {
	now := s.now()
	query := `
		UPDATE jobs
		SET status = ?, error_message = ?, completed_at = ?, updated_at = ?
		WHERE job_id = ? AND status = ?
	`
	if _, err := s.exec(ctx, query,
		domain.JobStatusFailed, errorMsg, now, now, jobID, domain.JobStatusPending); err != nil {
		return fmt.Errorf("failed to fail pending job: %w", err)
	}
	return nil
}

// FinishJob records the outcome of a RUNNING job. Jobs that are no longer RUNNING
// (redone or finalised elsewhere) are left untouched and ErrJobAlreadyClaimed is returned.
func (s *Storage) FinishJob(ctx context.Context, jobID, status string, result interface{}, errorMsg string) error {
	var resultJSON sql.NullString
	if result != nil {
		data, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("failed to marshal result: %w", err)
		}
		resultJSON = sql.NullString{String: string(data), Valid: true}
	}

	var errorValue sql.NullString
	if errorMsg != "" {
		errorValue = sql.NullString{String: errorMsg, Valid: true}
	}

	now := s.now()
	query := `
		UPDATE jobs
		SET status = ?, result = ?, error_message = ?, completed_at = ?, updated_at = ?
		WHERE job_id = ? AND status = ?
	`

	rows, err := s.exec(ctx, query, status, resultJSON, errorValue, now, now, jobID, domain.JobStatusRunning)
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}
	if rows == 0 {
		return domain.ErrJobAlreadyClaimed
	}

	s.logger.Info("Job status updated",
		slog.String("job_id", jobID),
		slog.String("status", status),
	)

	return nil
}

// CancelJob cancels a PENDING job outright, or flags a RUNNING job so the boss stops
// its employee at the next cleanup cycle. It returns the job after the change.
func (s *Storage) CancelJob(ctx context.Context, jobID string) (*domain.Job, error) {
	now := s.now()

	rows, err := s.exec(ctx, `
		UPDATE jobs
		SET status = ?, cancelled_at = ?, completed_at = ?, updated_at = ?
		WHERE job_id = ? AND status = ?
	`, domain.JobStatusCancelled, now, now, now, jobID, domain.JobStatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel pending job: %w", err)
	}

	if rows == 0 {
		_, err = s.exec(ctx, `
			UPDATE jobs
			SET cancelled_at = ?, updated_at = ?
			WHERE job_id = ? AND status = ? AND cancelled_at IS NULL
		`, now, now, jobID, domain.JobStatusRunning)
		if err != nil {
			return nil, fmt.Errorf("failed to flag running job: %w", err)
		}
	}

	job, err := s.GetJobByID(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if !job.IsCancelled() {
		return nil, domain.ErrJobNotCancellable
	}

	return job, nil
}

// DeleteJob removes a job in a terminal status
func (s *Storage) DeleteJob(ctx context.Context, jobID string) error {
	query, args, err := sqlx.In(`DELETE FROM jobs WHERE job_id = ? AND status IN (?)`, jobID,
		[]string{domain.JobStatusCompleted, domain.JobStatusFailed, domain.JobStatusCancelled})
	if err != nil {
		return fmt.Errorf("failed to build delete query: %w", err)
	}

	rows, err := s.exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}

	if rows == 0 {
		if _, err := s.GetJobByID(ctx, jobID); err != nil {
			return err
		}
		return domain.ErrJobNotDeletable
	}

	return nil
}

// JobFilter narrows ListJobs results
type JobFilter struct {
	JobType  string
	Path     string
	Status   string
	PageSize int
	Cursor   *JobCursor
}

// JobCursor marks the last job of the previous page
type JobCursor struct {
	CreatedAt time.Time
	JobID     string
}

// ListJobs returns up to PageSize+1 jobs, newest first, so callers can tell whether
// another page exists.
func (s *Storage) ListJobs(ctx context.Context, filter JobFilter) ([]domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE 1=1`
	args := []interface{}{}

	if filter.JobType != "" {
		query += " AND job_type = ?"
		args = append(args, filter.JobType)
	}

	if filter.Path != "" {
		query += " AND path = ?"
		args = append(args, filter.Path)
	}

	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, filter.Status)
	}

	if filter.Cursor != nil {
		query += " AND (created_at < ? OR (created_at = ? AND job_id < ?))"
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.CreatedAt, filter.Cursor.JobID)
	}

	// Order by created_at DESC, job_id DESC for consistent pagination
	query += " ORDER BY created_at DESC, job_id DESC LIMIT ?"
	args = append(args, filter.PageSize+1)

	var jobs []domain.Job
	if err := s.db.SelectContext(ctx, &jobs, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	return jobs, nil
}
