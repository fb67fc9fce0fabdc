package domain

import (
	"database/sql"
	"strings"
	"time"
)

// Job is a persisted unit of work as stored in the jobs table
type Job struct {
	JobID        string         `db:"job_id"`
	Path         string         `db:"path"`
	JobType      string         `db:"job_type"`
	Method       string         `db:"method"`
	Args         string         `db:"args"` // JSON string
	Status       string         `db:"status"`
	EmployeePID  sql.NullInt64  `db:"employee_pid"`
	EmployeeHost sql.NullString `db:"employee_host"`
	Result       sql.NullString `db:"result"`
	ErrorMessage sql.NullString `db:"error_message"`
	CancelledAt  sql.NullTime   `db:"cancelled_at"`
	StartedAt    sql.NullTime   `db:"started_at"`
	CompletedAt  sql.NullTime   `db:"completed_at"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
}

// IsCancelled reports whether someone asked for the job to stop.
// A running job keeps its RUNNING status until its employee is gone.
func (j *Job) IsCancelled() bool {
	return j.CancelledAt.Valid || j.Status == JobStatusCancelled
}

// PID returns the employee pid, or 0 when none was recorded
func (j *Job) PID() int {
	if !j.EmployeePID.Valid {
		return 0
	}
	return int(j.EmployeePID.Int64)
}

// BuildPath returns the queue path for a job type and method
func BuildPath(jobType, method string) string {
	return jobType + PathSeparator + method
}

// SplitPath is the inverse of BuildPath
func SplitPath(path string) (jobType, method string, ok bool) {
	jobType, method, ok = strings.Cut(path, PathSeparator)
	if !ok || jobType == "" || method == "" {
		return "", "", false
	}
	return jobType, method, true
}
