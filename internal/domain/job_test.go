package domain

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestJob_IsCancelled(t *testing.T) {
	tests := []struct {
		name string
		job  Job
		want bool
	}{
		{
			name: "running without flag",
			job:  Job{Status: JobStatusRunning},
			want: false,
		},
		{
			name: "running with cancelled_at",
			job:  Job{Status: JobStatusRunning, CancelledAt: sql.NullTime{Time: time.Now(), Valid: true}},
			want: true,
		},
		{
			name: "cancelled status",
			job:  Job{Status: JobStatusCancelled},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.job.IsCancelled())
		})
	}
}

func TestJob_PID(t *testing.T) {
	assert.Equal(t, 0, (&Job{}).PID())
	assert.Equal(t, 4242, (&Job{EmployeePID: sql.NullInt64{Int64: 4242, Valid: true}}).PID())
}

func TestSplitPath(t *testing.T) {
	jobType, method, ok := SplitPath(BuildPath("math", "is_prime"))
	assert.True(t, ok)
	assert.Equal(t, "math", jobType)
	assert.Equal(t, "is_prime", method)

	for _, bad := range []string{"", "math", "#is_prime", "math#"} {
		_, _, ok := SplitPath(bad)
		assert.False(t, ok, bad)
	}
}

func TestIsTerminalStatus(t *testing.T) {
	assert.False(t, IsTerminalStatus(JobStatusPending))
	assert.False(t, IsTerminalStatus(JobStatusRunning))
	assert.True(t, IsTerminalStatus(JobStatusCompleted))
	assert.True(t, IsTerminalStatus(JobStatusFailed))
	assert.True(t, IsTerminalStatus(JobStatusCancelled))
}
