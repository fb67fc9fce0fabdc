package process

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"syscall"

	"github.com/cuongbtq/job-boss/internal/domain"
	"github.com/cuongbtq/job-boss/internal/jobs"
)

// ClaimStore is the part of the job store the launcher writes to
type ClaimStore interface {
	ClaimJob(ctx context.Context, jobID, host string) error
	RecordEmployee(ctx context.Context, jobID string, pid int) error
	MarkForRedo(ctx context.Context, jobID string) error
	FailPending(ctx context.Context, jobID, errorMsg string) error
}

// Resolver finds the job type able to run a job
type Resolver interface {
	Resolve(jobType, method string) (*jobs.Type, error)
}

// LauncherConfig holds launcher configuration
type LauncherConfig struct {
	Logger      *slog.Logger
	Store       ClaimStore
	Registry    Resolver
	EmployeeBin string // absolute path of the employee executable
	ConfigPath  string // passed to the employee as -config
	WorkingDir  string
	Hostname    string
}

// Launcher starts one employee process per dispatched job
type Launcher struct {
	logger      *slog.Logger
	store       ClaimStore
	registry    Resolver
	employeeBin string
	configPath  string
	workingDir  string
	hostname    string
}

// NewLauncher creates a new Launcher
func NewLauncher(cfg *LauncherConfig) *Launcher {
	hostname := cfg.Hostname
	if hostname == "" {
		hostname, _ = os.Hostname()
	}

	return &Launcher{
		logger:      cfg.Logger,
		store:       cfg.Store,
		registry:    cfg.Registry,
		employeeBin: cfg.EmployeeBin,
		configPath:  cfg.ConfigPath,
		workingDir:  cfg.WorkingDir,
		hostname:    hostname,
	}
}

// Dispatch claims the job, starts its employee and returns the employee pid.
// The job's persisted status is RUNNING once Dispatch returns without error.
func (l *Launcher) Dispatch(ctx context.Context, job *domain.Job) (int, error) {
	if _, err := l.registry.Resolve(job.JobType, job.Method); err != nil {
		if failErr := l.store.FailPending(ctx, job.JobID, err.Error()); failErr != nil {
			l.logger.Error("Failed to fail undispatchable job",
				slog.String("job_id", job.JobID),
				slog.Any("error", failErr),
			)
		}
		return 0, err
	}

	if err := l.store.ClaimJob(ctx, job.JobID, l.hostname); err != nil {
		return 0, err
	}

	cmd := exec.Command(l.employeeBin, "-config", l.configPath, "-job", job.JobID)
	cmd.Dir = l.workingDir
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = append(os.Environ(), "JOB_BOSS_JOB_ID="+job.JobID)
	// Own process group: a terminal Ctrl-C reaches the boss only, which then stops employees itself.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		if redoErr := l.store.MarkForRedo(ctx, job.JobID); redoErr != nil {
			err = errors.Join(err, redoErr)
		}
		return 0, fmt.Errorf("failed to start employee: %w", err)
	}

	pid := cmd.Process.Pid
	go l.reap(cmd, job.JobID)

	if err := l.store.RecordEmployee(ctx, job.JobID, pid); err != nil {
		// The employee is running; the pid only matters for operators reading the table.
		l.logger.Warn("Failed to record employee pid",
			slog.String("job_id", job.JobID),
			slog.Int("pid", pid),
			slog.Any("error", err),
		)
	}

	l.logger.Info("Employee started",
		slog.String("job_id", job.JobID),
		slog.String("path", job.Path),
		slog.Int("pid", pid),
	)

	return pid, nil
}

// reap waits for the employee so it does not linger as a zombie, which would still
// answer the liveness probe.
func (l *Launcher) reap(cmd *exec.Cmd, jobID string) {
	err := cmd.Wait()

	attrs := []any{
		slog.String("job_id", jobID),
		slog.Int("pid", cmd.Process.Pid),
		slog.String("exit", exitDescription(cmd.ProcessState)),
	}
	if err != nil {
		l.logger.Debug("Employee exited with error", append(attrs, slog.Any("error", err))...)
		return
	}
	l.logger.Debug("Employee exited", attrs...)
}

func exitDescription(state *os.ProcessState) string {
	if state == nil {
		return "unknown"
	}
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return "signal " + ws.Signal().String()
	}
	return strconv.Itoa(state.ExitCode())
}
