package boss

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/cuongbtq/job-boss/internal/config"
	"github.com/cuongbtq/job-boss/internal/events"
	"github.com/cuongbtq/job-boss/internal/jobs"
	"github.com/cuongbtq/job-boss/internal/process"
	"github.com/cuongbtq/job-boss/internal/storage"
	"github.com/cuongbtq/job-boss/shared/database"
	"github.com/gofrs/flock"
)

// ErrAlreadyRunning means another boss holds the lock file
var ErrAlreadyRunning = errors.New("another boss is already running")

// BootstrapOptions holds what the startup sequence needs from main
type BootstrapOptions struct {
	Config     *config.Config
	ConfigPath string
	Logger     *slog.Logger
	Publisher  events.Publisher
	Metrics    *Metrics
}

// Runtime is a booted boss ready to enter its loop
type Runtime struct {
	Boss        *Boss
	Coordinator *Coordinator
	Registry    *jobs.Registry
	DB          *database.Client
	lock        *flock.Flock
}

// Bootstrap connects the job store, discovers job types, ensures the schema and takes
// the boss lock, in that order. Any failure aborts startup with nothing left open.
func Bootstrap(ctx context.Context, opts *BootstrapOptions) (*Runtime, error) {
	cfg := opts.Config
	logger := opts.Logger

	db, err := storage.Open(cfg, logger)
	if err != nil {
		return nil, err
	}

	rt := &Runtime{DB: db}
	ok := false
	defer func() {
		if !ok {
			rt.Close()
		}
	}()

	jobsPath := cfg.Boss.ResolvePath(cfg.Boss.JobsPath)
	rt.Registry, err = jobs.Discover(jobsPath, logger)
	if err != nil {
		return nil, err
	}

	if _, err := storage.EnsureSchema(ctx, db, logger); err != nil {
		return nil, fmt.Errorf("failed to ensure job store schema: %w", err)
	}

	rt.lock, err = acquireLock(cfg.Boss.ResolvePath(lockPath(cfg.Boss)))
	if err != nil {
		return nil, err
	}

	configPath, err := filepath.Abs(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path: %w", err)
	}

	store := storage.NewStorage(db, logger.With(slog.String("component", "storage")))
	launcher := process.NewLauncher(&process.LauncherConfig{
		Logger:      logger.With(slog.String("component", "launcher")),
		Store:       store,
		Registry:    rt.Registry,
		EmployeeBin: cfg.Boss.ResolvePath(cfg.Boss.EmployeeBin),
		ConfigPath:  configPath,
		WorkingDir:  cfg.Boss.WorkingDir,
	})

	rt.Boss = New(&Config{
		Logger:        logger.With(slog.String("component", "boss")),
		Store:         store,
		Launcher:      launcher,
		Processes:     process.NewSupervisor(),
		Publisher:     opts.Publisher,
		Metrics:       opts.Metrics,
		EmployeeLimit: cfg.Boss.EmployeeLimit,
		SleepInterval: cfg.Boss.SleepInterval,
	})
	rt.Coordinator = NewCoordinator(rt.Boss)

	ok = true
	return rt, nil
}

// Close releases the lock and the store connection
func (r *Runtime) Close() error {
	var errs []error
	if r.lock != nil {
		if err := r.lock.Unlock(); err != nil {
			errs = append(errs, fmt.Errorf("failed to release lock file: %w", err))
		}
	}
	if r.DB != nil {
		if err := r.DB.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func lockPath(b config.BossConfig) string {
	if b.LockFile != "" {
		return b.LockFile
	}
	return "boss.lock"
}

func acquireLock(path string) (*flock.Flock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	lock := flock.New(path)
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock %s: %w", path, err)
	}
	if !locked {
		return nil, fmt.Errorf("%w (lock held on %s)", ErrAlreadyRunning, path)
	}
	return lock, nil
}
