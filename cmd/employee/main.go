package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuongbtq/job-boss/internal/config"
	"github.com/cuongbtq/job-boss/internal/employee"
	"github.com/cuongbtq/job-boss/internal/jobs"
	"github.com/cuongbtq/job-boss/internal/storage"
	"github.com/cuongbtq/job-boss/shared/logger"
	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	_ = godotenv.Load()

	defaultConfigPath := os.Getenv("EMPLOYEE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/boss-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	jobID := flag.String("job", os.Getenv("JOB_BOSS_JOB_ID"), "ID of the job to run")
	flag.Parse()

	if *jobID == "" {
		return fmt.Errorf("job id is required (-job)")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateEmployeeConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := logger.New(&logger.Config{
		Level:        cfg.Logging.Level,
		Format:       cfg.Logging.Format,
		Output:       cfg.Logging.Output,
		EnableSource: cfg.Logging.EnableCaller,
		TimeFormat:   time.RFC3339,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	empLogger := appLogger.With(
		slog.String("component", "employee"),
		slog.Int("pid", os.Getpid()),
	)

	// Trap stop signals before doing any work so the boss's SIGHUP is never fatal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry, err := jobs.Discover(cfg.Boss.ResolvePath(cfg.Boss.JobsPath), empLogger.Logger)
	if err != nil {
		return err
	}

	dbClient, err := storage.Open(cfg, empLogger.Logger)
	if err != nil {
		return err
	}
	defer dbClient.Close()

	emp := employee.New(&employee.Config{
		Logger:          empLogger.Logger,
		Store:           storage.NewStorage(dbClient, empLogger.Logger),
		Registry:        registry,
		ShutdownTimeout: cfg.Employee.ShutdownTimeout,
		StoreTimeout:    cfg.Employee.StoreTimeout,
	})

	outcome, err := emp.Run(ctx, *jobID)
	if err != nil {
		return err
	}

	empLogger.Info("Employee finished",
		slog.String("job_id", *jobID),
		slog.String("outcome", string(outcome)),
	)
	return nil
}
