package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/cuongbtq/job-boss/internal/boss"
	"github.com/cuongbtq/job-boss/internal/config"
	"github.com/cuongbtq/job-boss/internal/events"
	"github.com/cuongbtq/job-boss/shared/logger"
	"github.com/joho/godotenv"
)

// shutdownTimeout bounds the store writes made while stopping employees
const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	// Parse command-line flags
	defaultConfigPath := os.Getenv("BOSS_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/boss-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateBossConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting boss service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.DatabaseEnvironment()),
		slog.Int("pid", os.Getpid()),
	)

	publisher, closePublisher, err := events.FromConfig(&cfg.RabbitMQ, appLogger.Component("events"))
	if err != nil {
		return err
	}
	defer closePublisher()

	metrics := boss.NewMetrics()

	rt, err := boss.Bootstrap(context.Background(), &boss.BootstrapOptions{
		Config:     cfg,
		ConfigPath: *configPath,
		Logger:     appLogger.Logger,
		Publisher:  publisher,
		Metrics:    metrics,
	})
	if err != nil {
		return fmt.Errorf("failed to start boss: %w", err)
	}
	defer rt.Close()

	// Exit hook: also covers returns that never saw a signal
	shutdown := func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		stopped, err := rt.Coordinator.Shutdown(ctx)
		if errors.Is(err, boss.ErrForeignProcess) {
			return
		}
		if err != nil {
			appLogger.Error("Boss shutdown incomplete",
				slog.Int("stopped", stopped),
				slog.Any("error", err),
			)
			return
		}
		appLogger.Info(fmt.Sprintf("%d employees stopped", stopped))
	}
	defer shutdown()

	if cfg.Status.Enabled {
		statusServer := boss.NewStatusServer(rt.Boss, cfg.Status.Port, appLogger.Component("status"))
		statusServer.Start()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := statusServer.Shutdown(ctx); err != nil {
				appLogger.Error("Status server forced to shutdown",
					slog.Any("error", err),
				)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if sent, err := daemon.SdNotify(false, daemon.SdNotifyReady); !sent && err != nil {
		appLogger.Warn("Failed to notify systemd",
			slog.Any("error", err),
		)
	}

	appLogger.Info("Boss service is running")

	if err := rt.Boss.Run(ctx); err != nil {
		return err
	}

	appLogger.Info("Received signal, shutting down gracefully")
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	stop()

	shutdown()
	appLogger.Info("Boss service shutdown complete")
	return nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	loggerCfg := &logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	}

	return logger.New(loggerCfg)
}
