package storage

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/cuongbtq/job-boss/internal/config"
	"github.com/cuongbtq/job-boss/shared/database"
)

// Open reads the database descriptor named by the config, selects the configured
// environment and connects to it.
func Open(cfg *config.Config, logger *slog.Logger) (*database.Client, error) {
	descriptor := cfg.Boss.ResolvePath(cfg.Boss.DatabaseYAMLPath)

	dbCfg, err := config.LoadDatabase(descriptor, cfg.DatabaseEnvironment())
	if err != nil {
		return nil, err
	}

	client, err := database.NewClient(ClientConfig(dbCfg, cfg.Boss.WorkingDir), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to job store: %w", err)
	}
	return client, nil
}

// ClientConfig maps a database.yml block onto the client configuration.
// Relative SQLite files live under workingDir.
func ClientConfig(db *config.DatabaseConfig, workingDir string) *database.Config {
	name := db.Database
	if db.Adapter == config.AdapterSQLite && name != database.MemoryDatabase && !filepath.IsAbs(name) {
		name = filepath.Join(workingDir, name)
	}

	return &database.Config{
		Driver:          db.Adapter,
		Host:            db.Host,
		Port:            db.Port,
		User:            db.User,
		Password:        db.Password,
		Database:        name,
		SSLMode:         db.SSLMode,
		MaxOpenConns:    db.MaxOpenConns,
		MaxIdleConns:    db.MaxIdleConns,
		ConnMaxLifetime: db.ConnMaxLifetime,
		ConnMaxIdleTime: db.ConnMaxIdleTime,
	}
}
