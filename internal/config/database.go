package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Supported database adapters
const (
	AdapterPostgres = "postgres"
	AdapterSQLite   = "sqlite"
)

// DatabaseConfig is one environment block of the database descriptor file
type DatabaseConfig struct {
	Adapter         string        `yaml:"adapter"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// LoadDatabase reads the database descriptor (database.yml) and returns the block
// for the given environment.
func LoadDatabase(path, environment string) (*DatabaseConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("database YAML file missing (%s)", path)
		}
		return nil, fmt.Errorf("failed to read database YAML file (%s): %w", path, err)
	}

	var environments map[string]DatabaseConfig
	if err := yaml.Unmarshal(data, &environments); err != nil {
		return nil, fmt.Errorf("failed to parse database YAML file (%s): %w", path, err)
	}

	db, ok := environments[environment]
	if !ok {
		return nil, fmt.Errorf("no database configuration for environment %q in %s", environment, path)
	}

	if db.Adapter == "" {
		db.Adapter = AdapterPostgres
	}

	if err := db.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database configuration for environment %q: %w", environment, err)
	}

	return &db, nil
}

// Validate checks if the database block is usable for its adapter
func (d *DatabaseConfig) Validate() error {
	switch d.Adapter {
	case AdapterPostgres:
		if d.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if d.Port < MinPort || d.Port > MaxPort {
			return fmt.Errorf("invalid database port: %d (must be between %d and %d)", d.Port, MinPort, MaxPort)
		}
		if d.Database == "" {
			return fmt.Errorf("database name is required")
		}
	case AdapterSQLite:
		if d.Database == "" {
			return fmt.Errorf("database file is required")
		}
	default:
		return fmt.Errorf("unsupported database adapter: %q", d.Adapter)
	}
	return nil
}
