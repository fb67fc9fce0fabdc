package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Config represents the complete application configuration.
// It is loaded once at startup and treated as read-only afterwards.
type Config struct {
	App      AppConfig      `yaml:"app"`
	Logging  LoggingConfig  `yaml:"logging"`
	Boss     BossConfig     `yaml:"boss"`
	Employee EmployeeConfig `yaml:"employee"`
	Server   ServerConfig   `yaml:"server"`
	Status   StatusConfig   `yaml:"status"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// BossConfig holds the scheduler daemon configuration
type BossConfig struct {
	WorkingDir       string        `yaml:"working_dir"`
	SleepInterval    time.Duration `yaml:"sleep_interval"`
	EmployeeLimit    int           `yaml:"employee_limit"`
	DatabaseYAMLPath string        `yaml:"database_yaml_path"`
	JobsPath         string        `yaml:"jobs_path"`
	Environment      string        `yaml:"environment"`
	EmployeeBin      string        `yaml:"employee_bin"`
	LockFile         string        `yaml:"lock_file"`
}

// EmployeeConfig holds settings for the per-job worker process
type EmployeeConfig struct {
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	StoreTimeout    time.Duration `yaml:"store_timeout"`
}

// ServerConfig holds HTTP server configuration for the queue API
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// StatusConfig holds the boss status/metrics endpoint configuration
type StatusConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// RabbitMQConfig holds RabbitMQ connection and exchange configuration for lifecycle events
type RabbitMQConfig struct {
	Enabled    bool             `yaml:"enabled"`
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryInterval time.Duration `yaml:"retry_interval"`
	Heartbeat     time.Duration `yaml:"heartbeat"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// Load reads and parses the configuration file
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

// ResolvePath returns p unchanged when absolute, otherwise joined onto working_dir
func (b BossConfig) ResolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(b.WorkingDir, p)
}

// DatabaseEnvironment returns the database.yml block to use
func (c *Config) DatabaseEnvironment() string {
	if c.Boss.Environment != "" {
		return c.Boss.Environment
	}
	return c.App.Environment
}

// ValidateBossConfig checks the settings every process touching the job store needs,
// plus the scheduler loop settings.
func (c *Config) ValidateBossConfig() error {
	if err := c.validateStoreSettings(); err != nil {
		return err
	}

	if c.Boss.SleepInterval <= 0 {
		return fmt.Errorf("boss sleep_interval must be greater than 0")
	}

	if c.Boss.EmployeeLimit < 1 {
		return fmt.Errorf("boss employee_limit must be at least 1")
	}

	if c.Boss.EmployeeBin == "" {
		return fmt.Errorf("boss employee_bin is required")
	}

	if c.Status.Enabled && (c.Status.Port < MinPort || c.Status.Port > MaxPort) {
		return fmt.Errorf("invalid status port: %d (must be between %d and %d)", c.Status.Port, MinPort, MaxPort)
	}

	return c.validateRabbitMQ()
}

// ValidateEmployeeConfig checks the settings the employee process needs
func (c *Config) ValidateEmployeeConfig() error {
	if err := c.validateStoreSettings(); err != nil {
		return err
	}

	if c.Employee.ShutdownTimeout <= 0 {
		return fmt.Errorf("employee shutdown_timeout must be greater than 0")
	}

	return nil
}

// ValidateAPIConfig checks the settings the queue API needs
func (c *Config) ValidateAPIConfig() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if err := c.validateStoreSettings(); err != nil {
		return err
	}

	return c.validateRabbitMQ()
}

func (c *Config) validateStoreSettings() error {
	if c.Boss.WorkingDir == "" {
		return fmt.Errorf("boss working_dir is required")
	}

	if c.Boss.DatabaseYAMLPath == "" {
		return fmt.Errorf("boss database_yaml_path is required")
	}

	if c.Boss.JobsPath == "" {
		return fmt.Errorf("boss jobs_path is required")
	}

	if c.DatabaseEnvironment() == "" {
		return fmt.Errorf("environment is required (boss.environment or app.environment)")
	}

	return nil
}

func (c *Config) validateRabbitMQ() error {
	if !c.RabbitMQ.Enabled {
		return nil
	}

	if c.RabbitMQ.Host == "" {
		return fmt.Errorf("rabbitmq host is required")
	}

	if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
		return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
	}

	if c.RabbitMQ.Exchange.Name == "" {
		return fmt.Errorf("rabbitmq exchange name is required")
	}

	return nil
}
