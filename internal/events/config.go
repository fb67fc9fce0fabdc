package events

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/cuongbtq/job-boss/internal/config"
	"github.com/cuongbtq/job-boss/shared/rabbitmq"
)

// FromConfig builds the publisher the config asks for. The returned close function
// is never nil.
func FromConfig(cfg *config.RabbitMQConfig, logger *slog.Logger) (Publisher, func() error, error) {
	if !cfg.Enabled {
		logger.Info("Lifecycle events disabled")
		return Nop{}, func() error { return nil }, nil
	}

	client, err := rabbitmq.NewClient(&rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
	}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}

	host, _ := os.Hostname()
	return NewAMQP(client, logger, host), client.Close, nil
}
