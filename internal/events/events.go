// Package events publishes job lifecycle events. Delivery is best effort: a failed
// publish is logged and never affects scheduling.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/cuongbtq/job-boss/shared/rabbitmq"
)

// Event types, used as routing keys
const (
	JobQueued     = "job.queued"
	JobCancelled  = "job.cancelled"
	JobDispatched = "job.dispatched"
	JobKilled     = "job.killed"
	JobLost       = "job.lost"
	JobRedo       = "job.redo"
)

// Event describes something that happened to a job
type Event struct {
	Type       string    `json:"type"`
	JobID      string    `json:"job_id"`
	Path       string    `json:"path,omitempty"`
	PID        int       `json:"employee_pid,omitempty"`
	Host       string    `json:"host,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher sends lifecycle events somewhere
type Publisher interface {
	Publish(ctx context.Context, e Event)
}

// Nop discards events
type Nop struct{}

// Publish does nothing
func (Nop) Publish(context.Context, Event) {}

// amqpPublisher is the slice of the RabbitMQ client the publisher needs
type amqpPublisher interface {
	PublishWithRetry(ctx context.Context, routingKey string, body []byte, contentType string) error
}

// AMQP publishes events as JSON to a RabbitMQ exchange, routed by event type
type AMQP struct {
	client amqpPublisher
	logger *slog.Logger
	host   string
	now    func() time.Time
}

var _ amqpPublisher = (*rabbitmq.Client)(nil)

// NewAMQP creates a publisher over an established RabbitMQ client
func NewAMQP(client *rabbitmq.Client, logger *slog.Logger, host string) *AMQP {
	return newAMQP(client, logger, host)
}

func newAMQP(client amqpPublisher, logger *slog.Logger, host string) *AMQP {
	return &AMQP{
		client: client,
		logger: logger,
		host:   host,
		now:    time.Now,
	}
}

// Publish sends the event, filling in host and time when missing
func (p *AMQP) Publish(ctx context.Context, e Event) {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = p.now().UTC()
	}
	if e.Host == "" {
		e.Host = p.host
	}

	body, err := json.Marshal(e)
	if err != nil {
		p.logger.Error("Failed to encode event",
			slog.String("type", e.Type),
			slog.Any("error", err),
		)
		return
	}

	if err := p.client.PublishWithRetry(ctx, e.Type, body, "application/json"); err != nil {
		p.logger.Warn("Failed to publish event",
			slog.String("type", e.Type),
			slog.String("job_id", e.JobID),
			slog.Any("error", err),
		)
	}
}
