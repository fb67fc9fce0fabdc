package handler

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/job-boss/internal/events"
	"github.com/cuongbtq/job-boss/internal/jobs"
	"github.com/cuongbtq/job-boss/internal/storage"
)

// Resolver checks that a job type and method can be dispatched
type Resolver interface {
	Resolve(jobType, method string) (*jobs.Type, error)
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger    *slog.Logger
	Storage   *storage.Storage
	Registry  Resolver
	Publisher events.Publisher
	Health    func(ctx context.Context) error
}

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	logger    *slog.Logger
	storage   *storage.Storage
	registry  Resolver
	publisher events.Publisher
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	publisher := deps.Publisher
	if publisher == nil {
		publisher = events.Nop{}
	}

	return &JobHandler{
		logger:    deps.Logger,
		storage:   deps.Storage,
		registry:  deps.Registry,
		publisher: publisher,
	}
}
