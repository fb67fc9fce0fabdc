package boss

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// StatusResponse is the body of GET /running
type StatusResponse struct {
	EmployeeLimit int     `json:"employee_limit"`
	Running       int     `json:"running"`
	Capacity      int     `json:"capacity"`
	Employees     []Entry `json:"employees"`
}

// NewStatusRouter exposes the boss's health, running set and metrics
func NewStatusRouter(b *Boss) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "job-boss",
		})
	})

	r.GET("/running", func(c *gin.Context) {
		entries := b.RunningSet().Entries()
		c.JSON(http.StatusOK, StatusResponse{
			EmployeeLimit: b.EmployeeLimit(),
			Running:       len(entries),
			Capacity:      b.EmployeeLimit() - len(entries),
			Employees:     entries,
		})
	})

	r.GET("/metrics", gin.WrapH(b.metrics.Handler()))

	return r
}

// StatusServer serves the status router on its own port
type StatusServer struct {
	logger *slog.Logger
	srv    *http.Server
}

// NewStatusServer creates a status server listening on port
func NewStatusServer(b *Boss, port int, logger *slog.Logger) *StatusServer {
	return &StatusServer{
		logger: logger,
		srv: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           NewStatusRouter(b),
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start serves in the background. Listen failures are logged, never fatal.
func (s *StatusServer) Start() {
	s.logger.Info("Starting status server",
		slog.String("address", s.srv.Addr),
	)

	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Status server failed",
				slog.Any("error", err),
			)
		}
	}()
}

// Shutdown stops the server
func (s *StatusServer) Shutdown(ctx context.Context) error {
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown status server: %w", err)
	}
	return nil
}
