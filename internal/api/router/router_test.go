package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/cuongbtq/job-boss/internal/api/dto"
	"github.com/cuongbtq/job-boss/internal/api/handler"
	"github.com/cuongbtq/job-boss/internal/domain"
	"github.com/cuongbtq/job-boss/internal/events"
	"github.com/cuongbtq/job-boss/internal/jobs"
	"github.com/cuongbtq/job-boss/internal/storage"
	"github.com/cuongbtq/job-boss/shared/database"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *capturePublisher) Publish(_ context.Context, e events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

type apiFixture struct {
	router    *gin.Engine
	store     *storage.Storage
	publisher *capturePublisher
}

func newAPIFixture(t *testing.T, health func(context.Context) error) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client, err := database.NewClient(&database.Config{
		Driver:   database.DriverSQLite,
		Database: database.MemoryDatabase,
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	_, err = storage.EnsureSchema(context.Background(), client, logger)
	require.NoError(t, err)

	registry := jobs.NewRegistry()
	require.NoError(t, registry.Register(jobs.Manifest{Name: "math", Kind: jobs.KindBuiltin, Handler: "math", Methods: []string{"is_prime", "sum"}}))

	store := storage.NewStorage(client, logger)
	publisher := &capturePublisher{}

	return &apiFixture{
		router: SetupRouter(&handler.Dependencies{
			Logger:    logger,
			Storage:   store,
			Registry:  registry,
			Publisher: publisher,
			Health:    health,
		}),
		store:     store,
		publisher: publisher,
	}
}

func (f *apiFixture) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *apiFixture) create(t *testing.T, method string, args string) dto.JobDTO {
	t.Helper()

	w := f.do(t, http.MethodPost, "/api/v1/jobs", map[string]any{
		"job_type": "math",
		"method":   method,
		"args":     json.RawMessage(args),
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var job dto.JobDTO
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &job))
	return job
}

func TestHealth(t *testing.T) {
	f := newAPIFixture(t, nil)
	w := f.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	f = newAPIFixture(t, func(context.Context) error { return errors.New("connection refused") })
	w = f.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")
}

func TestCreateJob(t *testing.T) {
	f := newAPIFixture(t, nil)

	job := f.create(t, "sum", `{"numbers":[1,2]}`)
	assert.Equal(t, "math#sum", job.Path)
	assert.Equal(t, domain.JobStatusPending, job.Status)
	assert.JSONEq(t, `{"numbers":[1,2]}`, string(job.Args))

	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, events.JobQueued, f.publisher.events[0].Type)
	assert.Equal(t, job.JobID, f.publisher.events[0].JobID)

	tests := []struct {
		name string
		body any
		code int
	}{
		{name: "missing method", body: map[string]any{"job_type": "math"}, code: http.StatusBadRequest},
		{name: "unknown type", body: map[string]any{"job_type": "ghost", "method": "run"}, code: http.StatusUnprocessableEntity},
		{name: "unknown method", body: map[string]any{"job_type": "math", "method": "divide"}, code: http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(t, http.MethodPost, "/api/v1/jobs", tt.body)
			assert.Equal(t, tt.code, w.Code)
		})
	}
}

func TestGetJob(t *testing.T) {
	f := newAPIFixture(t, nil)
	job := f.create(t, "is_prime", `{"n":7}`)

	w := f.do(t, http.MethodGet, "/api/v1/jobs/"+job.JobID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var got dto.JobDTO
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, job.JobID, got.JobID)
	assert.False(t, got.Cancelled)
	assert.Nil(t, got.EmployeePID)

	w = f.do(t, http.MethodGet, "/api/v1/jobs/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodGet, "/api/v1/jobs/00000000-0000-0000-0000-000000000000", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListJobs(t *testing.T) {
	f := newAPIFixture(t, nil)

	var ids []string
	for i := 0; i < 3; i++ {
		ids = append(ids, f.create(t, "sum", `{}`).JobID)
	}
	f.create(t, "is_prime", `{"n":3}`)

	seen := map[string]bool{}
	cursor := ""
	pages := 0
	for {
		q := url.Values{"path": {"math#sum"}, "page_size": {"2"}}
		if cursor != "" {
			q.Set("cursor", cursor)
		}
		w := f.do(t, http.MethodGet, "/api/v1/jobs?"+q.Encode(), nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var resp dto.ListJobsResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		for _, j := range resp.Jobs {
			assert.Equal(t, "math#sum", j.Path)
			seen[j.JobID] = true
		}

		pages++
		if resp.NextCursor == "" {
			break
		}
		cursor = resp.NextCursor
		require.Less(t, pages, 5)
	}

	assert.Equal(t, 2, pages)
	for _, id := range ids {
		assert.True(t, seen[id], id)
	}

	w := f.do(t, http.MethodGet, "/api/v1/jobs?status=SLEEPING", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodGet, "/api/v1/jobs?cursor=%25%25", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCancelJob(t *testing.T) {
	f := newAPIFixture(t, nil)
	ctx := context.Background()

	pending := f.create(t, "sum", `{}`)
	running := f.create(t, "sum", `{}`)
	require.NoError(t, f.store.ClaimJob(ctx, running.JobID, "host"))

	w := f.do(t, http.MethodPost, "/api/v1/jobs/"+pending.JobID+"/cancel", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got dto.JobDTO
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, domain.JobStatusCancelled, got.Status)

	w = f.do(t, http.MethodPost, "/api/v1/jobs/"+running.JobID+"/cancel", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, domain.JobStatusRunning, got.Status)
	assert.True(t, got.Cancelled)

	require.NoError(t, f.store.FinishJob(ctx, running.JobID, domain.JobStatusCancelled, nil, "cancelled"))
	w = f.do(t, http.MethodPost, "/api/v1/jobs/"+running.JobID+"/cancel", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	done := f.create(t, "sum", `{}`)
	require.NoError(t, f.store.ClaimJob(ctx, done.JobID, "host"))
	require.NoError(t, f.store.FinishJob(ctx, done.JobID, domain.JobStatusCompleted, 0, ""))
	w = f.do(t, http.MethodPost, "/api/v1/jobs/"+done.JobID+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	cancelled := 0
	for _, e := range f.publisher.events {
		if e.Type == events.JobCancelled {
			cancelled++
		}
	}
	assert.Equal(t, 3, cancelled)
}

func TestDeleteJob(t *testing.T) {
	f := newAPIFixture(t, nil)

	job := f.create(t, "sum", `{}`)

	w := f.do(t, http.MethodDelete, "/api/v1/jobs/"+job.JobID, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = f.do(t, http.MethodPost, "/api/v1/jobs/"+job.JobID+"/cancel", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodDelete, "/api/v1/jobs/"+job.JobID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = f.do(t, http.MethodGet, "/api/v1/jobs/"+job.JobID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
