package boss

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/job-boss/internal/domain"
	"github.com/cuongbtq/job-boss/internal/events"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memStore keeps jobs in insertion order, like the created_at ordering of the real store
type memStore struct {
	mu      sync.Mutex
	jobs    map[string]*domain.Job
	order   []string
	redo    map[string]int
	readErr error
}

func newMemStore() *memStore {
	return &memStore{
		jobs: make(map[string]*domain.Job),
		redo: make(map[string]int),
	}
}

func (s *memStore) add(id, jobType, method string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.jobs[id] = &domain.Job{
		JobID:   id,
		Path:    domain.BuildPath(jobType, method),
		JobType: jobType,
		Method:  method,
		Status:  domain.JobStatusPending,
	}
	s.order = append(s.order, id)
}

func (s *memStore) cancel(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[id].CancelledAt = sql.NullTime{Time: time.Now(), Valid: true}
}

func (s *memStore) setStatus(id, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[id].Status = status
}

func (s *memStore) status(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id].Status
}

func (s *memStore) redoCount(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.redo[id]
}

func (s *memStore) setReadErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readErr = err
}

func (s *memStore) CountPending(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, j := range s.jobs {
		if j.Status == domain.JobStatusPending {
			n++
		}
	}
	return n, nil
}

func (s *memStore) ListPendingPaths(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool)
	var paths []string
	for _, id := range s.order {
		j := s.jobs[id]
		if j.Status == domain.JobStatusPending && !seen[j.Path] {
			seen[j.Path] = true
			paths = append(paths, j.Path)
		}
	}
	return paths, nil
}

func (s *memStore) FindPending(ctx context.Context, path string) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.order {
		j := s.jobs[id]
		if j.Status == domain.JobStatusPending && j.Path == path {
			cp := *j
			return &cp, nil
		}
	}
	return nil, domain.ErrJobNotFound
}

func (s *memStore) FindRunning(ctx context.Context, ids []string) ([]domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.readErr != nil {
		return nil, s.readErr
	}

	var out []domain.Job
	for _, id := range ids {
		if j, ok := s.jobs[id]; ok && j.Status == domain.JobStatusRunning {
			out = append(out, *j)
		}
	}
	return out, nil
}

func (s *memStore) MarkForRedo(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.redo[id]++
	j, ok := s.jobs[id]
	if !ok || j.Status != domain.JobStatusRunning {
		return nil
	}
	j.EmployeePID = sql.NullInt64{}
	if j.CancelledAt.Valid {
		j.Status = domain.JobStatusCancelled
	} else {
		j.Status = domain.JobStatusPending
	}
	return nil
}

// claim flips PENDING to RUNNING the way the launcher does
func (s *memStore) claim(id string, pid int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok || j.Status != domain.JobStatusPending {
		return domain.ErrJobAlreadyClaimed
	}
	j.Status = domain.JobStatusRunning
	j.EmployeePID = sql.NullInt64{Int64: int64(pid), Valid: true}
	return nil
}

// fakeLauncher hands out increasing pids and marks each started process alive
type fakeLauncher struct {
	mu         sync.Mutex
	store      *memStore
	procs      *fakeProcs
	nextPID    int
	dispatched []string
	failWith   map[string]error
}

func newFakeLauncher(store *memStore, procs *fakeProcs) *fakeLauncher {
	return &fakeLauncher{
		store:    store,
		procs:    procs,
		nextPID:  1000,
		failWith: make(map[string]error),
	}
}

func (l *fakeLauncher) Dispatch(ctx context.Context, job *domain.Job) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err, ok := l.failWith[job.JobID]; ok {
		return 0, err
	}

	l.nextPID++
	pid := l.nextPID
	if err := l.store.claim(job.JobID, pid); err != nil {
		return 0, err
	}
	l.procs.spawn(pid)
	l.dispatched = append(l.dispatched, job.JobID)
	return pid, nil
}

func (l *fakeLauncher) order() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.dispatched...)
}

// fakeProcs is a process table: Terminate kills the process
type fakeProcs struct {
	mu         sync.Mutex
	alive      map[int]bool
	terminated map[int]int
	probes     int
}

func newFakeProcs() *fakeProcs {
	return &fakeProcs{
		alive:      make(map[int]bool),
		terminated: make(map[int]int),
	}
}

func (p *fakeProcs) spawn(pid int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.alive[pid] = true
}

func (p *fakeProcs) die(pid int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.alive[pid] = false
}

func (p *fakeProcs) terminations(pid int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.terminated[pid]
}

func (p *fakeProcs) totalTerminations() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.terminated {
		n += c
	}
	return n
}

func (p *fakeProcs) Alive(pid int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.probes++
	return p.alive[pid]
}

func (p *fakeProcs) Terminate(pid int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.terminated[pid]++
	p.alive[pid] = false
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingPublisher) Publish(_ context.Context, e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingPublisher) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

type harness struct {
	boss      *Boss
	store     *memStore
	launcher  *fakeLauncher
	procs     *fakeProcs
	publisher *recordingPublisher
}

func newHarness(limit int) *harness {
	store := newMemStore()
	procs := newFakeProcs()
	launcher := newFakeLauncher(store, procs)
	publisher := &recordingPublisher{}

	b := New(&Config{
		Logger:        discardLogger(),
		Store:         store,
		Launcher:      launcher,
		Processes:     procs,
		Publisher:     publisher,
		EmployeeLimit: limit,
		SleepInterval: 10 * time.Millisecond,
	})

	return &harness{
		boss:      b,
		store:     store,
		launcher:  launcher,
		procs:     procs,
		publisher: publisher,
	}
}

// pidOf returns the pid the boss tracks for a job
func (h *harness) pidOf(jobID string) int {
	for _, e := range h.boss.RunningSet().Entries() {
		if e.JobID == jobID {
			return e.PID
		}
	}
	return 0
}

var errStoreDown = errors.New("store down")
