package boss

import (
	"sync"
	"time"
)

// Entry pairs a dispatched job with the employee running it. It is never persisted.
type Entry struct {
	JobID     string    `json:"job_id"`
	Path      string    `json:"path"`
	PID       int       `json:"employee_pid"`
	StartedAt time.Time `json:"started_at"`
}

// RunningSet tracks the employees this boss dispatched, in dispatch order.
// Mutations happen on the loop goroutine; the mutex lets the status endpoint read it.
type RunningSet struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewRunningSet creates an empty set
func NewRunningSet() *RunningSet {
	return &RunningSet{}
}

// Add tracks an entry, replacing any entry with the same job id
func (s *RunningSet) Add(e Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.entries {
		if s.entries[i].JobID == e.JobID {
			s.entries[i] = e
			return
		}
	}
	s.entries = append(s.entries, e)
}

// Remove stops tracking a job. Unknown ids are ignored.
func (s *RunningSet) Remove(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.entries {
		if s.entries[i].JobID == jobID {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			return
		}
	}
}

// Has reports whether the job is tracked
func (s *RunningSet) Has(jobID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.entries {
		if e.JobID == jobID {
			return true
		}
	}
	return false
}

// IDs returns the tracked job ids
func (s *RunningSet) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, len(s.entries))
	for i, e := range s.entries {
		ids[i] = e.JobID
	}
	return ids
}

// Entries returns a copy of the tracked entries
func (s *RunningSet) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Len returns the number of tracked employees
func (s *RunningSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.entries)
}

// Retain keeps only the entries for which keep returns true.
// keep runs without the lock held, so it may do I/O.
func (s *RunningSet) Retain(keep func(Entry) bool) {
	kept := make([]Entry, 0, s.Len())
	for _, e := range s.Entries() {
		if keep(e) {
			kept = append(kept, e)
		}
	}

	s.mu.Lock()
	s.entries = kept
	s.mu.Unlock()
}
