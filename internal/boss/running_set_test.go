package boss

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunningSet(t *testing.T) {
	s := NewRunningSet()
	s.Add(Entry{JobID: "a", PID: 1})
	s.Add(Entry{JobID: "b", PID: 2})
	s.Add(Entry{JobID: "c", PID: 3})

	assert.Equal(t, 3, s.Len())
	assert.True(t, s.Has("b"))
	assert.Equal(t, []string{"a", "b", "c"}, s.IDs())

	// Re-adding replaces in place
	s.Add(Entry{JobID: "b", PID: 20})
	assert.Equal(t, 3, s.Len())
	assert.Equal(t, 20, s.Entries()[1].PID)

	s.Remove("b")
	s.Remove("missing")
	assert.Equal(t, []string{"a", "c"}, s.IDs())

	s.Retain(func(e Entry) bool { return e.PID != 3 })
	assert.Equal(t, []string{"a"}, s.IDs())

	// Entries is a copy
	entries := s.Entries()
	entries[0].PID = 99
	assert.Equal(t, 1, s.Entries()[0].PID)
}
