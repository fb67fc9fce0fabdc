package boss

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/cuongbtq/job-boss/internal/domain"
	"github.com/cuongbtq/job-boss/internal/events"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seed queues A, B and C on distinct paths and dispatches with limit 2
func seed(t *testing.T) *harness {
	t.Helper()

	h := newHarness(2)
	h.store.add("A", "alpha", "run")
	h.store.add("B", "beta", "run")
	h.store.add("C", "gamma", "run")

	started := h.boss.iterate(context.Background())
	require.Equal(t, 2, started)
	return h
}

func TestBoss_DispatchesUpToLimitInOrder(t *testing.T) {
	h := seed(t)

	assert.Equal(t, []string{"A", "B"}, h.launcher.order())
	assert.Equal(t, []string{"A", "B"}, h.boss.RunningSet().IDs())
	assert.Equal(t, domain.JobStatusPending, h.store.status("C"))
	assert.Equal(t, []string{events.JobDispatched, events.JobDispatched}, h.publisher.types())

	// No capacity left: nothing more is dispatched
	assert.Zero(t, h.boss.iterate(context.Background()))
	assert.Equal(t, domain.JobStatusPending, h.store.status("C"))
}

func TestBoss_CancelledJobIsKilledOnceAndFreesCapacity(t *testing.T) {
	h := seed(t)
	ctx := context.Background()
	pidA := h.pidOf("A")

	h.store.cancel("A")

	entries, size := h.boss.Cleanup(ctx)
	assert.Equal(t, 1, size)
	require.Len(t, entries, 1)
	assert.Equal(t, "B", entries[0].JobID)
	assert.Equal(t, 1, h.procs.terminations(pidA))

	assert.Equal(t, 1, h.boss.iterate(ctx))
	assert.Equal(t, []string{"B", "C"}, h.boss.RunningSet().IDs())
	assert.Equal(t, 1, h.procs.terminations(pidA))
	assert.Equal(t, float64(1), testutil.ToFloat64(h.boss.metrics.Killed))
	assert.Contains(t, h.publisher.types(), events.JobKilled)
}

func TestBoss_LostEmployeeIsDroppedWithoutRedo(t *testing.T) {
	h := seed(t)
	pidB := h.pidOf("B")

	h.procs.die(pidB)

	_, size := h.boss.Cleanup(context.Background())
	assert.Equal(t, 1, size)
	assert.False(t, h.boss.RunningSet().Has("B"))
	assert.Zero(t, h.procs.terminations(pidB))
	assert.Zero(t, h.store.redoCount("B"))
	assert.Equal(t, domain.JobStatusRunning, h.store.status("B"))
	assert.Equal(t, float64(1), testutil.ToFloat64(h.boss.metrics.Lost))
	assert.Contains(t, h.publisher.types(), events.JobLost)
}

func TestBoss_FinishedJobsLeaveTheSet(t *testing.T) {
	h := seed(t)
	pidA := h.pidOf("A")

	h.store.setStatus("A", domain.JobStatusCompleted)
	h.procs.die(pidA)

	_, size := h.boss.Cleanup(context.Background())
	assert.Equal(t, 1, size)
	assert.Zero(t, h.procs.terminations(pidA))
	assert.Equal(t, float64(0), testutil.ToFloat64(h.boss.metrics.Lost))
}

func TestBoss_ShutdownStopsAndRedoesRemaining(t *testing.T) {
	h := seed(t)
	ctx := context.Background()

	// A finishes, B is lost, C runs: only C remains at shutdown
	h.store.setStatus("A", domain.JobStatusCompleted)
	h.procs.die(h.pidOf("B"))
	require.Equal(t, 1, h.boss.iterate(ctx))
	pidC := h.pidOf("C")
	require.NotZero(t, pidC)

	c := NewCoordinator(h.boss)
	stopped, err := c.Shutdown(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stopped)
	assert.Equal(t, 1, h.procs.terminations(pidC))
	assert.Equal(t, 1, h.store.redoCount("C"))
	assert.Equal(t, domain.JobStatusPending, h.store.status("C"))
	assert.Zero(t, h.store.redoCount("B"))
	assert.Zero(t, h.boss.RunningSet().Len())

	// Runs once
	stopped, err = c.Shutdown(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stopped)
	assert.Equal(t, 1, h.procs.terminations(pidC))
	assert.Equal(t, 1, h.store.redoCount("C"))
}

func TestBoss_ShutdownRedoesEvenWhenTerminateFails(t *testing.T) {
	h := seed(t)
	ctx := context.Background()

	failing := &failingTerminate{fakeProcs: h.procs}
	h.boss.procs = failing

	stopped, err := NewCoordinator(h.boss).Shutdown(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to terminate job A")
	assert.Equal(t, 2, stopped)
	assert.Equal(t, 1, h.store.redoCount("A"))
	assert.Equal(t, 1, h.store.redoCount("B"))
	assert.Equal(t, 2, failing.calls)
}

func TestBoss_ShutdownOnlyInBossProcess(t *testing.T) {
	h := seed(t)

	c := NewCoordinator(h.boss)
	c.getpid = func() int { return c.pid + 1 }

	stopped, err := c.Shutdown(context.Background())
	assert.ErrorIs(t, err, ErrForeignProcess)
	assert.Zero(t, stopped)
	assert.Zero(t, h.procs.totalTerminations())
	assert.Equal(t, 2, h.boss.RunningSet().Len())

	// The boss process can still tear down afterwards
	c.getpid = func() int { return c.pid }
	stopped, err = c.Shutdown(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stopped)
}

func TestBoss_ShutdownWithNothingRunning(t *testing.T) {
	h := newHarness(3)

	stopped, err := NewCoordinator(h.boss).Shutdown(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stopped)
}

func TestBoss_CleanupIsIdempotent(t *testing.T) {
	h := newHarness(4)
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		h.store.add(fmt.Sprintf("job-%d", i), fmt.Sprintf("type%d", i), "run")
	}
	require.Equal(t, 4, h.boss.iterate(ctx))

	h.store.cancel("job-1")
	h.procs.die(h.pidOf("job-2"))

	first, n1 := h.boss.Cleanup(ctx)
	terminations := h.procs.totalTerminations()

	second, n2 := h.boss.Cleanup(ctx)
	assert.Equal(t, first, second)
	assert.Equal(t, n1, n2)
	assert.Equal(t, 2, n2)
	assert.Equal(t, terminations, h.procs.totalTerminations())
}

func TestBoss_StoreErrorKeepsRunningSet(t *testing.T) {
	h := seed(t)
	h.store.cancel("A")
	h.store.setReadErr(errStoreDown)

	entries, size := h.boss.Cleanup(context.Background())
	assert.Equal(t, 2, size)
	assert.Len(t, entries, 2)
	assert.Zero(t, h.procs.totalTerminations())
	assert.Equal(t, float64(1), testutil.ToFloat64(h.boss.metrics.CleanupErrors))

	// The loop absorbs it too
	assert.NotPanics(t, func() { h.boss.iterate(context.Background()) })

	h.store.setReadErr(nil)
	_, size = h.boss.Cleanup(context.Background())
	assert.Equal(t, 1, size)
}

func TestBoss_RunningSetNeverExceedsLimit(t *testing.T) {
	h := newHarness(3)
	ctx := context.Background()
	for i := 0; i < 12; i++ {
		h.store.add(fmt.Sprintf("job-%02d", i), fmt.Sprintf("type%d", i%5), "run")
	}

	for round := 0; round < 12; round++ {
		h.boss.iterate(ctx)
		_, size := h.boss.Cleanup(ctx)
		require.LessOrEqual(t, size, 3)
		require.LessOrEqual(t, h.boss.RunningSet().Len(), 3)

		// Finish one employee per round
		if ids := h.boss.RunningSet().IDs(); len(ids) > 0 {
			h.store.setStatus(ids[0], domain.JobStatusCompleted)
		}
	}
}

func TestBoss_DispatchOrderIsDeterministic(t *testing.T) {
	run := func() []string {
		h := newHarness(1)
		ctx := context.Background()
		h.store.add("1", "mail", "send")
		h.store.add("2", "report", "build")
		h.store.add("3", "mail", "send")
		h.store.add("4", "cleanup", "purge")

		for i := 0; i < 8; i++ {
			h.boss.iterate(ctx)
			for _, id := range h.boss.RunningSet().IDs() {
				h.store.setStatus(id, domain.JobStatusCompleted)
			}
		}
		return h.launcher.order()
	}

	first := run()
	assert.Equal(t, []string{"1", "2", "3", "4"}, first)
	assert.Equal(t, first, run())
}

func TestBoss_OneJobPerPathPerPass(t *testing.T) {
	h := newHarness(5)
	ctx := context.Background()
	h.store.add("first", "mail", "send")
	h.store.add("second", "mail", "send")

	assert.Equal(t, 1, h.boss.iterate(ctx))
	assert.Equal(t, []string{"first"}, h.launcher.order())

	assert.Equal(t, 1, h.boss.iterate(ctx))
	assert.Equal(t, []string{"first", "second"}, h.launcher.order())
}

func TestBoss_DispatchErrorsAreSkipped(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		reason string
	}{
		{name: "already claimed", err: domain.ErrJobAlreadyClaimed, reason: "already_claimed"},
		{name: "unknown type", err: fmt.Errorf("%w: ghost", domain.ErrUnknownJobType), reason: "unknown_type"},
		{name: "launch failure", err: errors.New("exec format error"), reason: "launch"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(2)
			h.store.add("A", "alpha", "run")
			h.store.add("B", "beta", "run")
			h.launcher.failWith["A"] = tt.err

			assert.Equal(t, 1, h.boss.iterate(context.Background()))
			assert.Equal(t, []string{"B"}, h.boss.RunningSet().IDs())
			assert.Equal(t, float64(1), testutil.ToFloat64(h.boss.metrics.DispatchErrors.WithLabelValues(tt.reason)))
		})
	}
}

func TestBoss_RunStopsOnCancel(t *testing.T) {
	h := newHarness(2)
	h.store.add("A", "alpha", "run")
	h.store.add("B", "beta", "run")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.boss.Run(ctx) }()

	require.Eventually(t, func() bool {
		return len(h.launcher.order()) == 2
	}, 2*time.Second, 5*time.Millisecond)

	// Jobs queued later are picked up once capacity frees
	h.store.add("C", "gamma", "run")
	h.store.setStatus("A", domain.JobStatusCompleted)
	require.Eventually(t, func() bool {
		return len(h.launcher.order()) == 3
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

type failingTerminate struct {
	*fakeProcs
	calls int
}

func (f *failingTerminate) Terminate(pid int) error {
	f.calls++
	return errors.New("operation not permitted")
}
