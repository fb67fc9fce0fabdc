package process

import (
	"os/exec"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startProcess(t *testing.T, script string) *exec.Cmd {
	t.Helper()
	cmd := exec.Command("sh", "-c", script)
	require.NoError(t, cmd.Start())
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		_, _ = cmd.Process.Wait()
	})
	return cmd
}

func waitExit(t *testing.T, cmd *exec.Cmd) syscall.WaitStatus {
	t.Helper()
	done := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("process did not exit")
	}
	return cmd.ProcessState.Sys().(syscall.WaitStatus)
}

func TestSupervisor_TerminateLiveProcess(t *testing.T) {
	s := NewSupervisor()
	cmd := startProcess(t, "sleep 30")
	pid := cmd.Process.Pid

	assert.True(t, s.Alive(pid))
	require.NoError(t, s.Terminate(pid))

	status := waitExit(t, cmd)
	assert.True(t, status.Signaled())
	assert.Equal(t, syscall.SIGHUP, status.Signal())

	// Reaped: gone from the process table
	assert.False(t, s.Alive(pid))
	// Already dead counts as success
	assert.NoError(t, s.Terminate(pid))
}

func TestSupervisor_SignalIsTrappable(t *testing.T) {
	s := NewSupervisor()
	cmd := startProcess(t, `trap 'exit 7' HUP; while true; do sleep 0.05; done`)

	// Give the shell a moment to install its trap
	time.Sleep(200 * time.Millisecond)
	require.NoError(t, s.Terminate(cmd.Process.Pid))

	status := waitExit(t, cmd)
	assert.False(t, status.Signaled())
	assert.Equal(t, 7, status.ExitStatus())
}

func TestSupervisor_NonPositivePids(t *testing.T) {
	s := NewSupervisor()

	assert.False(t, s.Alive(0))
	assert.False(t, s.Alive(-1))
	assert.NoError(t, s.Terminate(0))
	assert.NoError(t, s.Terminate(-1))
}
