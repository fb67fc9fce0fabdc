// Package process talks to the OS process table on behalf of the boss: it starts
// employees, probes whether they are alive and asks them to stop.
package process

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// TerminateSignal is sent to employees the boss wants gone. It is trappable so the
// employee can finalise its job before exiting.
const TerminateSignal = unix.SIGHUP

// Supervisor implements the kill and liveness primitives over kill(2)
type Supervisor struct {
	signal unix.Signal
}

// NewSupervisor returns a supervisor that stops employees with TerminateSignal
func NewSupervisor() *Supervisor {
	return &Supervisor{signal: TerminateSignal}
}

// Terminate asks the process to stop. A process that is already gone counts as stopped.
func (s *Supervisor) Terminate(pid int) error {
	// kill(0) and kill(-n) address process groups
	if pid <= 0 {
		return nil
	}

	err := unix.Kill(pid, s.signal)
	if err == nil || errors.Is(err, unix.ESRCH) {
		return nil
	}
	return fmt.Errorf("failed to signal pid %d: %w", pid, err)
}

// Alive probes the pid with signal 0, which checks existence without delivering anything
func (s *Supervisor) Alive(pid int) bool {
	if pid <= 0 {
		return false
	}

	err := unix.Kill(pid, 0)
	// EPERM: it exists, it just isn't ours
	return err == nil || !errors.Is(err, unix.ESRCH)
}
