//go:build !windows

// Package procutil signals and reaps the wstunnel child process and the
// `wsbridge run` process named in a pid file.
package procutil

import (
	"errors"
	"fmt"
	"os"
	"syscall"
)

// ErrNoProcess is returned by TerminateByPID when pid names no process.
var ErrNoProcess = errors.New("procutil: no such process")

// GracefulTerminate asks p to shut down with SIGTERM. wstunnel closes its
// listeners and exits on it.
func GracefulTerminate(p *os.Process) error {
	return p.Signal(syscall.SIGTERM)
}

// TerminateByPID sends SIGTERM to pid. A pid that is already gone reports
// ErrNoProcess so callers can clean up a stale pid file.
func TerminateByPID(pid int) error {
	if pid <= 0 {
		return fmt.Errorf("procutil: invalid pid %d", pid)
	}
	err := syscall.Kill(pid, syscall.SIGTERM)
	if errors.Is(err, syscall.ESRCH) {
		return ErrNoProcess
	}
	return err
}

// IsProcessAlive reports whether pid exists. A process owned by another user
// (EPERM on the probe signal) counts as alive.
func IsProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}
