//go:build windows

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

const processQueryLimitedInformation = 0x1000

// GracefulTerminate stops p. Windows has no SIGTERM for console children,
// so this is TerminateProcess.
func GracefulTerminate(p *os.Process) error {
	return p.Kill()
}

// TerminateByPID terminates pid.
func TerminateByPID(pid int) error {
	if pid <= 0 {
		return fmt.Errorf("procutil: invalid pid %d", pid)
	}
	if !IsProcessAlive(pid) {
		return ErrNoProcess
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return ErrNoProcess
	}
	defer p.Release()
	return p.Kill()
}

// IsProcessAlive reports whether a handle to pid can be opened.
func IsProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	h, err := syscall.OpenProcess(processQueryLimitedInformation, false, uint32(pid))
	if err != nil {
		return false
	}
	syscall.CloseHandle(h)
	return true
}
