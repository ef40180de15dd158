package procutil

import (
	"errors"
	"os"
	"os/exec"
	"runtime"
	"testing"
	"time"
)

const missingPID = 1<<30 - 1

func TestIsProcessAlive(t *testing.T) {
	cases := []struct {
		name string
		pid  int
		want bool
	}{
		{"self", os.Getpid(), true},
		{"missing", missingPID, false},
		{"zero", 0, false},
		{"negative", -1, false},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			if got := IsProcessAlive(tc.pid); got != tc.want {
				t.Fatalf("IsProcessAlive(%d) = %v, want %v", tc.pid, got, tc.want)
			}
		})
	}
}

func TestTerminateByPIDMissing(t *testing.T) {
	if err := TerminateByPID(missingPID); !errors.Is(err, ErrNoProcess) {
		t.Fatalf("expected ErrNoProcess, got %v", err)
	}
	if err := TerminateByPID(0); err == nil || errors.Is(err, ErrNoProcess) {
		t.Fatalf("expected invalid pid error, got %v", err)
	}
}

// longRunningCmd returns a cross-platform exec.Cmd that blocks until killed.
func longRunningCmd() *exec.Cmd {
	if runtime.GOOS == "windows" {
		// "waitfor" blocks indefinitely (signal name will never arrive).
		return exec.Command("waitfor", "WsbridgeTestSignalNeverSent", "/T", "300")
	}
	return exec.Command("sleep", "300")
}

func TestGracefulTerminate(t *testing.T) {
	cmd := longRunningCmd()
	if err := cmd.Start(); err != nil {
		t.Fatalf("failed to start subprocess: %v", err)
	}

	if err := GracefulTerminate(cmd.Process); err != nil {
		t.Fatalf("GracefulTerminate returned error: %v", err)
	}

	// Wait for the process to exit so we don't leave zombies.
	_ = cmd.Wait()

	// Give OS a moment to reap the process.
	time.Sleep(50 * time.Millisecond)

	if IsProcessAlive(cmd.Process.Pid) {
		t.Fatal("process should not be alive after GracefulTerminate")
	}
}

func TestTerminateByPID(t *testing.T) {
	cmd := longRunningCmd()
	if err := cmd.Start(); err != nil {
		t.Fatalf("failed to start subprocess: %v", err)
	}
	pid := cmd.Process.Pid

	if err := TerminateByPID(pid); err != nil {
		t.Fatalf("TerminateByPID returned error: %v", err)
	}

	_ = cmd.Wait()

	// Give OS a moment to reap the process.
	time.Sleep(50 * time.Millisecond)

	if IsProcessAlive(pid) {
		t.Fatal("process should not be alive after TerminateByPID")
	}
}

func TestTerminateExitsGracefully(t *testing.T) {
	cmd := longRunningCmd()
	if err := cmd.Start(); err != nil {
		t.Fatalf("failed to start subprocess: %v", err)
	}
	exited := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(exited)
	}()

	killed, err := Terminate(cmd.Process, exited, 5*time.Second)
	if err != nil {
		t.Fatalf("Terminate returned error: %v", err)
	}
	if runtime.GOOS != "windows" && killed {
		t.Fatal("sleep should exit on SIGTERM without being killed")
	}
	select {
	case <-exited:
	default:
		t.Fatal("Terminate returned before the process exited")
	}
}

func TestTerminateKillsAfterGrace(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("signals are not delivered on windows")
	}
	cmd := exec.Command("sh", "-c", "trap '' TERM; exec sleep 300")
	if err := cmd.Start(); err != nil {
		t.Fatalf("failed to start subprocess: %v", err)
	}
	exited := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(exited)
	}()
	// Give the shell time to install its trap.
	time.Sleep(100 * time.Millisecond)

	killed, err := Terminate(cmd.Process, exited, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("Terminate returned error: %v", err)
	}
	if !killed {
		t.Fatal("expected the process to be killed after the grace period")
	}
}

func TestTerminateAlreadyExited(t *testing.T) {
	exited := make(chan struct{})
	close(exited)

	killed, err := Terminate(&os.Process{Pid: missingPID}, exited, time.Second)
	if err != nil || killed {
		t.Fatalf("expected no-op for exited process, got killed=%v err=%v", killed, err)
	}
}
