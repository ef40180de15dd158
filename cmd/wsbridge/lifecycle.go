package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/phantomwg/wsbridge/internal/config/store"
	"github.com/phantomwg/wsbridge/internal/constants"
	"github.com/phantomwg/wsbridge/internal/controller"
	"github.com/phantomwg/wsbridge/internal/engine"
	"github.com/phantomwg/wsbridge/internal/procutil"
)

func newInitCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "init",
		Short:         "Create or reopen the state database",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          initInstance,
	}
	cmd.Flags().String("mode", "", "Session mode: client or server (default: keep stored mode, client for a new database)")
	return cmd
}

func initInstance(cmd *cobra.Command, _ []string) error {
	out := newOutputFormatter(cmd)

	dbPath, err := resolveDB(cmd)
	if err != nil {
		return out.Error("Failed to resolve state database", err)
	}
	mode, _ := cmd.Flags().GetString("mode")

	logger, closeLog, err := newLogger(cmd, "")
	if err != nil {
		return out.Error("Invalid logging flags", err)
	}
	defer closeLog()

	ctl := newController(cmd, logger)
	if err := ctl.Init(dbPath, store.Mode(strings.ToLower(mode))); err != nil {
		return out.Error("Failed to initialize", err)
	}
	report := ctl.Status()
	if err := ctl.Close(); err != nil {
		return out.Error("Failed to close state database", err)
	}

	data := map[string]any{"db": dbPath}
	if report.Mode != nil {
		data["mode"] = *report.Mode
	}
	return out.Success(fmt.Sprintf("Initialized %s", dbPath), data)
}

func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the configured session and keep it running until interrupted",
		Long: `Run opens the state database, starts a wstunnel session built from the stored
configuration and blocks until SIGINT/SIGTERM (or "wsbridge stop"). The session
is stopped and the database closed on exit.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runSession,
	}
	cmd.Flags().String("engine-log-level", "error", "wstunnel log level (error, warn, info, debug, trace)")
	cmd.Flags().String("mode", "", "Switch to this mode before starting")
	cmd.Flags().Bool("restart", false, "Restart the session when the engine exits unexpectedly")
	return cmd
}

func runSession(cmd *cobra.Command, _ []string) error {
	out := newOutputFormatter(cmd)

	levelName, _ := cmd.Flags().GetString("engine-log-level")
	level, err := engine.ParseLogLevel(levelName)
	if err != nil {
		return out.Error("Invalid engine log level", err)
	}
	mode, _ := cmd.Flags().GetString("mode")

	dbPath, err := resolveDB(cmd)
	if err != nil {
		return out.Error("Failed to resolve state database", err)
	}
	logger, closeLog, err := newLogger(cmd, filepath.Join(logDir(cmd), logFileName))
	if err != nil {
		return out.Error("Invalid logging flags", err)
	}
	defer closeLog()

	pidPath := filepath.Join(runDir(cmd), pidFileName)
	if pid, err := readPIDFile(pidPath); err == nil && pid != os.Getpid() && procutil.IsProcessAlive(pid) {
		return out.Error("Already running", fmt.Errorf("pid %d holds %s", pid, pidPath))
	}

	ctl := newController(cmd, logger)
	defer ctl.Close()

	if err := ctl.Init(dbPath, store.Mode(strings.ToLower(mode))); err != nil {
		return out.Error("Failed to initialize", err)
	}
	if err := ctl.Start(level); err != nil {
		return out.Error("Failed to start session", err)
	}

	if err := writePIDFile(pidPath); err != nil {
		logger.WithError(err).Warn("write pid file failed; wsbridge stop will not find this process")
	}
	defer os.Remove(pidPath)

	report := ctl.Status()
	if err := out.Render(CommandResult{
		Data: report,
		HumanReadable: func() error {
			fmt.Fprintf(out.Writer(), "Session %s started (%s). Press Ctrl+C to stop.\n", deref(report.SessionID), deref(report.Mode))
			return nil
		},
	}); err != nil {
		return err
	}

	signals := make(chan os.Signal, 1)
	notifyRunSignals(signals)
	defer stopRunSignals(signals)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case sig := <-signals:
			logger.WithField("signal", sig.String()).Info("shutting down")
			cancel()
		case <-ctx.Done():
		}
	}()

	restart, _ := cmd.Flags().GetBool("restart")
	sup := &supervisor{
		ctl:     ctl,
		level:   level,
		restart: restart,
		limiter: newRestartLimiter(constants.RestartInterval, constants.RestartBurst),
		poll:    constants.RunStatusPollInterval,
		log:     logger,
	}
	if err := sup.run(ctx); err != nil {
		return out.Error("Session ended unexpectedly", err)
	}
	if err := ctl.Stop(); err != nil {
		logger.WithError(err).Warn("stop failed")
	}
	return nil
}

func newStopCommand() *cobra.Command {
	return &cobra.Command{
		Use:           "stop",
		Short:         "Ask a running `wsbridge run` process to stop",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          stopRunning,
	}
}

func stopRunning(cmd *cobra.Command, _ []string) error {
	out := newOutputFormatter(cmd)

	pidPath := filepath.Join(runDir(cmd), pidFileName)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		return out.Error("No running wsbridge found", err)
	}
	err = procutil.TerminateByPID(pid)
	if errors.Is(err, procutil.ErrNoProcess) {
		os.Remove(pidPath)
		return out.Error("No running wsbridge found", fmt.Errorf("stale pid file for pid %d removed", pid))
	}
	if err != nil {
		return out.Error(fmt.Sprintf("Failed to signal pid %d", pid), err)
	}
	return out.Success(fmt.Sprintf("Sent stop request to pid %d", pid), map[string]any{"pid": pid})
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:           "status",
		Short:         "Show stored state, mode and configuration counts",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          showStatus,
	}
}

// instanceStatus is the status of an instance as seen from outside the
// process that runs it.
type instanceStatus struct {
	State             store.State `json:"status"`
	Mode              store.Mode  `json:"mode"`
	UpdatedAt         string      `json:"updated_at"`
	TunnelsCount      int         `json:"tunnels_count"`
	RestrictionsCount int         `json:"restrictions_count"`
	HeadersCount      int         `json:"headers_count"`
	PID               int         `json:"pid,omitempty"`
	ProcessAlive      bool        `json:"process_alive"`
}

func showStatus(cmd *cobra.Command, _ []string) error {
	out := newOutputFormatter(cmd)

	st, err := openStore(cmd, true)
	if err != nil {
		return out.Error("Failed to open state database", err)
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(context.Background(), constants.StoreOperationTimeout)
	defer cancel()

	status, err := st.GetStatus(ctx)
	if err != nil {
		return out.Error("Failed to read status", err)
	}
	result := instanceStatus{
		State:     status.State,
		Mode:      status.Mode,
		UpdatedAt: status.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if result.TunnelsCount, err = st.CountTunnels(ctx); err != nil {
		return out.Error("Failed to count tunnels", err)
	}
	if result.RestrictionsCount, err = st.CountRestrictions(ctx); err != nil {
		return out.Error("Failed to count restrictions", err)
	}
	if result.HeadersCount, err = st.CountHeaders(ctx); err != nil {
		return out.Error("Failed to count headers", err)
	}
	if pid, err := readPIDFile(filepath.Join(runDir(cmd), pidFileName)); err == nil {
		result.PID = pid
		result.ProcessAlive = procutil.IsProcessAlive(pid)
	}

	return out.Render(CommandResult{
		Data: result,
		HumanReadable: func() error {
			w := out.Writer()
			fmt.Fprintf(w, "State:        %s\n", out.paint(stateColor(controller.State(result.State)), string(result.State)))
			fmt.Fprintf(w, "Mode:         %s\n", result.Mode)
			fmt.Fprintf(w, "Updated:      %s\n", result.UpdatedAt)
			fmt.Fprintf(w, "Tunnels:      %d\n", result.TunnelsCount)
			fmt.Fprintf(w, "Restrictions: %d\n", result.RestrictionsCount)
			fmt.Fprintf(w, "Headers:      %d\n", result.HeadersCount)
			switch {
			case result.PID == 0:
				fmt.Fprintln(w, "Process:      not running")
			case result.ProcessAlive:
				fmt.Fprintf(w, "Process:      %s\n", out.paint(color.FgGreen, fmt.Sprintf("running (pid %d)", result.PID)))
			default:
				fmt.Fprintf(w, "Process:      %s\n", out.paint(color.FgYellow, fmt.Sprintf("stale pid file (pid %d)", result.PID)))
			}
			if result.State == store.StateStarted && !result.ProcessAlive {
				fmt.Fprintln(w, out.paint(color.FgYellow, "Stored state is started but no process is running; the next init or run will recover it."))
			}
			return nil
		},
	})
}

func stateColor(state controller.State) color.Attribute {
	switch state {
	case controller.StateStarted:
		return color.FgGreen
	case controller.StateClosed:
		return color.FgRed
	default:
		return color.FgYellow
	}
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid pid file %s", path)
	}
	return pid, nil
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644)
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
