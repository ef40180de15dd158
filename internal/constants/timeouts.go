package constants

import "time"

// Shared duration vocabulary used by timeouts, polling and retry checks.
const (
	Duration50Milliseconds  = 50 * time.Millisecond
	Duration250Milliseconds = 250 * time.Millisecond
	Duration500Milliseconds = 500 * time.Millisecond

	Duration2Seconds  = 2 * time.Second
	Duration3Seconds  = 3 * time.Second
	Duration5Seconds  = 5 * time.Second
	Duration10Seconds = 10 * time.Second
)

// Store timeouts. Controller operations take no deadline, so every store call
// they make runs under one of these.
const (
	StoreOpenTimeout      = Duration10Seconds
	StoreOperationTimeout = Duration5Seconds
)

// Session lifecycle timing.
const (
	// SessionStopTimeout bounds how long Stop waits for the engine to report
	// that the session is no longer running.
	SessionStopTimeout      = Duration5Seconds
	SessionStopPollInterval = Duration50Milliseconds

	// ProcessSettleDelay is how long a freshly launched engine process must
	// stay alive before Start reports success.
	ProcessSettleDelay = Duration500Milliseconds
	// ProcessTerminateGrace is the wait between SIGTERM and SIGKILL.
	ProcessTerminateGrace = Duration3Seconds
)

// CLI timing.
const (
	RunStatusPollInterval = Duration2Seconds
	// RestartInterval and RestartBurst bound `run --restart`: at most
	// RestartBurst restarts back to back, then one per RestartInterval.
	RestartInterval = Duration10Seconds
	RestartBurst    = 3
	// ProbeTimeout bounds the websocket handshake of `wsbridge probe`.
	ProbeTimeout = Duration5Seconds
	// EngineVersionTimeout bounds `wstunnel --version`.
	EngineVersionTimeout = Duration5Seconds
)
