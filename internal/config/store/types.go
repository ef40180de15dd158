package store

import "time"

// State is the persisted lifecycle state. "uninitialized" is never stored:
// it is the absence of a status row.
type State string

const (
	StateInitialized State = "initialized"
	StateStarted     State = "started"
	StateStopped     State = "stopped"
	StateClosed      State = "closed"
)

// Valid reports whether s is a storable state.
func (s State) Valid() bool {
	switch s {
	case StateInitialized, StateStarted, StateStopped, StateClosed:
		return true
	}
	return false
}

// Mode selects which runtime adapter a start uses.
type Mode string

const (
	ModeClient Mode = "client"
	ModeServer Mode = "server"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeClient || m == ModeServer
}

// Status is the singleton process-status record.
type Status struct {
	State     State
	Mode      Mode
	UpdatedAt time.Time
}

// ClientConfig is the singleton client-mode configuration. Durations are
// whole seconds, matching the engine's setters.
type ClientConfig struct {
	RemoteURL                 string
	HTTPUpgradePathPrefix     string
	HTTPUpgradeCredentials    string // plaintext; encrypted at rest
	TLSVerify                 bool
	TLSSNIOverride            string
	TLSSNIDisable             bool
	WebsocketPingFrequency    int
	WebsocketMaskFrame        bool
	ConnectionMinIdle         int
	ConnectionRetryMaxBackoff int
	HTTPProxy                 string
	WorkerThreads             int
	UpdatedAt                 time.Time
}

// DefaultClientConfig returns the values a freshly seeded client_config row holds.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		HTTPUpgradePathPrefix:     "v1",
		WebsocketPingFrequency:    30,
		ConnectionRetryMaxBackoff: 300,
		WorkerThreads:             2,
	}
}

// ServerConfig is the singleton server-mode configuration.
type ServerConfig struct {
	BindURL                string
	TLSCertificate         string
	TLSPrivateKey          string
	TLSClientCACerts       string
	WebsocketPingFrequency int
	WebsocketMaskFrame     bool
	WorkerThreads          int
	UpdatedAt              time.Time
}

// DefaultServerConfig returns the values a freshly seeded server_config row holds.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		WebsocketPingFrequency: 30,
		WorkerThreads:          2,
	}
}

// Header is an outbound HTTP header sent on the upgrade request.
type Header struct {
	ID        int64
	Name      string
	Value     string
	CreatedAt time.Time
}
