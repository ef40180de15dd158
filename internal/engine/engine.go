// Package engine describes the control surface of the tunnel engine that a
// wsbridge session drives. Implementations live in subpackages.
package engine

// Session is a single client or server instance built by an Engine. Setters
// are only meaningful before Start. Free releases the session and must be
// called exactly once, whether or not Start succeeded.
type Session interface {
	Start() error
	Stop() error
	IsRunning() bool
	// LastError reports the most recent failure text recorded by the engine.
	LastError() (string, bool)
	Free()
}

// ClientSession dials a remote wstunnel server and exposes local tunnels.
type ClientSession interface {
	Session

	SetHTTPUpgradePathPrefix(prefix string) error
	SetHTTPUpgradeCredentials(credentials string) error
	SetTLSVerify(verify bool) error
	SetTLSSNIOverride(domain string) error
	SetTLSSNIDisable(disable bool) error
	SetWebsocketPingFrequency(secs int) error
	SetWebsocketMaskFrame(mask bool) error
	SetConnectionMinIdle(count int) error
	SetConnectionRetryMaxBackoff(secs int) error
	SetHTTPProxy(proxy string) error
	SetWorkerThreads(threads int) error

	AddHTTPHeader(name, value string) error

	AddTunnelUDP(localHost string, localPort int, remoteHost string, remotePort int, timeoutSecs int) error
	AddTunnelTCP(localHost string, localPort int, remoteHost string, remotePort int) error
	AddTunnelSOCKS5(localHost string, localPort int, timeoutSecs int) error
}

// ServerSession accepts websocket upgrades on a bind URL.
type ServerSession interface {
	Session

	SetTLSCertificate(path string) error
	SetTLSPrivateKey(path string) error
	SetTLSClientCACerts(path string) error
	SetWebsocketPingFrequency(secs int) error
	SetWebsocketMaskFrame(mask bool) error
	SetWorkerThreads(threads int) error

	AddRestrictTo(target string) error
	AddRestrictPathPrefix(prefix string) error
}

// Engine constructs sessions. An empty URL is rejected with CodeInvalidParam.
type Engine interface {
	NewClient(remoteURL string, level LogLevel) (ClientSession, error)
	NewServer(bindURL string, level LogLevel) (ServerSession, error)
}
