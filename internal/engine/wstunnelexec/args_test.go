package wstunnelexec

import (
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phantomwg/wsbridge/internal/engine"
	"github.com/phantomwg/wsbridge/internal/logging"
)

func newTestEngine(t *testing.T, opts Options) *Engine {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	return New(opts)
}

func TestClientArgs(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, Options{})
	cs, err := e.NewClient("wss://vpn.example.com:443", engine.LogInfo)
	require.NoError(t, err)
	c := cs.(*clientSession)

	require.NoError(t, c.SetHTTPUpgradePathPrefix("secret"))
	require.NoError(t, c.SetHTTPUpgradeCredentials("user:pass"))
	require.NoError(t, c.SetTLSVerify(true))
	require.NoError(t, c.SetTLSSNIOverride("cdn.example.com"))
	require.NoError(t, c.SetTLSSNIDisable(false))
	require.NoError(t, c.SetWebsocketPingFrequency(10))
	require.NoError(t, c.SetWebsocketMaskFrame(true))
	require.NoError(t, c.SetConnectionMinIdle(4))
	require.NoError(t, c.SetConnectionRetryMaxBackoff(60))
	require.NoError(t, c.SetHTTPProxy("proxy.local:3128"))
	require.NoError(t, c.SetWorkerThreads(4))
	require.NoError(t, c.AddHTTPHeader("X-Client", "edge-1"))
	require.NoError(t, c.AddTunnelUDP("127.0.0.1", 51820, "10.0.0.1", 51820, 0))
	require.NoError(t, c.AddTunnelTCP("127.0.0.1", 2222, "10.0.0.2", 22))
	require.NoError(t, c.AddTunnelSOCKS5("::1", 1080, 120))

	assert.Equal(t, []string{
		"client",
		"--http-upgrade-path-prefix", "secret",
		"--http-upgrade-credentials", "user:pass",
		"--tls-verify-certificate",
		"--tls-sni-override", "cdn.example.com",
		"--websocket-ping-frequency", "10s",
		"--websocket-mask-frame",
		"--connection-min-idle", "4",
		"--connection-retry-max-backoff", "60s",
		"--http-proxy", "proxy.local:3128",
		"--http-headers", "X-Client: edge-1",
		"--local-to-remote", "udp://127.0.0.1:51820:10.0.0.1:51820",
		"--local-to-remote", "tcp://127.0.0.1:2222:10.0.0.2:22",
		"--local-to-remote", "socks5://[::1]:1080?timeout_sec=120",
		"wss://vpn.example.com:443",
	}, c.args())

	env := c.environ()
	assert.Contains(t, env, "TOKIO_WORKER_THREADS=4")
	assert.Contains(t, env, "RUST_LOG=info")
}

func TestServerArgs(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, Options{Env: []string{"EXTRA=1"}})
	ss, err := e.NewServer("wss://0.0.0.0:8443", engine.LogDebug)
	require.NoError(t, err)
	s := ss.(*serverSession)

	require.NoError(t, s.SetTLSCertificate("/etc/wsbridge/cert.pem"))
	require.NoError(t, s.SetTLSPrivateKey("/etc/wsbridge/key.pem"))
	require.NoError(t, s.SetWebsocketMaskFrame(false))
	require.NoError(t, s.AddRestrictTo("127.0.0.1:51820"))
	require.NoError(t, s.AddRestrictPathPrefix("secret"))

	assert.Equal(t, []string{
		"server",
		"--tls-certificate", "/etc/wsbridge/cert.pem",
		"--tls-private-key", "/etc/wsbridge/key.pem",
		"--restrict-to", "127.0.0.1:51820",
		"--restrict-http-upgrade-path-prefix", "secret",
		"wss://0.0.0.0:8443",
	}, s.args())

	env := s.environ()
	assert.Contains(t, env, "EXTRA=1")
	assert.Contains(t, env, "RUST_LOG=debug")
	for _, kv := range env {
		assert.False(t, strings.HasPrefix(kv, "TOKIO_WORKER_THREADS="), "worker threads were never set")
	}
}

func TestSetterValidation(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, Options{})
	cs, err := e.NewClient("wss://vpn.example.com", engine.LogError)
	require.NoError(t, err)

	tests := []struct {
		name string
		call func() error
	}{
		{"empty prefix", func() error { return cs.SetHTTPUpgradePathPrefix(" ") }},
		{"negative ping", func() error { return cs.SetWebsocketPingFrequency(-1) }},
		{"zero workers", func() error { return cs.SetWorkerThreads(0) }},
		{"header name with colon", func() error { return cs.AddHTTPHeader("X:Y", "v") }},
		{"header value with newline", func() error { return cs.AddHTTPHeader("X", "a\nb") }},
		{"udp port zero", func() error { return cs.AddTunnelUDP("127.0.0.1", 0, "10.0.0.1", 1, 0) }},
		{"tcp missing remote", func() error { return cs.AddTunnelTCP("127.0.0.1", 80, "", 80) }},
		{"socks5 port too large", func() error { return cs.AddTunnelSOCKS5("127.0.0.1", 70000, 0) }},
		{"negative timeout", func() error { return cs.AddTunnelSOCKS5("127.0.0.1", 1080, -5) }},
	}
	for _, tt := range tests {
		err := tt.call()
		require.Error(t, err, tt.name)
		assert.Equal(t, engine.CodeInvalidParam, engine.CodeOf(err), tt.name)
	}

	assert.Equal(t, []string{"client", "wss://vpn.example.com"}, cs.(*clientSession).args())
}

func TestNewSessionValidation(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, Options{})

	_, err := e.NewClient("  ", engine.LogError)
	assert.Equal(t, engine.CodeInvalidParam, engine.CodeOf(err))

	_, err = e.NewClient("https://vpn.example.com", engine.LogError)
	assert.Equal(t, engine.CodeInvalidParam, engine.CodeOf(err))

	_, err = e.NewServer("0.0.0.0:8443", engine.LogError)
	assert.Equal(t, engine.CodeInvalidParam, engine.CodeOf(err))

	_, err = e.NewServer("wss://0.0.0.0:8443", engine.LogLevel(9))
	assert.Equal(t, engine.CodeInvalidParam, engine.CodeOf(err))
}

func TestFreedSessionRejectsSetters(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, Options{})
	ss, err := e.NewServer("wss://0.0.0.0:8443", engine.LogError)
	require.NoError(t, err)
	ss.Free()
	ss.Free()

	err = ss.AddRestrictTo("127.0.0.1:22")
	assert.Equal(t, engine.CodeConfigNull, engine.CodeOf(err))
	err = ss.Start()
	assert.Equal(t, engine.CodeConfigNull, engine.CodeOf(err))
}

func TestLineLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		line string
		want string
	}{
		{"2024-05-01T10:00:00.000Z ERROR wstunnel::tunnel: connection refused", "error"},
		{"2024-05-01T10:00:00.000Z  WARN wstunnel: retrying", "warning"},
		{"2024-05-01T10:00:00.000Z  INFO wstunnel: listening", "info"},
		{"plain output", "debug"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, lineLevel(tt.line).String(), tt.line)
	}
}

func TestPumpLineCleanup(t *testing.T) {
	t.Parallel()

	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	var tail stderrTail
	input := "\x1b[2m2024-05-01T10:00:00Z\x1b[0m \x1b[31mERROR\x1b[0m boom\n\n   \nno colour\n" + strings.Repeat("x", 2*maxLineBytes) + "\n"
	require.NoError(t, pump(strings.NewReader(input), logger, &tail))

	entries := hook.AllEntries()
	require.Len(t, entries, 3)
	assert.Equal(t, "2024-05-01T10:00:00Z ERROR boom", entries[0].Message)
	assert.Equal(t, logrus.ErrorLevel, entries[0].Level)
	assert.Equal(t, "no colour", entries[1].Message)
	assert.Len(t, entries[2].Message, maxLineBytes)
	assert.Equal(t, "2024-05-01T10:00:00Z ERROR boom", tail.last())
}

func TestPumpSurvivesOverlongLine(t *testing.T) {
	t.Parallel()

	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	var tail stderrTail
	input := "ERROR " + strings.Repeat("y", 70000) + "\n" +
		"INFO after\n" +
		"WARN " + strings.Repeat("z", 5000) + "\n" +
		"ERROR last without newline"
	require.NoError(t, pump(strings.NewReader(input), logger, &tail))

	entries := hook.AllEntries()
	require.Len(t, entries, 4)
	assert.Len(t, entries[0].Message, maxLineBytes)
	assert.Equal(t, logrus.ErrorLevel, entries[0].Level)
	assert.Equal(t, "INFO after", entries[1].Message)
	assert.Equal(t, logrus.WarnLevel, entries[2].Level)
	assert.Len(t, entries[2].Message, maxLineBytes)
	assert.Equal(t, "ERROR last without newline", entries[3].Message)
	assert.Equal(t, "ERROR last without newline", tail.last())
}

func TestStderrTailPrefersErrors(t *testing.T) {
	t.Parallel()

	var tail stderrTail
	assert.Empty(t, tail.last())

	tail.observe("INFO starting")
	assert.Equal(t, "INFO starting", tail.last())

	tail.observe("ERROR bind failed")
	tail.observe("INFO shutting down")
	assert.Equal(t, "ERROR bind failed", tail.last())
}
