package adapters

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phantomwg/wsbridge/internal/bridgeerr"
	"github.com/phantomwg/wsbridge/internal/config/store"
	"github.com/phantomwg/wsbridge/internal/engine"
	"github.com/phantomwg/wsbridge/internal/engine/enginetest"
)

func udpTunnel(id int64, port int) store.Tunnel {
	return store.Tunnel{ID: id, Rule: store.UDPTunnel{
		Local:  store.Endpoint{Host: "127.0.0.1", Port: port},
		Remote: store.Endpoint{Host: "127.0.0.1", Port: port},
	}}
}

func clientConfig(remote string) store.ClientConfig {
	cfg := store.DefaultClientConfig()
	cfg.RemoteURL = remote
	return cfg
}

func TestStartClientDefaultsSendNoSetters(t *testing.T) {
	t.Parallel()

	eng := &enginetest.Engine{}
	session, err := StartClient(eng, ClientInput{
		Config:  clientConfig("wss://vpn.example.com:443"),
		Tunnels: []store.Tunnel{udpTunnel(1, 51820)},
	}, engine.LogInfo)
	require.NoError(t, err)
	assert.True(t, session.IsRunning())

	rec := eng.Last()
	assert.Equal(t, "client", rec.Role)
	assert.Equal(t, "wss://vpn.example.com:443", rec.URL)
	assert.Equal(t, engine.LogInfo, rec.Level)
	assert.Equal(t, []string{"AddTunnelUDP", "Start"}, rec.Methods())
	assert.Equal(t, []any{"127.0.0.1", 51820, "127.0.0.1", 51820, 0}, rec.CallsTo("AddTunnelUDP")[0].Args)
}

func TestStartClientAppliesEveryNonDefault(t *testing.T) {
	t.Parallel()

	cfg := clientConfig("wss://vpn.example.com")
	cfg.HTTPUpgradePathPrefix = "secret"
	cfg.HTTPUpgradeCredentials = "user:pass"
	cfg.TLSVerify = true
	cfg.TLSSNIOverride = "cdn.example.com"
	cfg.TLSSNIDisable = true
	cfg.WebsocketPingFrequency = 10
	cfg.WebsocketMaskFrame = true
	cfg.ConnectionMinIdle = 2
	cfg.ConnectionRetryMaxBackoff = 60
	cfg.HTTPProxy = "proxy.local:3128"
	cfg.WorkerThreads = 4

	eng := &enginetest.Engine{}
	_, err := StartClient(eng, ClientInput{
		Config: cfg,
		Tunnels: []store.Tunnel{
			{ID: 1, Rule: store.TCPTunnel{Local: store.Endpoint{Host: "127.0.0.1", Port: 2222}, Remote: store.Endpoint{Host: "10.0.0.2", Port: 22}}},
			{ID: 2, Rule: store.SOCKS5Tunnel{Local: store.Endpoint{Host: "127.0.0.1", Port: 1080}, TimeoutSecs: 30}},
			udpTunnel(3, 51820),
		},
		Headers: []store.Header{
			{ID: 1, Name: "X-First", Value: "1"},
			{ID: 2, Name: "X-Second", Value: "2"},
		},
	}, engine.LogError)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"SetHTTPUpgradePathPrefix",
		"SetHTTPUpgradeCredentials",
		"SetTLSVerify",
		"SetTLSSNIOverride",
		"SetTLSSNIDisable",
		"SetWebsocketPingFrequency",
		"SetWebsocketMaskFrame",
		"SetConnectionMinIdle",
		"SetConnectionRetryMaxBackoff",
		"SetHTTPProxy",
		"SetWorkerThreads",
		"AddHTTPHeader",
		"AddHTTPHeader",
		"AddTunnelTCP",
		"AddTunnelSOCKS5",
		"AddTunnelUDP",
		"Start",
	}, eng.Last().Methods())

	headers := eng.Last().CallsTo("AddHTTPHeader")
	assert.Equal(t, []any{"X-First", "1"}, headers[0].Args)
	assert.Equal(t, []any{"X-Second", "2"}, headers[1].Args)
	assert.Equal(t, []any{"127.0.0.1", 1080, 30}, eng.Last().CallsTo("AddTunnelSOCKS5")[0].Args)
}

func TestStartClientSingleFieldDiff(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*store.ClientConfig)
		method string
		arg    any
	}{
		{"ping", func(c *store.ClientConfig) { c.WebsocketPingFrequency = 0 }, "SetWebsocketPingFrequency", 0},
		{"backoff", func(c *store.ClientConfig) { c.ConnectionRetryMaxBackoff = 30 }, "SetConnectionRetryMaxBackoff", 30},
		{"workers", func(c *store.ClientConfig) { c.WorkerThreads = 1 }, "SetWorkerThreads", 1},
		{"min idle", func(c *store.ClientConfig) { c.ConnectionMinIdle = 5 }, "SetConnectionMinIdle", 5},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := clientConfig("wss://vpn.example.com")
			tt.mutate(&cfg)

			eng := &enginetest.Engine{}
			_, err := StartClient(eng, ClientInput{Config: cfg, Tunnels: []store.Tunnel{udpTunnel(1, 51820)}}, engine.LogError)
			require.NoError(t, err)

			assert.Equal(t, []string{tt.method, "AddTunnelUDP", "Start"}, eng.Last().Methods())
			assert.Equal(t, []any{tt.arg}, eng.Last().CallsTo(tt.method)[0].Args)
		})
	}
}

func TestStartClientValidation(t *testing.T) {
	t.Parallel()

	eng := &enginetest.Engine{}

	_, err := StartClient(eng, ClientInput{Config: clientConfig(""), Tunnels: []store.Tunnel{udpTunnel(1, 1)}}, engine.LogError)
	require.ErrorIs(t, err, bridgeerr.InvalidParam)
	assert.Contains(t, err.Error(), "remote_url")

	_, err = StartClient(eng, ClientInput{Config: clientConfig("wss://vpn.example.com")}, engine.LogError)
	require.ErrorIs(t, err, bridgeerr.InvalidParam)
	assert.Contains(t, err.Error(), "tunnel")

	assert.Empty(t, eng.Sessions(), "validation must happen before a session is built")
}

func TestStartClientFailureFreesSession(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		failOn string
	}{
		{"setter", "SetTLSVerify"},
		{"header", "AddHTTPHeader"},
		{"tunnel", "AddTunnelUDP"},
		{"start", "Start"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			injected := engine.Errorf(engine.CodeInvalidParam, "rejected %s", tt.failOn)
			eng := &enginetest.Engine{FailOn: map[string]error{tt.failOn: injected}}

			cfg := clientConfig("wss://vpn.example.com")
			cfg.TLSVerify = true
			_, err := StartClient(eng, ClientInput{
				Config:  cfg,
				Tunnels: []store.Tunnel{udpTunnel(1, 51820)},
				Headers: []store.Header{{ID: 1, Name: "X-A", Value: "a"}},
			}, engine.LogError)

			require.Error(t, err)
			assert.True(t, errors.Is(err, injected))
			assert.True(t, eng.Last().Freed())
			assert.Equal(t, 0, eng.Live())
		})
	}
}

func TestStartClientConstructionFailure(t *testing.T) {
	t.Parallel()

	eng := &enginetest.Engine{NewErr: engine.Errorf(engine.CodeConfigNull, "allocation failed")}
	_, err := StartClient(eng, ClientInput{Config: clientConfig("wss://vpn.example.com"), Tunnels: []store.Tunnel{udpTunnel(1, 1)}}, engine.LogError)
	require.Error(t, err)
	assert.Equal(t, engine.CodeConfigNull, engine.CodeOf(err))
}

func TestStartServerDefaults(t *testing.T) {
	t.Parallel()

	cfg := store.DefaultServerConfig()
	cfg.BindURL = "wss://0.0.0.0:8443"

	eng := &enginetest.Engine{}
	_, err := StartServer(eng, ServerInput{Config: cfg}, engine.LogWarn)
	require.NoError(t, err)

	rec := eng.Last()
	assert.Equal(t, "server", rec.Role)
	assert.Equal(t, "wss://0.0.0.0:8443", rec.URL)
	assert.Equal(t, []string{"Start"}, rec.Methods())
}

func TestStartServerAppliesTLSAndRestrictions(t *testing.T) {
	t.Parallel()

	cfg := store.DefaultServerConfig()
	cfg.BindURL = "wss://0.0.0.0:8443"
	cfg.TLSCertificate = "/etc/ws/cert.pem"
	cfg.TLSPrivateKey = "/etc/ws/key.pem"
	cfg.TLSClientCACerts = "/etc/ws/ca.pem"
	cfg.WebsocketMaskFrame = true
	cfg.WorkerThreads = 8

	eng := &enginetest.Engine{}
	_, err := StartServer(eng, ServerInput{
		Config: cfg,
		Restrictions: []store.Restriction{
			{ID: 1, Rule: store.PathPrefixRestriction{Prefix: "secret"}},
			{ID: 2, Rule: store.TargetRestriction{Target: "127.0.0.1:51820"}},
		},
	}, engine.LogError)
	require.NoError(t, err)

	rec := eng.Last()
	assert.Equal(t, []string{
		"SetTLSCertificate",
		"SetTLSPrivateKey",
		"SetTLSClientCACerts",
		"SetWebsocketMaskFrame",
		"SetWorkerThreads",
		"AddRestrictPathPrefix",
		"AddRestrictTo",
		"Start",
	}, rec.Methods())
	assert.Equal(t, []any{"127.0.0.1:51820"}, rec.CallsTo("AddRestrictTo")[0].Args)
	assert.Equal(t, []any{8}, rec.CallsTo("SetWorkerThreads")[0].Args)
}

func TestStartServerValidationAndFailure(t *testing.T) {
	t.Parallel()

	eng := &enginetest.Engine{}
	_, err := StartServer(eng, ServerInput{Config: store.DefaultServerConfig()}, engine.LogError)
	require.ErrorIs(t, err, bridgeerr.InvalidParam)
	assert.Contains(t, err.Error(), "bind_url")
	assert.Empty(t, eng.Sessions())

	failing := &enginetest.Engine{FailOn: map[string]error{"Start": engine.Errorf(engine.CodeStartFailed, "port busy")}}
	cfg := store.DefaultServerConfig()
	cfg.BindURL = "wss://0.0.0.0:8443"
	_, err = StartServer(failing, ServerInput{Config: cfg}, engine.LogError)
	require.Error(t, err)
	assert.Equal(t, engine.CodeStartFailed, engine.CodeOf(err))
	assert.Equal(t, 0, failing.Live())
}
