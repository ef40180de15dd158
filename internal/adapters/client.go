// Package adapters turns stored configuration into a started engine session.
//
// Only settings that differ from their seeded defaults are sent to the
// engine, so the engine's own defaults stay authoritative for everything the
// user never changed.
package adapters

import (
	"fmt"
	"strings"

	"github.com/phantomwg/wsbridge/internal/bridgeerr"
	"github.com/phantomwg/wsbridge/internal/config/store"
	"github.com/phantomwg/wsbridge/internal/engine"
)

// ClientInput is everything a client start reads from the store.
type ClientInput struct {
	Config  store.ClientConfig
	Tunnels []store.Tunnel
	Headers []store.Header
}

// clientSetting is one row of the client default-value table.
type clientSetting struct {
	field string
	isSet func(cfg, def store.ClientConfig) bool
	apply func(s engine.ClientSession, cfg store.ClientConfig) error
}

var clientSettings = []clientSetting{
	{
		field: store.ClientHTTPUpgradePathPrefix,
		isSet: func(c, d store.ClientConfig) bool { return c.HTTPUpgradePathPrefix != d.HTTPUpgradePathPrefix },
		apply: func(s engine.ClientSession, c store.ClientConfig) error {
			return s.SetHTTPUpgradePathPrefix(c.HTTPUpgradePathPrefix)
		},
	},
	{
		field: store.ClientHTTPUpgradeCredentials,
		isSet: func(c, d store.ClientConfig) bool { return c.HTTPUpgradeCredentials != d.HTTPUpgradeCredentials },
		apply: func(s engine.ClientSession, c store.ClientConfig) error {
			return s.SetHTTPUpgradeCredentials(c.HTTPUpgradeCredentials)
		},
	},
	{
		field: store.ClientTLSVerify,
		isSet: func(c, d store.ClientConfig) bool { return c.TLSVerify != d.TLSVerify },
		apply: func(s engine.ClientSession, c store.ClientConfig) error { return s.SetTLSVerify(c.TLSVerify) },
	},
	{
		field: store.ClientTLSSNIOverride,
		isSet: func(c, d store.ClientConfig) bool { return c.TLSSNIOverride != d.TLSSNIOverride },
		apply: func(s engine.ClientSession, c store.ClientConfig) error { return s.SetTLSSNIOverride(c.TLSSNIOverride) },
	},
	{
		field: store.ClientTLSSNIDisable,
		isSet: func(c, d store.ClientConfig) bool { return c.TLSSNIDisable != d.TLSSNIDisable },
		apply: func(s engine.ClientSession, c store.ClientConfig) error { return s.SetTLSSNIDisable(c.TLSSNIDisable) },
	},
	{
		field: store.ClientWebsocketPingFrequency,
		isSet: func(c, d store.ClientConfig) bool { return c.WebsocketPingFrequency != d.WebsocketPingFrequency },
		apply: func(s engine.ClientSession, c store.ClientConfig) error {
			return s.SetWebsocketPingFrequency(c.WebsocketPingFrequency)
		},
	},
	{
		field: store.ClientWebsocketMaskFrame,
		isSet: func(c, d store.ClientConfig) bool { return c.WebsocketMaskFrame != d.WebsocketMaskFrame },
		apply: func(s engine.ClientSession, c store.ClientConfig) error {
			return s.SetWebsocketMaskFrame(c.WebsocketMaskFrame)
		},
	},
	{
		field: store.ClientConnectionMinIdle,
		isSet: func(c, d store.ClientConfig) bool { return c.ConnectionMinIdle != d.ConnectionMinIdle },
		apply: func(s engine.ClientSession, c store.ClientConfig) error {
			return s.SetConnectionMinIdle(c.ConnectionMinIdle)
		},
	},
	{
		field: store.ClientConnectionRetryMaxBackoff,
		isSet: func(c, d store.ClientConfig) bool { return c.ConnectionRetryMaxBackoff != d.ConnectionRetryMaxBackoff },
		apply: func(s engine.ClientSession, c store.ClientConfig) error {
			return s.SetConnectionRetryMaxBackoff(c.ConnectionRetryMaxBackoff)
		},
	},
	{
		field: store.ClientHTTPProxy,
		isSet: func(c, d store.ClientConfig) bool { return c.HTTPProxy != d.HTTPProxy },
		apply: func(s engine.ClientSession, c store.ClientConfig) error { return s.SetHTTPProxy(c.HTTPProxy) },
	},
	{
		field: store.ClientWorkerThreads,
		isSet: func(c, d store.ClientConfig) bool { return c.WorkerThreads != d.WorkerThreads },
		apply: func(s engine.ClientSession, c store.ClientConfig) error { return s.SetWorkerThreads(c.WorkerThreads) },
	},
}

// StartClient validates in, builds a client session on eng, applies the
// non-default settings, every header and every tunnel in stored order, then
// starts it. On any failure the session is freed and the error returned as
// the engine reported it.
func StartClient(eng engine.Engine, in ClientInput, level engine.LogLevel) (engine.ClientSession, error) {
	if strings.TrimSpace(in.Config.RemoteURL) == "" {
		return nil, bridgeerr.New(bridgeerr.InvalidParam, "remote_url is required for client mode")
	}
	if len(in.Tunnels) == 0 {
		return nil, bridgeerr.New(bridgeerr.InvalidParam, "at least one tunnel is required for client mode")
	}

	session, err := eng.NewClient(in.Config.RemoteURL, level)
	if err != nil {
		return nil, fmt.Errorf("create client session: %w", err)
	}
	if err := configureClient(session, in); err != nil {
		session.Free()
		return nil, err
	}
	if err := session.Start(); err != nil {
		session.Free()
		return nil, err
	}
	return session, nil
}

func configureClient(session engine.ClientSession, in ClientInput) error {
	defaults := store.DefaultClientConfig()
	for _, setting := range clientSettings {
		if !setting.isSet(in.Config, defaults) {
			continue
		}
		if err := setting.apply(session, in.Config); err != nil {
			return fmt.Errorf("set %s: %w", setting.field, err)
		}
	}

	for _, h := range in.Headers {
		if err := session.AddHTTPHeader(h.Name, h.Value); err != nil {
			return fmt.Errorf("add header %d (%s): %w", h.ID, h.Name, err)
		}
	}

	registrar := tunnelRegistrar{session: session}
	for _, t := range in.Tunnels {
		if err := t.Rule.Accept(registrar); err != nil {
			return fmt.Errorf("add %s tunnel %d: %w", t.Rule.Kind(), t.ID, err)
		}
	}
	return nil
}

// tunnelRegistrar sends each tunnel variant to its engine registration call.
type tunnelRegistrar struct {
	session engine.ClientSession
}

var _ store.TunnelVisitor = tunnelRegistrar{}

func (r tunnelRegistrar) VisitUDP(t store.UDPTunnel) error {
	return r.session.AddTunnelUDP(t.Local.Host, t.Local.Port, t.Remote.Host, t.Remote.Port, t.TimeoutSecs)
}

func (r tunnelRegistrar) VisitTCP(t store.TCPTunnel) error {
	return r.session.AddTunnelTCP(t.Local.Host, t.Local.Port, t.Remote.Host, t.Remote.Port)
}

func (r tunnelRegistrar) VisitSOCKS5(t store.SOCKS5Tunnel) error {
	return r.session.AddTunnelSOCKS5(t.Local.Host, t.Local.Port, t.TimeoutSecs)
}
