package adapters

import (
	"fmt"
	"strings"

	"github.com/phantomwg/wsbridge/internal/bridgeerr"
	"github.com/phantomwg/wsbridge/internal/config/store"
	"github.com/phantomwg/wsbridge/internal/engine"
)

// ServerInput is everything a server start reads from the store.
type ServerInput struct {
	Config       store.ServerConfig
	Restrictions []store.Restriction
}

type serverSetting struct {
	field string
	isSet func(cfg, def store.ServerConfig) bool
	apply func(s engine.ServerSession, cfg store.ServerConfig) error
}

// TLS paths have no engine default to defer to; they are sent whenever set.
var serverSettings = []serverSetting{
	{
		field: store.ServerTLSCertificate,
		isSet: func(c, _ store.ServerConfig) bool { return c.TLSCertificate != "" },
		apply: func(s engine.ServerSession, c store.ServerConfig) error { return s.SetTLSCertificate(c.TLSCertificate) },
	},
	{
		field: store.ServerTLSPrivateKey,
		isSet: func(c, _ store.ServerConfig) bool { return c.TLSPrivateKey != "" },
		apply: func(s engine.ServerSession, c store.ServerConfig) error { return s.SetTLSPrivateKey(c.TLSPrivateKey) },
	},
	{
		field: store.ServerTLSClientCACerts,
		isSet: func(c, _ store.ServerConfig) bool { return c.TLSClientCACerts != "" },
		apply: func(s engine.ServerSession, c store.ServerConfig) error {
			return s.SetTLSClientCACerts(c.TLSClientCACerts)
		},
	},
	{
		field: store.ServerWebsocketPingFrequency,
		isSet: func(c, d store.ServerConfig) bool { return c.WebsocketPingFrequency != d.WebsocketPingFrequency },
		apply: func(s engine.ServerSession, c store.ServerConfig) error {
			return s.SetWebsocketPingFrequency(c.WebsocketPingFrequency)
		},
	},
	{
		field: store.ServerWebsocketMaskFrame,
		isSet: func(c, d store.ServerConfig) bool { return c.WebsocketMaskFrame != d.WebsocketMaskFrame },
		apply: func(s engine.ServerSession, c store.ServerConfig) error {
			return s.SetWebsocketMaskFrame(c.WebsocketMaskFrame)
		},
	},
	{
		field: store.ServerWorkerThreads,
		isSet: func(c, d store.ServerConfig) bool { return c.WorkerThreads != d.WorkerThreads },
		apply: func(s engine.ServerSession, c store.ServerConfig) error { return s.SetWorkerThreads(c.WorkerThreads) },
	},
}

// StartServer validates in, builds a server session on eng, applies TLS paths,
// non-default settings and every restriction in stored order, then starts it.
// On any failure the session is freed.
func StartServer(eng engine.Engine, in ServerInput, level engine.LogLevel) (engine.ServerSession, error) {
	if strings.TrimSpace(in.Config.BindURL) == "" {
		return nil, bridgeerr.New(bridgeerr.InvalidParam, "bind_url is required for server mode")
	}

	session, err := eng.NewServer(in.Config.BindURL, level)
	if err != nil {
		return nil, fmt.Errorf("create server session: %w", err)
	}
	if err := configureServer(session, in); err != nil {
		session.Free()
		return nil, err
	}
	if err := session.Start(); err != nil {
		session.Free()
		return nil, err
	}
	return session, nil
}

func configureServer(session engine.ServerSession, in ServerInput) error {
	defaults := store.DefaultServerConfig()
	for _, setting := range serverSettings {
		if !setting.isSet(in.Config, defaults) {
			continue
		}
		if err := setting.apply(session, in.Config); err != nil {
			return fmt.Errorf("set %s: %w", setting.field, err)
		}
	}

	registrar := restrictionRegistrar{session: session}
	for _, r := range in.Restrictions {
		if err := r.Rule.Accept(registrar); err != nil {
			return fmt.Errorf("add %s restriction %d: %w", r.Rule.Kind(), r.ID, err)
		}
	}
	return nil
}

type restrictionRegistrar struct {
	session engine.ServerSession
}

var _ store.RestrictionVisitor = restrictionRegistrar{}

func (r restrictionRegistrar) VisitTarget(t store.TargetRestriction) error {
	return r.session.AddRestrictTo(t.Target)
}

func (r restrictionRegistrar) VisitPathPrefix(p store.PathPrefixRestriction) error {
	return r.session.AddRestrictPathPrefix(p.Prefix)
}
