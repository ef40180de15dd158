package main

import (
	"context"
	"net"
	"sort"
	"strconv"
	"strings"

	"github.com/phantomwg/wsbridge/internal/bridgeerr"
	"github.com/phantomwg/wsbridge/internal/config/store"
)

const maskedSecret = "********"

// document is the YAML form used by `config import` and `config export`.
// A collection key that is present, even as an empty list, replaces the
// stored collection; an absent key leaves it untouched.
type document struct {
	Mode         store.Mode          `yaml:"mode,omitempty"`
	Client       map[string]any      `yaml:"client,omitempty"`
	Server       map[string]any      `yaml:"server,omitempty"`
	Tunnels      *[]tunnelEntry      `yaml:"tunnels,omitempty"`
	Restrictions *[]restrictionEntry `yaml:"restrictions,omitempty"`
	Headers      *[]headerEntry      `yaml:"headers,omitempty"`
}

type tunnelEntry struct {
	Type    store.TunnelKind `yaml:"type" json:"type"`
	Local   string           `yaml:"local" json:"local"`
	Remote  string           `yaml:"remote,omitempty" json:"remote,omitempty"`
	Timeout int              `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

type restrictionEntry struct {
	Type  store.RestrictionKind `yaml:"type" json:"type"`
	Value string                `yaml:"value" json:"value"`
}

type headerEntry struct {
	Name  string `yaml:"name" json:"name"`
	Value string `yaml:"value" json:"value"`
}

// parseEndpoint accepts host:port, [v6]:port or a bare port. A bare port
// leaves Host empty so the store substitutes the default local host.
func parseEndpoint(s string) (store.Endpoint, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return store.Endpoint{}, bridgeerr.New(bridgeerr.InvalidParam, "endpoint is empty")
	}
	host, portText := "", s
	if strings.Contains(s, ":") {
		var err error
		host, portText, err = net.SplitHostPort(s)
		if err != nil {
			return store.Endpoint{}, bridgeerr.Wrap(bridgeerr.InvalidParam, err, "endpoint %q", s)
		}
	}
	port, err := strconv.Atoi(portText)
	if err != nil || port < 1 || port > 65535 {
		return store.Endpoint{}, bridgeerr.New(bridgeerr.InvalidParam, "endpoint %q: invalid port %q", s, portText)
	}
	return store.Endpoint{Host: host, Port: port}, nil
}

// buildTunnel converts the textual form of a tunnel into a rule.
func buildTunnel(entry tunnelEntry) (store.TunnelRule, error) {
	local, err := parseEndpoint(entry.Local)
	if err != nil {
		return nil, err
	}
	if entry.Timeout < 0 {
		return nil, bridgeerr.New(bridgeerr.InvalidParam, "timeout must not be negative, got %d", entry.Timeout)
	}

	switch entry.Type {
	case store.TunnelSOCKS5:
		if entry.Remote != "" {
			return nil, bridgeerr.New(bridgeerr.InvalidParam, "socks5 tunnels take no remote endpoint")
		}
		return store.SOCKS5Tunnel{Local: local, TimeoutSecs: entry.Timeout}, nil
	case store.TunnelUDP, store.TunnelTCP:
		if entry.Remote == "" {
			return nil, bridgeerr.New(bridgeerr.InvalidParam, "%s tunnel requires a remote endpoint", entry.Type)
		}
		remote, err := parseEndpoint(entry.Remote)
		if err != nil {
			return nil, err
		}
		if remote.Host == "" {
			return nil, bridgeerr.New(bridgeerr.InvalidParam, "remote endpoint %q needs a host", entry.Remote)
		}
		if entry.Type == store.TunnelTCP {
			if entry.Timeout != 0 {
				return nil, bridgeerr.New(bridgeerr.InvalidParam, "tcp tunnels take no timeout")
			}
			return store.TCPTunnel{Local: local, Remote: remote}, nil
		}
		return store.UDPTunnel{Local: local, Remote: remote, TimeoutSecs: entry.Timeout}, nil
	}
	return nil, bridgeerr.New(bridgeerr.InvalidParam, "unknown tunnel type %q (want udp, tcp or socks5)", entry.Type)
}

// tunnelEntryWriter renders a stored rule back into its textual form.
type tunnelEntryWriter struct{ entry tunnelEntry }

func (w *tunnelEntryWriter) VisitUDP(t store.UDPTunnel) error {
	w.entry = tunnelEntry{Type: store.TunnelUDP, Local: t.Local.String(), Remote: t.Remote.String(), Timeout: t.TimeoutSecs}
	return nil
}

func (w *tunnelEntryWriter) VisitTCP(t store.TCPTunnel) error {
	w.entry = tunnelEntry{Type: store.TunnelTCP, Local: t.Local.String(), Remote: t.Remote.String()}
	return nil
}

func (w *tunnelEntryWriter) VisitSOCKS5(t store.SOCKS5Tunnel) error {
	w.entry = tunnelEntry{Type: store.TunnelSOCKS5, Local: t.Local.String(), Timeout: t.TimeoutSecs}
	return nil
}

func entryForTunnel(rule store.TunnelRule) tunnelEntry {
	var w tunnelEntryWriter
	_ = rule.Accept(&w)
	return w.entry
}

func clientValues(cfg store.ClientConfig, reveal bool) map[string]any {
	creds := cfg.HTTPUpgradeCredentials
	if creds != "" && !reveal {
		creds = maskedSecret
	}
	return map[string]any{
		store.ClientRemoteURL:                 cfg.RemoteURL,
		store.ClientHTTPUpgradePathPrefix:     cfg.HTTPUpgradePathPrefix,
		store.ClientHTTPUpgradeCredentials:    creds,
		store.ClientTLSVerify:                 cfg.TLSVerify,
		store.ClientTLSSNIOverride:            cfg.TLSSNIOverride,
		store.ClientTLSSNIDisable:             cfg.TLSSNIDisable,
		store.ClientWebsocketPingFrequency:    cfg.WebsocketPingFrequency,
		store.ClientWebsocketMaskFrame:        cfg.WebsocketMaskFrame,
		store.ClientConnectionMinIdle:         cfg.ConnectionMinIdle,
		store.ClientConnectionRetryMaxBackoff: cfg.ConnectionRetryMaxBackoff,
		store.ClientHTTPProxy:                 cfg.HTTPProxy,
		store.ClientWorkerThreads:             cfg.WorkerThreads,
	}
}

func serverValues(cfg store.ServerConfig) map[string]any {
	return map[string]any{
		store.ServerBindURL:                cfg.BindURL,
		store.ServerTLSCertificate:         cfg.TLSCertificate,
		store.ServerTLSPrivateKey:          cfg.TLSPrivateKey,
		store.ServerTLSClientCACerts:       cfg.TLSClientCACerts,
		store.ServerWebsocketPingFrequency: cfg.WebsocketPingFrequency,
		store.ServerWebsocketMaskFrame:     cfg.WebsocketMaskFrame,
		store.ServerWorkerThreads:          cfg.WorkerThreads,
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// exportDocument snapshots the store. Credentials are left out unless
// includeSecrets is set.
func exportDocument(ctx context.Context, st *store.Store, includeSecrets bool) (document, error) {
	status, err := st.GetStatus(ctx)
	if err != nil {
		return document{}, err
	}
	client, err := st.GetClientConfig(ctx)
	if err != nil {
		return document{}, err
	}
	server, err := st.GetServerConfig(ctx)
	if err != nil {
		return document{}, err
	}
	tunnels, err := st.ListTunnels(ctx)
	if err != nil {
		return document{}, err
	}
	restrictions, err := st.ListRestrictions(ctx)
	if err != nil {
		return document{}, err
	}
	headers, err := st.ListHeaders(ctx)
	if err != nil {
		return document{}, err
	}

	doc := document{
		Mode:   status.Mode,
		Client: clientValues(client, true),
		Server: serverValues(server),
	}
	if !includeSecrets {
		delete(doc.Client, store.ClientHTTPUpgradeCredentials)
	}

	tunnelEntries := make([]tunnelEntry, 0, len(tunnels))
	for _, t := range tunnels {
		tunnelEntries = append(tunnelEntries, entryForTunnel(t.Rule))
	}
	restrictionEntries := make([]restrictionEntry, 0, len(restrictions))
	for _, r := range restrictions {
		restrictionEntries = append(restrictionEntries, restrictionEntry{Type: r.Rule.Kind(), Value: r.Rule.Value()})
	}
	headerEntries := make([]headerEntry, 0, len(headers))
	for _, h := range headers {
		headerEntries = append(headerEntries, headerEntry{Name: h.Name, Value: h.Value})
	}
	doc.Tunnels = &tunnelEntries
	doc.Restrictions = &restrictionEntries
	doc.Headers = &headerEntries
	return doc, nil
}

// configFields normalises decoded YAML values: strings go through the
// field parser so "true" and "30" work as well as native scalars.
func configFields(values map[string]any, parse func(name, raw string) (any, error)) (store.Fields, error) {
	fields := make(store.Fields, len(values))
	for key, value := range values {
		if s, ok := value.(string); ok {
			parsed, err := parse(key, s)
			if err != nil {
				return nil, err
			}
			value = parsed
		}
		fields[key] = value
	}
	return fields, nil
}

// apply writes the document into st as one store transaction, so a
// malformed document leaves the store unchanged.
func (d document) apply(ctx context.Context, st *store.Store) (map[string]any, error) {
	if d.Mode != "" && !d.Mode.Valid() {
		return nil, bridgeerr.New(bridgeerr.InvalidParam, "invalid mode %q (want client or server)", d.Mode)
	}
	set := store.ImportSet{Mode: d.Mode}
	var err error
	if set.Client, err = configFields(d.Client, store.ParseClientField); err != nil {
		return nil, err
	}
	if set.Server, err = configFields(d.Server, store.ParseServerField); err != nil {
		return nil, err
	}
	summary := map[string]any{
		"client_fields": len(set.Client),
		"server_fields": len(set.Server),
	}

	if d.Tunnels != nil {
		set.Tunnels = make([]store.TunnelRule, 0, len(*d.Tunnels))
		for i, entry := range *d.Tunnels {
			rule, err := buildTunnel(entry)
			if err != nil {
				return nil, bridgeerr.Wrap(bridgeerr.InvalidParam, err, "tunnels[%d]", i)
			}
			set.Tunnels = append(set.Tunnels, rule)
		}
		summary["tunnels"] = len(set.Tunnels)
	}
	if d.Restrictions != nil {
		set.Restrictions = make([]store.RestrictionRule, 0, len(*d.Restrictions))
		for i, entry := range *d.Restrictions {
			rule, err := store.NewRestriction(entry.Type, entry.Value)
			if err != nil {
				return nil, bridgeerr.Wrap(bridgeerr.InvalidParam, err, "restrictions[%d]", i)
			}
			set.Restrictions = append(set.Restrictions, rule)
		}
		summary["restrictions"] = len(set.Restrictions)
	}
	if d.Headers != nil {
		set.Headers = make([]store.Header, 0, len(*d.Headers))
		for _, h := range *d.Headers {
			set.Headers = append(set.Headers, store.Header{Name: h.Name, Value: h.Value})
		}
		summary["headers"] = len(set.Headers)
	}

	if err := st.Import(ctx, set); err != nil {
		return nil, err
	}
	return summary, nil
}
