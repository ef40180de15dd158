package store

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/phantomwg/wsbridge/internal/bridgeerr"
)

// TunnelKind is the stored tunnel_type tag.
type TunnelKind string

const (
	TunnelUDP    TunnelKind = "udp"
	TunnelTCP    TunnelKind = "tcp"
	TunnelSOCKS5 TunnelKind = "socks5"
)

// DefaultLocalHost is used when a tunnel rule leaves its local host empty.
const DefaultLocalHost = "127.0.0.1"

// Endpoint is a host/port pair.
type Endpoint struct {
	Host string
	Port int
}

func (e Endpoint) String() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// TunnelRule is one forwarding rule. The set of implementations is closed:
// UDPTunnel, TCPTunnel and SOCKS5Tunnel.
type TunnelRule interface {
	Kind() TunnelKind
	// Accept dispatches to the visitor method matching the concrete rule.
	Accept(v TunnelVisitor) error
	tunnelRule()
}

// TunnelVisitor handles every tunnel variant. Adding a variant adds a method
// here, so every consumer fails to compile until it handles it.
type TunnelVisitor interface {
	VisitUDP(UDPTunnel) error
	VisitTCP(TCPTunnel) error
	VisitSOCKS5(SOCKS5Tunnel) error
}

// UDPTunnel forwards a local UDP port to a remote endpoint.
type UDPTunnel struct {
	Local       Endpoint
	Remote      Endpoint
	TimeoutSecs int // 0 keeps the engine default
}

// TCPTunnel forwards a local TCP port to a remote endpoint.
type TCPTunnel struct {
	Local  Endpoint
	Remote Endpoint
}

// SOCKS5Tunnel exposes a local SOCKS5 listener; the remote is chosen per request.
type SOCKS5Tunnel struct {
	Local       Endpoint
	TimeoutSecs int
}

func (UDPTunnel) Kind() TunnelKind    { return TunnelUDP }
func (TCPTunnel) Kind() TunnelKind    { return TunnelTCP }
func (SOCKS5Tunnel) Kind() TunnelKind { return TunnelSOCKS5 }

func (t UDPTunnel) Accept(v TunnelVisitor) error    { return v.VisitUDP(t) }
func (t TCPTunnel) Accept(v TunnelVisitor) error    { return v.VisitTCP(t) }
func (t SOCKS5Tunnel) Accept(v TunnelVisitor) error { return v.VisitSOCKS5(t) }

func (UDPTunnel) tunnelRule()    {}
func (TCPTunnel) tunnelRule()    {}
func (SOCKS5Tunnel) tunnelRule() {}

// Tunnel is a stored tunnel rule.
type Tunnel struct {
	ID        int64
	Rule      TunnelRule
	CreatedAt time.Time
}

// tunnelRow is the flat column layout of the tunnels table.
type tunnelRow struct {
	kind       TunnelKind
	localHost  string
	localPort  int
	remoteHost string
	remotePort int
	timeout    int
}

type tunnelFlattener struct{ row tunnelRow }

func (f *tunnelFlattener) VisitUDP(t UDPTunnel) error {
	f.row = tunnelRow{TunnelUDP, t.Local.Host, t.Local.Port, t.Remote.Host, t.Remote.Port, t.TimeoutSecs}
	return nil
}

func (f *tunnelFlattener) VisitTCP(t TCPTunnel) error {
	f.row = tunnelRow{TunnelTCP, t.Local.Host, t.Local.Port, t.Remote.Host, t.Remote.Port, 0}
	return nil
}

func (f *tunnelFlattener) VisitSOCKS5(t SOCKS5Tunnel) error {
	f.row = tunnelRow{TunnelSOCKS5, t.Local.Host, t.Local.Port, "", 0, t.TimeoutSecs}
	return nil
}

func (r tunnelRow) rule() (TunnelRule, error) {
	local := Endpoint{Host: r.localHost, Port: r.localPort}
	remote := Endpoint{Host: r.remoteHost, Port: r.remotePort}
	switch r.kind {
	case TunnelUDP:
		return UDPTunnel{Local: local, Remote: remote, TimeoutSecs: r.timeout}, nil
	case TunnelTCP:
		return TCPTunnel{Local: local, Remote: remote}, nil
	case TunnelSOCKS5:
		return SOCKS5Tunnel{Local: local, TimeoutSecs: r.timeout}, nil
	}
	return nil, fmt.Errorf("unknown tunnel type %q", r.kind)
}

func (r *tunnelRow) normalize() error {
	if r.localHost == "" {
		r.localHost = DefaultLocalHost
	}
	if err := validPort("local", r.localPort); err != nil {
		return err
	}
	if r.timeout < 0 {
		return fmt.Errorf("timeout must not be negative, got %d", r.timeout)
	}
	if r.kind == TunnelSOCKS5 {
		return nil
	}
	if r.remoteHost == "" {
		return fmt.Errorf("%s tunnel requires a remote host", r.kind)
	}
	return validPort("remote", r.remotePort)
}

func validPort(which string, port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("%s port %d out of range 1-65535", which, port)
	}
	return nil
}

// AddTunnel appends a tunnel rule and returns its id.
func (s *Store) AddTunnel(ctx context.Context, rule TunnelRule) (int64, error) {
	row, err := flattenTunnel(rule)
	if err != nil {
		return 0, err
	}
	db, err := s.writable()
	if err != nil {
		return 0, err
	}
	return s.insertTunnel(ctx, db, row)
}

// flattenTunnel validates rule and returns its column values.
func flattenTunnel(rule TunnelRule) (tunnelRow, error) {
	if rule == nil {
		return tunnelRow{}, bridgeerr.New(bridgeerr.InvalidParam, "tunnel rule is nil")
	}
	var f tunnelFlattener
	if err := rule.Accept(&f); err != nil {
		return tunnelRow{}, err
	}
	if err := f.row.normalize(); err != nil {
		return tunnelRow{}, bridgeerr.New(bridgeerr.InvalidParam, "%v", err)
	}
	return f.row, nil
}

func (s *Store) insertTunnel(ctx context.Context, ex execer, row tunnelRow) (int64, error) {
	res, err := ex.ExecContext(ctx, `
		INSERT INTO tunnels (tunnel_type, local_host, local_port, remote_host, remote_port, timeout_secs, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, string(row.kind), row.localHost, row.localPort, row.remoteHost, row.remotePort, row.timeout, s.timestamp())
	if err != nil {
		return 0, bridgeerr.Wrap(bridgeerr.DbWrite, err, "add tunnel")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, bridgeerr.Wrap(bridgeerr.DbWrite, err, "add tunnel id")
	}
	return id, nil
}

// ListTunnels returns every tunnel rule in insertion order.
func (s *Store) ListTunnels(ctx context.Context) ([]Tunnel, error) {
	return queryRows(ctx, s, "list tunnels", scanTunnel, `
		SELECT id, tunnel_type, local_host, local_port, remote_host, remote_port, timeout_secs, created_at
		FROM tunnels ORDER BY id
	`)
}

// DeleteTunnel removes one tunnel rule. An unknown id is InvalidParam.
func (s *Store) DeleteTunnel(ctx context.Context, id int64) error {
	return s.deleteByID(ctx, "tunnels", "tunnel", id)
}

// ClearTunnels removes every tunnel rule.
func (s *Store) ClearTunnels(ctx context.Context) error {
	return s.clearTable(ctx, "tunnels")
}

// CountTunnels returns the number of stored tunnel rules.
func (s *Store) CountTunnels(ctx context.Context) (int, error) {
	return s.count(ctx, "tunnels")
}

func scanTunnel(scanner rowScanner) (Tunnel, error) {
	var (
		t         Tunnel
		row       tunnelRow
		kind      string
		createdAt int64
	)
	if err := scanner.Scan(&t.ID, &kind, &row.localHost, &row.localPort, &row.remoteHost, &row.remotePort, &row.timeout, &createdAt); err != nil {
		return Tunnel{}, err
	}
	row.kind = TunnelKind(kind)
	rule, err := row.rule()
	if err != nil {
		return Tunnel{}, fmt.Errorf("tunnel %d: %w", t.ID, err)
	}
	t.Rule = rule
	t.CreatedAt = time.Unix(createdAt, 0)
	return t, nil
}

// count takes table names from package literals only.
func (s *Store) count(ctx context.Context, table string) (int, error) {
	db, err := s.conn()
	if err != nil {
		return 0, err
	}
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table).Scan(&n); err != nil {
		return 0, bridgeerr.Wrap(bridgeerr.DbQuery, err, "count %s", table)
	}
	return n, nil
}
