package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phantomwg/wsbridge/internal/bridgeerr"
)

func tunnelRules(t *testing.T, tunnels []Tunnel) []TunnelRule {
	t.Helper()
	rules := make([]TunnelRule, 0, len(tunnels))
	for _, tun := range tunnels {
		rules = append(rules, tun.Rule)
	}
	return rules
}

func TestTunnelCRUD(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openTestStore(t, Options{})

	udp := UDPTunnel{Local: Endpoint{"127.0.0.1", 51820}, Remote: Endpoint{"127.0.0.1", 51820}, TimeoutSecs: 30}
	tcp := TCPTunnel{Local: Endpoint{"0.0.0.0", 8080}, Remote: Endpoint{"10.0.0.5", 80}}
	socks := SOCKS5Tunnel{Local: Endpoint{Port: 1080}}

	idUDP, err := s.AddTunnel(ctx, udp)
	require.NoError(t, err)
	idTCP, err := s.AddTunnel(ctx, tcp)
	require.NoError(t, err)
	_, err = s.AddTunnel(ctx, socks)
	require.NoError(t, err)
	assert.Less(t, idUDP, idTCP)

	tunnels, err := s.ListTunnels(ctx)
	require.NoError(t, err)
	socks.Local.Host = DefaultLocalHost
	assert.Equal(t, []TunnelRule{udp, tcp, socks}, tunnelRules(t, tunnels))

	n, err := s.CountTunnels(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	require.NoError(t, s.DeleteTunnel(ctx, idTCP))
	tunnels, err = s.ListTunnels(ctx)
	require.NoError(t, err)
	assert.Equal(t, []TunnelRule{udp, socks}, tunnelRules(t, tunnels))

	err = s.DeleteTunnel(ctx, idTCP)
	assert.ErrorIs(t, err, bridgeerr.InvalidParam)
	assert.True(t, IsNotFound(err))

	require.NoError(t, s.ClearTunnels(ctx))
	tunnels, err = s.ListTunnels(ctx)
	require.NoError(t, err)
	assert.Empty(t, tunnels)
}

func TestAddTunnelValidation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tests := []struct {
		name string
		rule TunnelRule
	}{
		{name: "nil rule", rule: nil},
		{name: "zero local port", rule: UDPTunnel{Local: Endpoint{"127.0.0.1", 0}, Remote: Endpoint{"10.0.0.1", 53}}},
		{name: "port too large", rule: TCPTunnel{Local: Endpoint{"127.0.0.1", 70000}, Remote: Endpoint{"10.0.0.1", 80}}},
		{name: "missing remote host", rule: TCPTunnel{Local: Endpoint{"127.0.0.1", 8080}, Remote: Endpoint{"", 80}}},
		{name: "missing remote port", rule: UDPTunnel{Local: Endpoint{"127.0.0.1", 53}, Remote: Endpoint{"10.0.0.1", 0}}},
		{name: "negative timeout", rule: SOCKS5Tunnel{Local: Endpoint{"127.0.0.1", 1080}, TimeoutSecs: -1}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := openTestStore(t, Options{})

			_, err := s.AddTunnel(ctx, tt.rule)
			assert.ErrorIs(t, err, bridgeerr.InvalidParam)

			n, err := s.CountTunnels(ctx)
			require.NoError(t, err)
			assert.Zero(t, n)
		})
	}
}

func TestListTunnelsRejectsCorruptType(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openTestStore(t, Options{})

	// Bypass the CHECK constraint the way a hand-edited database could.
	_, err := s.DB().ExecContext(ctx, `PRAGMA ignore_check_constraints = ON`)
	require.NoError(t, err)
	_, err = s.DB().ExecContext(ctx, `INSERT INTO tunnels (tunnel_type, local_port, created_at) VALUES ('quic', 1, 0)`)
	require.NoError(t, err)

	_, err = s.ListTunnels(ctx)
	assert.ErrorIs(t, err, bridgeerr.DbQuery)
}

func TestRestrictionCRUD(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openTestStore(t, Options{Mode: ModeServer})

	first, err := s.AddRestriction(ctx, TargetRestriction{Target: "127.0.0.1:51820"})
	require.NoError(t, err)
	_, err = s.AddRestriction(ctx, PathPrefixRestriction{Prefix: "secret-path"})
	require.NoError(t, err)

	_, err = s.AddRestriction(ctx, TargetRestriction{Target: "  "})
	assert.ErrorIs(t, err, bridgeerr.InvalidParam)
	_, err = s.AddRestriction(ctx, nil)
	assert.ErrorIs(t, err, bridgeerr.InvalidParam)

	list, err := s.ListRestrictions(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, TargetRestriction{Target: "127.0.0.1:51820"}, list[0].Rule)
	assert.Equal(t, PathPrefixRestriction{Prefix: "secret-path"}, list[1].Rule)

	require.NoError(t, s.DeleteRestriction(ctx, first))
	n, err := s.CountRestrictions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, s.ClearRestrictions(ctx))
	n, err = s.CountRestrictions(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestNewRestriction(t *testing.T) {
	t.Parallel()

	rule, err := NewRestriction(RestrictPathPrefix, "v2")
	require.NoError(t, err)
	assert.Equal(t, PathPrefixRestriction{Prefix: "v2"}, rule)

	_, err = NewRestriction("cidr", "10.0.0.0/8")
	assert.Error(t, err)
}

func TestHeaderCRUDPreservesOrder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openTestStore(t, Options{})

	for _, h := range [][2]string{{"X-Forwarded-For", "1.2.3.4"}, {"Authorization", "Bearer abc"}, {"X-Forwarded-For", "5.6.7.8"}} {
		_, err := s.AddHeader(ctx, h[0], h[1])
		require.NoError(t, err)
	}

	_, err := s.AddHeader(ctx, " ", "x")
	assert.ErrorIs(t, err, bridgeerr.InvalidParam)
	_, err = s.AddHeader(ctx, "Bad:Name", "x")
	assert.ErrorIs(t, err, bridgeerr.InvalidParam)
	_, err = s.AddHeader(ctx, "X-Injected", "a\r\nb")
	assert.ErrorIs(t, err, bridgeerr.InvalidParam)

	headers, err := s.ListHeaders(ctx)
	require.NoError(t, err)
	require.Len(t, headers, 3)
	assert.Equal(t, "X-Forwarded-For", headers[0].Name)
	assert.Equal(t, "Authorization", headers[1].Name)
	assert.Equal(t, "5.6.7.8", headers[2].Value)

	require.NoError(t, s.DeleteHeader(ctx, headers[1].ID))
	n, err := s.CountHeaders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, s.ClearHeaders(ctx))
	headers, err = s.ListHeaders(ctx)
	require.NoError(t, err)
	assert.Empty(t, headers)
}

type kindRecorder struct{ kinds []string }

func (r *kindRecorder) VisitUDP(UDPTunnel) error { r.kinds = append(r.kinds, "udp"); return nil }
func (r *kindRecorder) VisitTCP(TCPTunnel) error { r.kinds = append(r.kinds, "tcp"); return nil }
func (r *kindRecorder) VisitSOCKS5(SOCKS5Tunnel) error {
	r.kinds = append(r.kinds, "socks5")
	return nil
}

func TestTunnelVisitorDispatch(t *testing.T) {
	t.Parallel()

	var rec kindRecorder
	for _, rule := range []TunnelRule{SOCKS5Tunnel{}, UDPTunnel{}, TCPTunnel{}} {
		require.NoError(t, rule.Accept(&rec))
	}
	assert.Equal(t, []string{"socks5", "udp", "tcp"}, rec.kinds)
	assert.Equal(t, "127.0.0.1:51820", Endpoint{"127.0.0.1", 51820}.String())
}
