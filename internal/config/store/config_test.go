package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phantomwg/wsbridge/internal/bridgeerr"
)

func TestSetClientConfigPartialUpdate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openTestStore(t, Options{})

	require.NoError(t, s.SetClientConfig(ctx, Fields{
		ClientRemoteURL:     "wss://vpn.example.com:443",
		ClientTLSVerify:     true,
		ClientWorkerThreads: 4,
	}))
	require.NoError(t, s.SetClientConfig(ctx, Fields{
		ClientHTTPUpgradePathPrefix: "secret-path",
		ClientWorkerThreads:         6,
	}))

	got, err := s.GetClientConfig(ctx)
	require.NoError(t, err)

	want := DefaultClientConfig()
	want.RemoteURL = "wss://vpn.example.com:443"
	want.TLSVerify = true
	want.HTTPUpgradePathPrefix = "secret-path"
	want.WorkerThreads = 6
	want.UpdatedAt = got.UpdatedAt
	assert.Equal(t, want, got)
}

func TestSetClientConfigEmptyIsNoop(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openTestStore(t, Options{})

	before, err := s.GetClientConfig(ctx)
	require.NoError(t, err)

	require.NoError(t, s.SetClientConfig(ctx, nil))
	require.NoError(t, s.SetClientConfig(ctx, Fields{}))

	after, err := s.GetClientConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, before.UpdatedAt, after.UpdatedAt)
}

func TestSetClientConfigBumpsUpdatedAt(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openTestStore(t, Options{})

	before, err := s.GetClientConfig(ctx)
	require.NoError(t, err)
	require.NoError(t, s.SetClientConfig(ctx, Fields{ClientHTTPProxy: "http://proxy:3128"}))
	after, err := s.GetClientConfig(ctx)
	require.NoError(t, err)

	assert.True(t, after.UpdatedAt.After(before.UpdatedAt))
}

func TestSetClientConfigRejectsAtomically(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tests := []struct {
		name   string
		fields Fields
	}{
		{name: "unknown field", fields: Fields{ClientRemoteURL: "wss://a", "bogus_field": 1}},
		{name: "wrong type for string", fields: Fields{ClientRemoteURL: 42}},
		{name: "wrong type for bool", fields: Fields{ClientRemoteURL: "wss://a", ClientTLSVerify: "yes"}},
		{name: "negative int", fields: Fields{ClientRemoteURL: "wss://a", ClientConnectionMinIdle: -1}},
		{name: "zero workers", fields: Fields{ClientRemoteURL: "wss://a", ClientWorkerThreads: 0}},
		{name: "fractional number", fields: Fields{ClientRemoteURL: "wss://a", ClientWebsocketPingFrequency: 1.5}},
		{name: "server-only column", fields: Fields{ServerBindURL: "wss://0.0.0.0:8443"}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := openTestStore(t, Options{})

			before, err := s.GetClientConfig(ctx)
			require.NoError(t, err)

			err = s.SetClientConfig(ctx, tt.fields)
			require.Error(t, err)
			assert.ErrorIs(t, err, bridgeerr.InvalidParam)

			after, err := s.GetClientConfig(ctx)
			require.NoError(t, err)
			assert.Equal(t, before, after, "nothing may be committed")
		})
	}
}

func TestSetClientConfigAcceptsJSONNumbers(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openTestStore(t, Options{})

	require.NoError(t, s.SetClientConfig(ctx, Fields{
		ClientWebsocketPingFrequency:    float64(15),
		ClientConnectionRetryMaxBackoff: int64(60),
		ClientConnectionMinIdle:         uint16(3),
	}))

	cfg, err := s.GetClientConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, 15, cfg.WebsocketPingFrequency)
	assert.Equal(t, 60, cfg.ConnectionRetryMaxBackoff)
	assert.Equal(t, 3, cfg.ConnectionMinIdle)
}

func TestSetServerConfigPartialUpdate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openTestStore(t, Options{Mode: ModeServer})

	require.NoError(t, s.SetServerConfig(ctx, Fields{
		ServerBindURL:        "wss://0.0.0.0:8443",
		ServerTLSCertificate: "/etc/wsbridge/cert.pem",
	}))
	require.NoError(t, s.SetServerConfig(ctx, Fields{ServerWebsocketMaskFrame: true}))

	err := s.SetServerConfig(ctx, Fields{ClientRemoteURL: "wss://x"})
	assert.ErrorIs(t, err, bridgeerr.InvalidParam)

	got, err := s.GetServerConfig(ctx)
	require.NoError(t, err)

	want := DefaultServerConfig()
	want.BindURL = "wss://0.0.0.0:8443"
	want.TLSCertificate = "/etc/wsbridge/cert.pem"
	want.WebsocketMaskFrame = true
	want.UpdatedAt = got.UpdatedAt
	assert.Equal(t, want, got)
}

func TestParseFieldValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		parse   func(string, string) (any, error)
		field   string
		raw     string
		want    any
		wantErr bool
	}{
		{name: "string", parse: ParseClientField, field: ClientRemoteURL, raw: "wss://a:443", want: "wss://a:443"},
		{name: "bool", parse: ParseClientField, field: ClientTLSVerify, raw: "true", want: true},
		{name: "int", parse: ParseClientField, field: ClientWorkerThreads, raw: " 4 ", want: 4},
		{name: "bad bool", parse: ParseClientField, field: ClientTLSSNIDisable, raw: "maybe", wantErr: true},
		{name: "bad int", parse: ParseServerField, field: ServerWorkerThreads, raw: "four", wantErr: true},
		{name: "unknown", parse: ParseServerField, field: ClientRemoteURL, raw: "x", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := tt.parse(tt.field, tt.raw)
			if tt.wantErr {
				assert.ErrorIs(t, err, bridgeerr.InvalidParam)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFieldNames(t *testing.T) {
	t.Parallel()

	assert.Len(t, ClientFieldNames(), 12)
	assert.Len(t, ServerFieldNames(), 7)
	assert.Contains(t, ClientFieldNames(), ClientHTTPUpgradeCredentials)
	assert.IsIncreasing(t, ServerFieldNames())
}
