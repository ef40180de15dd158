// Package probe checks that the configured wstunnel server answers a
// websocket upgrade the way a client session would send it.
package probe

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/phantomwg/wsbridge/internal/config/store"
	"github.com/phantomwg/wsbridge/internal/constants"
	"github.com/phantomwg/wsbridge/internal/validate"
)

// Options configures a probe.
type Options struct {
	Config  store.ClientConfig
	Headers []store.Header
	Timeout time.Duration // handshake timeout; defaults to constants.ProbeTimeout
}

// Result describes what the server did with the upgrade request.
type Result struct {
	URL        string        `json:"url" yaml:"url"`
	Reachable  bool          `json:"reachable" yaml:"reachable"`
	Upgraded   bool          `json:"upgraded" yaml:"upgraded"`
	StatusCode int           `json:"status_code,omitempty" yaml:"status_code,omitempty"`
	Latency    time.Duration `json:"latency_ns" yaml:"latency_ns"`
	Error      string        `json:"error,omitempty" yaml:"error,omitempty"`
}

// UpgradeURL returns the endpoint a client session upgrades on:
// <remote_url>/<path prefix>/events.
func UpgradeURL(cfg store.ClientConfig) (string, error) {
	if err := validate.TunnelURL(cfg.RemoteURL); err != nil {
		return "", err
	}
	u, err := url.Parse(strings.TrimSpace(cfg.RemoteURL))
	if err != nil {
		return "", err
	}
	prefix := strings.Trim(cfg.HTTPUpgradePathPrefix, "/")
	if prefix == "" {
		prefix = store.DefaultClientConfig().HTTPUpgradePathPrefix
	}
	u.Path = path.Join("/", u.Path, prefix, "events")
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}

// RequestHeader builds the upgrade request headers: stored headers in order,
// then basic credentials when configured.
func RequestHeader(cfg store.ClientConfig, headers []store.Header) http.Header {
	h := http.Header{}
	for _, header := range headers {
		h.Add(header.Name, header.Value)
	}
	if cfg.HTTPUpgradeCredentials != "" {
		h.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(cfg.HTTPUpgradeCredentials)))
	}
	return h
}

// NewDialer returns a dialer honouring the TLS and proxy settings of cfg.
func NewDialer(cfg store.ClientConfig, timeout time.Duration) (*websocket.Dialer, error) {
	if timeout <= 0 {
		timeout = constants.ProbeTimeout
	}
	dialer := &websocket.Dialer{
		HandshakeTimeout: timeout,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: !cfg.TLSVerify, //nolint:gosec // mirrors the session's tls_verify setting
			ServerName:         cfg.TLSSNIOverride,
			MinVersion:         tls.VersionTLS12,
		},
	}
	if proxy := strings.TrimSpace(cfg.HTTPProxy); proxy != "" {
		if !strings.Contains(proxy, "://") {
			proxy = "http://" + proxy
		}
		u, err := url.Parse(proxy)
		if err != nil {
			return nil, fmt.Errorf("probe: parse http_proxy: %w", err)
		}
		dialer.Proxy = http.ProxyURL(u)
	}
	return dialer, nil
}

// Run performs one upgrade attempt. A server that answers with a non-101
// status is reachable but not upgraded; transport failures leave Reachable
// false and set Error. The returned error is non-nil only when the options
// themselves are unusable.
func Run(ctx context.Context, opts Options) (Result, error) {
	target, err := UpgradeURL(opts.Config)
	if err != nil {
		return Result{}, fmt.Errorf("probe: remote_url: %w", err)
	}
	dialer, err := NewDialer(opts.Config, opts.Timeout)
	if err != nil {
		return Result{}, err
	}

	result := Result{URL: target}
	started := time.Now()
	conn, resp, err := dialer.DialContext(ctx, target, RequestHeader(opts.Config, opts.Headers))
	result.Latency = time.Since(started)
	if resp != nil {
		result.StatusCode = resp.StatusCode
		if resp.Body != nil {
			resp.Body.Close()
		}
	}

	switch {
	case err == nil:
		result.Reachable = true
		result.Upgraded = true
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(constants.Duration500Milliseconds))
		conn.Close()
	case errors.Is(err, websocket.ErrBadHandshake) && resp != nil:
		result.Reachable = true
		result.Error = fmt.Sprintf("upgrade rejected with HTTP %d", resp.StatusCode)
	default:
		result.Error = err.Error()
	}
	return result, nil
}
