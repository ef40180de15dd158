package validate

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// HeaderNameRe matches an HTTP field name (RFC 9110 token).
var HeaderNameRe = regexp.MustCompile("^[!#$%&'*+.^_`|~0-9A-Za-z-]+$")

// MaxHeaderNameLen caps header names well below any proxy limit.
const MaxHeaderNameLen = 256

// HeaderName validates s as an HTTP header field name.
func HeaderName(s string) bool {
	return len(s) > 0 && len(s) <= MaxHeaderNameLen && HeaderNameRe.MatchString(s)
}

// TunnelURL ensures rawURL is a websocket URL (ws or wss) with a host, the
// form wstunnel expects for both the client remote and the server bind
// address.
func TunnelURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "ws", "wss":
		// OK
	case "":
		return fmt.Errorf("URL missing scheme: %s", rawURL)
	default:
		return fmt.Errorf("URL scheme %q not allowed (only ws/wss)", u.Scheme)
	}
	if u.Hostname() == "" {
		return fmt.Errorf("URL missing host: %s", rawURL)
	}
	if p := u.Port(); p != "" {
		if n, err := strconv.Atoi(p); err != nil || n < 1 || n > 65535 {
			return fmt.Errorf("URL port %q out of range", p)
		}
	}
	return nil
}

// HostPort validates a host:port forwarding target. IPv6 hosts must be
// bracketed.
func HostPort(s string) error {
	host, port, err := net.SplitHostPort(s)
	if err != nil {
		return fmt.Errorf("invalid target %q: %w", s, err)
	}
	if host == "" {
		return fmt.Errorf("target %q missing host", s)
	}
	n, err := strconv.Atoi(port)
	if err != nil || n < 1 || n > 65535 {
		return fmt.Errorf("target %q: port %q out of range", s, port)
	}
	return nil
}
