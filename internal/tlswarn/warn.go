// Package tlswarn provides a process-wide one-shot warning for client
// sessions that connect over TLS without verifying the server certificate.
package tlswarn

import (
	"net/url"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

var once sync.Once

// Insecure reports whether a client with this remote URL and tls_verify
// setting would accept any server certificate.
func Insecure(remoteURL string, verify bool) bool {
	if verify {
		return false
	}
	u, err := url.Parse(strings.TrimSpace(remoteURL))
	if err != nil {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "wss", "https":
		return true
	}
	return false
}

// LogInsecure emits a single warning the first time it is called.
// Subsequent calls are no-ops so restarts do not repeat it.
func LogInsecure(log logrus.FieldLogger, remoteURL string) {
	once.Do(func() {
		log.WithField("remote_url", remoteURL).
			Warn("TLS certificate verification is disabled; set tls_verify=true for production use")
	})
}
