package wstunnelexec

import (
	"net"
	"strconv"
	"strings"

	"github.com/phantomwg/wsbridge/internal/engine"
	"github.com/phantomwg/wsbridge/internal/validate"
)

type clientSession struct {
	*session
}

var _ engine.ClientSession = (*clientSession)(nil)

func (c *clientSession) SetHTTPUpgradePathPrefix(prefix string) error {
	if err := requireValue("http upgrade path prefix", prefix); err != nil {
		return err
	}
	return c.configure("--http-upgrade-path-prefix", prefix)
}

func (c *clientSession) SetHTTPUpgradeCredentials(credentials string) error {
	if err := requireValue("http upgrade credentials", credentials); err != nil {
		return err
	}
	return c.configure("--http-upgrade-credentials", credentials)
}

func (c *clientSession) SetTLSVerify(verify bool) error {
	if !verify {
		return nil
	}
	return c.configure("--tls-verify-certificate")
}

func (c *clientSession) SetTLSSNIOverride(domain string) error {
	if err := requireValue("tls sni override", domain); err != nil {
		return err
	}
	return c.configure("--tls-sni-override", domain)
}

func (c *clientSession) SetTLSSNIDisable(disable bool) error {
	if !disable {
		return nil
	}
	return c.configure("--tls-sni-disable")
}

func (c *clientSession) SetWebsocketPingFrequency(secs int) error {
	return setPingFrequency(c.session, secs)
}

func (c *clientSession) SetWebsocketMaskFrame(mask bool) error {
	if !mask {
		return nil
	}
	return c.configure("--websocket-mask-frame")
}

func (c *clientSession) SetConnectionMinIdle(count int) error {
	if count < 0 {
		return engine.Errorf(engine.CodeInvalidParam, "connection min idle must not be negative, got %d", count)
	}
	return c.configure("--connection-min-idle", strconv.Itoa(count))
}

func (c *clientSession) SetConnectionRetryMaxBackoff(secs int) error {
	if secs < 0 {
		return engine.Errorf(engine.CodeInvalidParam, "retry max backoff must not be negative, got %d", secs)
	}
	return c.configure("--connection-retry-max-backoff", seconds(secs))
}

func (c *clientSession) SetHTTPProxy(proxy string) error {
	if err := requireValue("http proxy", proxy); err != nil {
		return err
	}
	return c.configure("--http-proxy", proxy)
}

func (c *clientSession) SetWorkerThreads(threads int) error {
	return c.setWorkerThreads(threads)
}

func (c *clientSession) AddHTTPHeader(name, value string) error {
	name = strings.TrimSpace(name)
	if !validate.HeaderName(name) {
		return engine.Errorf(engine.CodeInvalidParam, "invalid header name %q", name)
	}
	if strings.ContainsAny(value, "\r\n") {
		return engine.Errorf(engine.CodeInvalidParam, "header %s value contains a line break", name)
	}
	return c.configure("--http-headers", name+": "+value)
}

func (c *clientSession) AddTunnelUDP(localHost string, localPort int, remoteHost string, remotePort int, timeoutSecs int) error {
	spec, err := forwardSpec("udp", localHost, localPort, remoteHost, remotePort, timeoutSecs)
	if err != nil {
		return err
	}
	return c.configure("--local-to-remote", spec)
}

func (c *clientSession) AddTunnelTCP(localHost string, localPort int, remoteHost string, remotePort int) error {
	spec, err := forwardSpec("tcp", localHost, localPort, remoteHost, remotePort, 0)
	if err != nil {
		return err
	}
	return c.configure("--local-to-remote", spec)
}

func (c *clientSession) AddTunnelSOCKS5(localHost string, localPort int, timeoutSecs int) error {
	if err := checkEndpoint("local", localHost, localPort); err != nil {
		return err
	}
	if timeoutSecs < 0 {
		return engine.Errorf(engine.CodeInvalidParam, "timeout must not be negative, got %d", timeoutSecs)
	}
	return c.configure("--local-to-remote", "socks5://"+hostPort(localHost, localPort)+timeoutQuery(timeoutSecs))
}

// forwardSpec renders a -L value such as
// "udp://127.0.0.1:51820:10.0.0.1:51820?timeout_sec=60".
func forwardSpec(scheme, localHost string, localPort int, remoteHost string, remotePort int, timeoutSecs int) (string, error) {
	if err := checkEndpoint("local", localHost, localPort); err != nil {
		return "", err
	}
	if err := checkEndpoint("remote", remoteHost, remotePort); err != nil {
		return "", err
	}
	if timeoutSecs < 0 {
		return "", engine.Errorf(engine.CodeInvalidParam, "timeout must not be negative, got %d", timeoutSecs)
	}
	return scheme + "://" + hostPort(localHost, localPort) + ":" + hostPort(remoteHost, remotePort) + timeoutQuery(timeoutSecs), nil
}

// timeoutQuery omits the parameter for zero so wstunnel applies its own
// default.
func timeoutQuery(secs int) string {
	if secs == 0 {
		return ""
	}
	return "?timeout_sec=" + strconv.Itoa(secs)
}

func checkEndpoint(side, host string, port int) error {
	if strings.TrimSpace(host) == "" {
		return engine.Errorf(engine.CodeInvalidParam, "%s host is empty", side)
	}
	if port < 1 || port > 65535 {
		return engine.Errorf(engine.CodeInvalidParam, "%s port %d out of range", side, port)
	}
	return nil
}

// hostPort brackets IPv6 literals the way wstunnel expects.
func hostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

func seconds(n int) string {
	return strconv.Itoa(n) + "s"
}

func requireValue(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return engine.Errorf(engine.CodeInvalidParam, "%s is empty", name)
	}
	return nil
}

func setPingFrequency(s *session, secs int) error {
	if secs < 0 {
		return engine.Errorf(engine.CodeInvalidParam, "ping frequency must not be negative, got %d", secs)
	}
	return s.configure("--websocket-ping-frequency", seconds(secs))
}
