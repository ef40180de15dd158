package wstunnelexec

import (
	"github.com/phantomwg/wsbridge/internal/engine"
)

type serverSession struct {
	*session
}

var _ engine.ServerSession = (*serverSession)(nil)

func (s *serverSession) SetTLSCertificate(path string) error {
	if err := requireValue("tls certificate", path); err != nil {
		return err
	}
	return s.configure("--tls-certificate", path)
}

func (s *serverSession) SetTLSPrivateKey(path string) error {
	if err := requireValue("tls private key", path); err != nil {
		return err
	}
	return s.configure("--tls-private-key", path)
}

func (s *serverSession) SetTLSClientCACerts(path string) error {
	if err := requireValue("tls client ca certs", path); err != nil {
		return err
	}
	return s.configure("--tls-client-ca-certs", path)
}

func (s *serverSession) SetWebsocketPingFrequency(secs int) error {
	return setPingFrequency(s.session, secs)
}

func (s *serverSession) SetWebsocketMaskFrame(mask bool) error {
	if !mask {
		return nil
	}
	return s.configure("--websocket-mask-frame")
}

func (s *serverSession) SetWorkerThreads(threads int) error {
	return s.setWorkerThreads(threads)
}

func (s *serverSession) AddRestrictTo(target string) error {
	if err := requireValue("restrict-to target", target); err != nil {
		return err
	}
	return s.configure("--restrict-to", target)
}

func (s *serverSession) AddRestrictPathPrefix(prefix string) error {
	if err := requireValue("restricted path prefix", prefix); err != nil {
		return err
	}
	return s.configure("--restrict-http-upgrade-path-prefix", prefix)
}
