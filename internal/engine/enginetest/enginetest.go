// Package enginetest provides an in-memory engine that records every call made
// against its sessions.
package enginetest

import (
	"sync"

	"github.com/phantomwg/wsbridge/internal/engine"
)

// Call is one recorded method invocation.
type Call struct {
	Method string
	Args   []any
}

// Engine implements engine.Engine. Zero value is ready to use.
type Engine struct {
	// NewErr is returned by NewClient and NewServer when set.
	NewErr error
	// FailOn maps a method name ("Start", "AddTunnelUDP", ...) to the error the
	// next sessions return from it.
	FailOn map[string]error
	// StopErr is returned by Stop; the session still stops unless
	// StopLeavesRunning is set.
	StopErr           error
	StopLeavesRunning bool

	mu       sync.Mutex
	sessions []*Session
	live     int
	maxLive  int
}

var _ engine.Engine = (*Engine)(nil)

// NewClient records a client session bound to remoteURL.
func (e *Engine) NewClient(remoteURL string, level engine.LogLevel) (engine.ClientSession, error) {
	s, err := e.newSession("client", remoteURL, level)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// NewServer records a server session bound to bindURL.
func (e *Engine) NewServer(bindURL string, level engine.LogLevel) (engine.ServerSession, error) {
	s, err := e.newSession("server", bindURL, level)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (e *Engine) newSession(role, url string, level engine.LogLevel) (*Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.NewErr != nil {
		return nil, e.NewErr
	}
	if url == "" {
		return nil, engine.Errorf(engine.CodeInvalidParam, "%s url is empty", role)
	}
	s := &Session{engine: e, Role: role, URL: url, Level: level}
	e.sessions = append(e.sessions, s)
	e.live++
	if e.live > e.maxLive {
		e.maxLive = e.live
	}
	return s, nil
}

// Sessions returns every session created so far, freed ones included.
func (e *Engine) Sessions() []*Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Session(nil), e.sessions...)
}

// Last returns the most recently created session or nil.
func (e *Engine) Last() *Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.sessions) == 0 {
		return nil
	}
	return e.sessions[len(e.sessions)-1]
}

// Live is the number of sessions created and not yet freed.
func (e *Engine) Live() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.live
}

// MaxLive is the highest value Live has reached.
func (e *Engine) MaxLive() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.maxLive
}

// Session implements both engine.ClientSession and engine.ServerSession.
type Session struct {
	Role  string
	URL   string
	Level engine.LogLevel

	engine  *Engine
	mu      sync.Mutex
	calls   []Call
	running bool
	freed   bool
	lastErr string
}

var (
	_ engine.ClientSession = (*Session)(nil)
	_ engine.ServerSession = (*Session)(nil)
)

func (s *Session) record(method string, args ...any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Method: method, Args: args})
	if err := s.injected(method); err != nil {
		s.lastErr = err.Error()
		return err
	}
	return nil
}

func (s *Session) injected(method string) error {
	s.engine.mu.Lock()
	defer s.engine.mu.Unlock()
	return s.engine.FailOn[method]
}

// Calls returns the recorded calls in order.
func (s *Session) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// Methods returns the recorded method names in order.
func (s *Session) Methods() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.calls))
	for i, c := range s.calls {
		out[i] = c.Method
	}
	return out
}

// CallsTo returns the recorded calls of a single method.
func (s *Session) CallsTo(method string) []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Call
	for _, c := range s.calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// Freed reports whether Free was called.
func (s *Session) Freed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.freed
}

// Crash marks a running session as stopped with the given error text, as if
// the engine died on its own.
func (s *Session) Crash(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	s.lastErr = msg
}

func (s *Session) Start() error {
	if err := s.record("Start"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return &engine.Error{Code: engine.CodeAlreadyRunning}
	}
	s.running = true
	return nil
}

func (s *Session) Stop() error {
	if err := s.record("Stop"); err != nil {
		return err
	}
	s.engine.mu.Lock()
	stopErr, leaveRunning := s.engine.StopErr, s.engine.StopLeavesRunning
	s.engine.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return &engine.Error{Code: engine.CodeNotRunning}
	}
	if !leaveRunning {
		s.running = false
	}
	if stopErr != nil {
		s.lastErr = stopErr.Error()
	}
	return stopErr
}

func (s *Session) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Session) LastError() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr, s.lastErr != ""
}

func (s *Session) Free() {
	s.mu.Lock()
	if s.freed {
		s.mu.Unlock()
		return
	}
	s.freed = true
	s.running = false
	s.calls = append(s.calls, Call{Method: "Free"})
	s.mu.Unlock()

	s.engine.mu.Lock()
	s.engine.live--
	s.engine.mu.Unlock()
}

func (s *Session) SetHTTPUpgradePathPrefix(prefix string) error {
	return s.record("SetHTTPUpgradePathPrefix", prefix)
}

func (s *Session) SetHTTPUpgradeCredentials(credentials string) error {
	return s.record("SetHTTPUpgradeCredentials", credentials)
}

func (s *Session) SetTLSVerify(verify bool) error {
	return s.record("SetTLSVerify", verify)
}

func (s *Session) SetTLSSNIOverride(domain string) error {
	return s.record("SetTLSSNIOverride", domain)
}

func (s *Session) SetTLSSNIDisable(disable bool) error {
	return s.record("SetTLSSNIDisable", disable)
}

func (s *Session) SetWebsocketPingFrequency(secs int) error {
	return s.record("SetWebsocketPingFrequency", secs)
}

func (s *Session) SetWebsocketMaskFrame(mask bool) error {
	return s.record("SetWebsocketMaskFrame", mask)
}

func (s *Session) SetConnectionMinIdle(count int) error {
	return s.record("SetConnectionMinIdle", count)
}

func (s *Session) SetConnectionRetryMaxBackoff(secs int) error {
	return s.record("SetConnectionRetryMaxBackoff", secs)
}

func (s *Session) SetHTTPProxy(proxy string) error {
	return s.record("SetHTTPProxy", proxy)
}

func (s *Session) SetWorkerThreads(threads int) error {
	return s.record("SetWorkerThreads", threads)
}

func (s *Session) AddHTTPHeader(name, value string) error {
	return s.record("AddHTTPHeader", name, value)
}

func (s *Session) AddTunnelUDP(localHost string, localPort int, remoteHost string, remotePort int, timeoutSecs int) error {
	return s.record("AddTunnelUDP", localHost, localPort, remoteHost, remotePort, timeoutSecs)
}

func (s *Session) AddTunnelTCP(localHost string, localPort int, remoteHost string, remotePort int) error {
	return s.record("AddTunnelTCP", localHost, localPort, remoteHost, remotePort)
}

func (s *Session) AddTunnelSOCKS5(localHost string, localPort int, timeoutSecs int) error {
	return s.record("AddTunnelSOCKS5", localHost, localPort, timeoutSecs)
}

func (s *Session) SetTLSCertificate(path string) error {
	return s.record("SetTLSCertificate", path)
}

func (s *Session) SetTLSPrivateKey(path string) error {
	return s.record("SetTLSPrivateKey", path)
}

func (s *Session) SetTLSClientCACerts(path string) error {
	return s.record("SetTLSClientCACerts", path)
}

func (s *Session) AddRestrictTo(target string) error {
	return s.record("AddRestrictTo", target)
}

func (s *Session) AddRestrictPathPrefix(prefix string) error {
	return s.record("AddRestrictPathPrefix", prefix)
}
