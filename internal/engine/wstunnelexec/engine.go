// Package wstunnelexec runs wstunnel sessions as child processes of the
// wsbridge binary. Setter calls accumulate command line flags; Start launches
// `wstunnel client|server` with them.
package wstunnelexec

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/phantomwg/wsbridge/internal/constants"
	"github.com/phantomwg/wsbridge/internal/engine"
	"github.com/phantomwg/wsbridge/internal/logging"
	"github.com/phantomwg/wsbridge/internal/validate"
)

// DefaultBinary is looked up on PATH when Options.Binary is empty.
const DefaultBinary = "wstunnel"

// Options configures an Engine.
type Options struct {
	Binary         string
	SettleDelay    time.Duration // how long a new process must survive for Start to succeed
	TerminateGrace time.Duration // wait between SIGTERM and SIGKILL on Stop
	Env            []string      // extra KEY=VALUE pairs appended to the inherited environment
	Logger         logrus.FieldLogger
}

// Engine implements engine.Engine. At most one session per Engine runs at a
// time.
type Engine struct {
	opts Options
	log  logrus.FieldLogger

	mu     sync.Mutex
	active *session
}

var _ engine.Engine = (*Engine)(nil)

// New returns an Engine with defaults filled in.
func New(opts Options) *Engine {
	if opts.Binary == "" {
		opts.Binary = DefaultBinary
	}
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = constants.ProcessSettleDelay
	}
	if opts.TerminateGrace <= 0 {
		opts.TerminateGrace = constants.ProcessTerminateGrace
	}
	return &Engine{opts: opts, log: logging.Component(opts.Logger, "engine")}
}

func (e *Engine) NewClient(remoteURL string, level engine.LogLevel) (engine.ClientSession, error) {
	s, err := e.newSession(roleClient, remoteURL, level)
	if err != nil {
		return nil, err
	}
	return &clientSession{session: s}, nil
}

func (e *Engine) NewServer(bindURL string, level engine.LogLevel) (engine.ServerSession, error) {
	s, err := e.newSession(roleServer, bindURL, level)
	if err != nil {
		return nil, err
	}
	return &serverSession{session: s}, nil
}

func (e *Engine) newSession(role, url string, level engine.LogLevel) (*session, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, engine.Errorf(engine.CodeInvalidParam, "%s url is empty", role)
	}
	if err := validate.TunnelURL(url); err != nil {
		return nil, engine.Errorf(engine.CodeInvalidParam, "%s url: %v", role, err)
	}
	if !level.Valid() {
		return nil, engine.Errorf(engine.CodeInvalidParam, "log level %d out of range", int(level))
	}
	return &session{
		engine: e,
		role:   role,
		url:    url,
		level:  level,
		log:    e.log.WithField("role", role),
	}, nil
}

// claim registers s as the running session. The slot is released when the
// process exits, is stopped, or the session is freed.
func (e *Engine) claim(s *session) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active != nil && e.active != s {
		return engine.Errorf(engine.CodeAlreadyRunning, "another %s session is running", e.active.role)
	}
	e.active = s
	return nil
}

func (e *Engine) release(s *session) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active == s {
		e.active = nil
	}
}

// Version runs `wstunnel --version` and returns its trimmed output.
func (e *Engine) Version(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, e.opts.Binary, "--version").Output()
	if err != nil {
		return "", fmt.Errorf("wstunnelexec: %s --version: %w", e.opts.Binary, err)
	}
	return strings.TrimSpace(string(out)), nil
}
