package wstunnelexec

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/phantomwg/wsbridge/internal/engine"
	"github.com/phantomwg/wsbridge/internal/procutil"
)

const (
	roleClient = "client"
	roleServer = "server"
)

// session holds the command line being assembled and, once started, the
// child process. Client and server wrappers add the role specific setters.
type session struct {
	engine *Engine
	role   string
	url    string
	level  engine.LogLevel
	log    logrus.FieldLogger

	mu            sync.Mutex
	flags         []string
	workerThreads int
	proc          *process
	lastErr       string
	freed         bool
}

type process struct {
	cmd    *exec.Cmd
	exited chan struct{}
	tail   *stderrTail

	// waitErr is written before exited is closed.
	waitErr error
}

func (p *process) done() bool {
	select {
	case <-p.exited:
		return true
	default:
		return false
	}
}

// configure appends flags while the session is still being built.
func (s *session) configure(flags ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.buildableLocked(); err != nil {
		return err
	}
	s.flags = append(s.flags, flags...)
	return nil
}

func (s *session) buildableLocked() error {
	if s.freed {
		return engine.Errorf(engine.CodeConfigNull, "session already freed")
	}
	if s.proc != nil && !s.proc.done() {
		return engine.Errorf(engine.CodeAlreadyRunning, "session is running")
	}
	return nil
}

func (s *session) setWorkerThreads(threads int) error {
	if threads < 1 {
		return engine.Errorf(engine.CodeInvalidParam, "worker threads must be at least 1, got %d", threads)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.buildableLocked(); err != nil {
		return err
	}
	s.workerThreads = threads
	return nil
}

// args returns the full argument vector passed to the wstunnel binary.
func (s *session) args() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.flags)+2)
	out = append(out, s.role)
	out = append(out, s.flags...)
	return append(out, s.url)
}

// environ returns the child environment.
func (s *session) environ() []string {
	s.mu.Lock()
	threads := s.workerThreads
	s.mu.Unlock()

	env := append(os.Environ(), s.engine.opts.Env...)
	env = append(env, "RUST_LOG="+s.level.String())
	if threads > 0 {
		env = append(env, "TOKIO_WORKER_THREADS="+strconv.Itoa(threads))
	}
	return env
}

func (s *session) Start() error {
	s.mu.Lock()
	err := s.buildableLocked()
	s.mu.Unlock()
	if err != nil {
		return s.fail(err)
	}
	if err := s.engine.claim(s); err != nil {
		return s.fail(err)
	}

	args := s.args()
	cmd := exec.Command(s.engine.opts.Binary, args...)
	cmd.Env = s.environ()

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		s.engine.release(s)
		return s.fail(engine.Errorf(engine.CodeRuntime, "stdout pipe: %v", err))
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		s.engine.release(s)
		return s.fail(engine.Errorf(engine.CodeRuntime, "stderr pipe: %v", err))
	}
	if err := cmd.Start(); err != nil {
		s.engine.release(s)
		return s.fail(engine.Errorf(engine.CodeStartFailed, "launch %s: %v", s.engine.opts.Binary, err))
	}

	p := &process{cmd: cmd, exited: make(chan struct{}), tail: &stderrTail{}}
	log := s.log.WithField("pid", cmd.Process.Pid)
	log.WithField("args", args).Debug("wstunnel process launched")

	var g errgroup.Group
	g.Go(func() error { return pump(stdout, log, nil) })
	g.Go(func() error { return pump(stderr, log, p.tail) })
	go func() {
		if err := g.Wait(); err != nil {
			log.WithError(err).Debug("output pump stopped")
		}
		p.waitErr = cmd.Wait()
		close(p.exited)
		s.engine.release(s)
		log.WithError(p.waitErr).Debug("wstunnel process exited")
	}()

	s.mu.Lock()
	s.proc = p
	s.mu.Unlock()

	timer := time.NewTimer(s.engine.opts.SettleDelay)
	defer timer.Stop()
	select {
	case <-p.exited:
		return s.fail(engine.Errorf(engine.CodeStartFailed, "%s", exitDetail(p)))
	case <-timer.C:
		return nil
	}
}

func (s *session) Stop() error {
	s.mu.Lock()
	p := s.proc
	s.mu.Unlock()
	if p == nil || p.done() {
		return engine.Errorf(engine.CodeNotRunning, "%s session is not running", s.role)
	}

	killed, err := procutil.Terminate(p.cmd.Process, p.exited, s.engine.opts.TerminateGrace)
	s.engine.release(s)
	if killed {
		s.log.WithField("pid", p.cmd.Process.Pid).Warn("wstunnel ignored SIGTERM and was killed")
	}
	if err != nil {
		return s.fail(engine.Errorf(engine.CodeRuntime, "terminate pid %d: %v", p.cmd.Process.Pid, err))
	}
	return nil
}

func (s *session) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.proc != nil && !s.proc.done()
}

// LastError prefers a failure recorded by this session, then the last error
// line wstunnel printed, then the exit status of a process that died.
func (s *session) LastError() (string, bool) {
	s.mu.Lock()
	lastErr, p := s.lastErr, s.proc
	s.mu.Unlock()

	if lastErr != "" {
		return lastErr, true
	}
	if p == nil {
		return "", false
	}
	if line := p.tail.last(); line != "" {
		return line, true
	}
	if p.done() && p.waitErr != nil {
		return p.waitErr.Error(), true
	}
	return "", false
}

func (s *session) Free() {
	s.mu.Lock()
	if s.freed {
		s.mu.Unlock()
		return
	}
	s.freed = true
	p := s.proc
	s.mu.Unlock()

	if p != nil && !p.done() {
		if _, err := procutil.Terminate(p.cmd.Process, p.exited, s.engine.opts.TerminateGrace); err != nil {
			s.log.WithError(err).Warn("terminate on free failed")
		}
	}
	s.engine.release(s)
}

func (s *session) fail(err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var engErr *engine.Error
	if errors.As(err, &engErr) && engErr.Detail != "" {
		s.lastErr = engErr.Detail
	} else {
		s.lastErr = err.Error()
	}
	return err
}

func exitDetail(p *process) string {
	if line := p.tail.last(); line != "" {
		return line
	}
	if p.waitErr != nil {
		return fmt.Sprintf("wstunnel exited during startup: %v", p.waitErr)
	}
	return "wstunnel exited during startup"
}
