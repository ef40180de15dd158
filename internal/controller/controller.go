// Package controller owns the wsbridge lifecycle: it opens the configuration
// store, builds an engine session from it on Start and tears the session down
// on Stop and Close.
//
// A Controller is not safe for concurrent use; callers serialize their calls.
package controller

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/phantomwg/wsbridge/internal/adapters"
	"github.com/phantomwg/wsbridge/internal/bridgeerr"
	"github.com/phantomwg/wsbridge/internal/config/store"
	"github.com/phantomwg/wsbridge/internal/constants"
	"github.com/phantomwg/wsbridge/internal/engine"
	"github.com/phantomwg/wsbridge/internal/logging"
	"github.com/phantomwg/wsbridge/internal/tlswarn"
)

// State is the in-memory lifecycle state. It mirrors store.State plus
// StateUninitialized, which is never persisted.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateInitialized   State = State(store.StateInitialized)
	StateStarted       State = State(store.StateStarted)
	StateStopped       State = State(store.StateStopped)
	StateClosed        State = State(store.StateClosed)
)

// Options configures a Controller.
type Options struct {
	Engine engine.Engine
	Logger logrus.FieldLogger

	// StopTimeout bounds the wait for a stopped session to report it is no
	// longer running; StopPollInterval is the polling period.
	StopTimeout      time.Duration
	StopPollInterval time.Duration

	// NewSessionID defaults to uuid.NewString.
	NewSessionID func() string
	// Clock is passed to the store for updated_at/created_at stamps.
	Clock func() time.Time
}

// Controller is the lifecycle state machine.
type Controller struct {
	engine           engine.Engine
	log              logrus.FieldLogger
	stopTimeout      time.Duration
	stopPollInterval time.Duration
	newSessionID     func() string
	clock            func() time.Time
	storeLog         logrus.FieldLogger

	state     State
	store     *store.Store
	session   engine.Session
	sessionID string
	lastErr   string
}

// New returns a Controller in StateUninitialized.
func New(opts Options) *Controller {
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = constants.SessionStopTimeout
	}
	if opts.StopPollInterval <= 0 {
		opts.StopPollInterval = constants.SessionStopPollInterval
	}
	if opts.NewSessionID == nil {
		opts.NewSessionID = uuid.NewString
	}
	return &Controller{
		engine:           opts.Engine,
		log:              logging.Component(opts.Logger, "controller"),
		storeLog:         logging.Component(opts.Logger, "store"),
		stopTimeout:      opts.StopTimeout,
		stopPollInterval: opts.StopPollInterval,
		newSessionID:     opts.NewSessionID,
		clock:            opts.Clock,
		state:            StateUninitialized,
	}
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	return c.state
}

// Store returns the open configuration store, or NotInitialized before Init
// and after Close.
func (c *Controller) Store() (*store.Store, error) {
	if c.store == nil {
		return nil, bridgeerr.New(bridgeerr.NotInitialized, "controller has no open store")
	}
	return c.store, nil
}

// Init opens the store at location, closing any previous one first, and moves
// to StateInitialized. An empty mode keeps the stored mode; a different
// non-empty mode replaces it. A stored "started" state left by a process that
// died while running is reset rather than resumed.
func (c *Controller) Init(location string, mode store.Mode) error {
	if c.state != StateUninitialized && c.state != StateClosed {
		c.closeInternal()
	}
	c.lastErr = ""

	if mode != "" && !mode.Valid() {
		return c.fail(bridgeerr.New(bridgeerr.InvalidParam, "unknown mode %q", mode))
	}

	st, err := store.Open(store.Options{
		DBPath: location,
		Mode:   mode,
		Logger: c.storeLog,
		Clock:  c.clock,
	})
	if err != nil {
		return c.fail(err)
	}

	ctx, cancel := storeContext()
	defer cancel()

	status, err := st.GetStatus(ctx)
	if err != nil {
		st.Close()
		return c.fail(err)
	}

	if status.State == store.StateStarted {
		c.log.WithField("updated_at", status.UpdatedAt).Warn("previous run did not stop cleanly; session not resumed")
	}
	if mode != "" && mode != status.Mode {
		if err := st.SetMode(ctx, mode); err != nil {
			st.Close()
			return c.fail(err)
		}
		c.log.WithFields(logrus.Fields{"from": status.Mode, "to": mode}).Info("mode reconfigured")
		status.Mode = mode
	}
	if err := st.SetState(ctx, store.StateInitialized); err != nil {
		st.Close()
		return c.fail(err)
	}

	c.store = st
	c.state = StateInitialized
	c.log.WithFields(logrus.Fields{"db": location, "mode": status.Mode}).Info("initialized")
	return nil
}

// Start builds a session for the stored mode and starts it. It is legal only
// from StateInitialized and StateStopped.
func (c *Controller) Start(level engine.LogLevel) error {
	switch c.state {
	case StateInitialized, StateStopped:
	case StateUninitialized, StateClosed:
		return c.fail(bridgeerr.New(bridgeerr.NotInitialized, "start requires init (state %s)", c.state))
	default:
		return c.fail(bridgeerr.New(bridgeerr.InvalidState, "cannot start from state %s", c.state))
	}
	if c.engine == nil {
		return c.fail(bridgeerr.New(bridgeerr.StartFailed, "no engine configured"))
	}

	ctx, cancel := storeContext()
	defer cancel()

	status, err := c.store.GetStatus(ctx)
	if err != nil {
		return c.fail(err)
	}

	var session engine.Session
	switch status.Mode {
	case store.ModeClient:
		session, err = c.startClient(ctx, level)
	case store.ModeServer:
		session, err = c.startServer(ctx, level)
	default:
		err = bridgeerr.New(bridgeerr.InvalidParam, "unknown mode %q", status.Mode)
	}
	if err != nil {
		return c.fail(startError(status.Mode, err))
	}

	if err := c.store.SetState(ctx, store.StateStarted); err != nil {
		if stopErr := session.Stop(); stopErr != nil {
			c.log.WithError(stopErr).Warn("engine stop after failed state write")
		}
		session.Free()
		return c.fail(err)
	}

	c.session = session
	c.sessionID = c.newSessionID()
	c.state = StateStarted
	c.log.WithFields(logrus.Fields{
		"mode":       status.Mode,
		"session_id": c.sessionID,
		"log_level":  level,
	}).Info("session started")
	return nil
}

func (c *Controller) startClient(ctx context.Context, level engine.LogLevel) (engine.Session, error) {
	cfg, err := c.store.GetClientConfig(ctx)
	if err != nil {
		return nil, err
	}
	tunnels, err := c.store.ListTunnels(ctx)
	if err != nil {
		return nil, err
	}
	headers, err := c.store.ListHeaders(ctx)
	if err != nil {
		return nil, err
	}
	if tlswarn.Insecure(cfg.RemoteURL, cfg.TLSVerify) {
		tlswarn.LogInsecure(c.log, cfg.RemoteURL)
	}
	return adapters.StartClient(c.engine, adapters.ClientInput{Config: cfg, Tunnels: tunnels, Headers: headers}, level)
}

func (c *Controller) startServer(ctx context.Context, level engine.LogLevel) (engine.Session, error) {
	cfg, err := c.store.GetServerConfig(ctx)
	if err != nil {
		return nil, err
	}
	restrictions, err := c.store.ListRestrictions(ctx)
	if err != nil {
		return nil, err
	}
	return adapters.StartServer(c.engine, adapters.ServerInput{Config: cfg, Restrictions: restrictions}, level)
}

// startError keeps taxonomy errors as they are and classifies engine
// failures. AlreadyRunning and NotRunning surface verbatim; anything else is
// StartFailed.
func startError(mode store.Mode, err error) error {
	if bridgeerr.KindOf(err) != "" {
		return err
	}
	var engErr *engine.Error
	if errors.As(err, &engErr) {
		switch engErr.Code {
		case engine.CodeAlreadyRunning:
			return bridgeerr.Wrap(bridgeerr.AlreadyRunning, err, "%s session", mode)
		case engine.CodeNotRunning:
			return bridgeerr.Wrap(bridgeerr.NotRunning, err, "%s session", mode)
		}
	}
	return bridgeerr.Wrap(bridgeerr.StartFailed, err, "%s session", mode)
}

// Stop tears down the running session. It is legal only from StateStarted and
// always reaches StateStopped; engine failures are logged, not returned.
func (c *Controller) Stop() error {
	if c.state != StateStarted {
		return c.fail(bridgeerr.New(bridgeerr.InvalidState, "cannot stop from state %s", c.state))
	}

	c.stopSession()
	c.state = StateStopped

	ctx, cancel := storeContext()
	defer cancel()
	if err := c.store.SetState(ctx, store.StateStopped); err != nil {
		return c.fail(err)
	}
	c.log.Info("session stopped")
	return nil
}

// stopSession stops, waits for and frees the held session.
func (c *Controller) stopSession() {
	if c.session == nil {
		return
	}
	log := c.log.WithField("session_id", c.sessionID)

	if err := c.session.Stop(); err != nil {
		log.WithError(err).Warn("engine stop failed")
	}
	if !c.waitStopped() {
		log.WithField("timeout", c.stopTimeout).Warn("session still running after stop timeout")
	}
	c.session.Free()
	c.session = nil
	c.sessionID = ""
}

func (c *Controller) waitStopped() bool {
	if !c.session.IsRunning() {
		return true
	}
	deadline := time.NewTimer(c.stopTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(c.stopPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-deadline.C:
			return !c.session.IsRunning()
		case <-ticker.C:
			if !c.session.IsRunning() {
				return true
			}
		}
	}
}

// Close stops a running session, releases the store and moves to
// StateClosed. Closing an already closed controller does nothing.
func (c *Controller) Close() error {
	if c.state == StateClosed {
		return nil
	}
	c.closeInternal()
	return nil
}

func (c *Controller) closeInternal() {
	if c.state == StateStarted {
		c.stopSession()
	}

	if c.store != nil {
		ctx, cancel := storeContext()
		if err := c.store.SetState(ctx, store.StateClosed); err != nil {
			c.log.WithError(err).Warn("persist closed state failed")
		}
		cancel()
		if err := c.store.Close(); err != nil {
			c.log.WithError(err).Warn("close store failed")
		}
		c.store = nil
	}

	c.state = StateClosed
	c.lastErr = ""
	c.log.Info("closed")
}

// fail records err as the last error and returns it.
func (c *Controller) fail(err error) error {
	c.lastErr = err.Error()
	return err
}

func storeContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), constants.StoreOperationTimeout)
}
