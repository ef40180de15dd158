package main

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/phantomwg/wsbridge/internal/controller"
	"github.com/phantomwg/wsbridge/internal/engine"
)

// errRestartBudget is returned when the session keeps dying faster than the
// restart limiter allows.
var errRestartBudget = errors.New("session restarted too often; giving up")

type sessionController interface {
	Status() controller.Report
	Start(level engine.LogLevel) error
	Stop() error
}

// supervisor watches a started session until ctx ends. A dead session is
// restarted when restart is set and the limiter has budget left.
type supervisor struct {
	ctl     sessionController
	level   engine.LogLevel
	restart bool
	limiter *rate.Limiter
	poll    time.Duration
	log     logrus.FieldLogger
}

func newRestartLimiter(interval time.Duration, burst int) *rate.Limiter {
	return rate.NewLimiter(rate.Every(interval), burst)
}

// run returns nil when ctx is cancelled with the session still up, and the
// session's failure otherwise. It never stops a healthy session.
func (s *supervisor) run(ctx context.Context) error {
	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		status := s.ctl.Status()
		if status.IsRunning == nil || *status.IsRunning {
			continue
		}

		cause := "engine exited"
		if status.RuntimeError != nil && *status.RuntimeError != "" {
			cause = *status.RuntimeError
		}
		log := s.log.WithField("cause", cause)
		if status.SessionID != nil {
			log = log.WithField("session_id", *status.SessionID)
		}

		if err := s.ctl.Stop(); err != nil {
			log.WithError(err).Warn("stop after session exit failed")
		}
		if !s.restart {
			log.Error("session ended unexpectedly")
			return errors.New(cause)
		}
		if s.limiter != nil && !s.limiter.Allow() {
			log.Error("session ended unexpectedly; restart budget exhausted")
			return errRestartBudget
		}

		log.Warn("session ended unexpectedly; restarting")
		if err := s.ctl.Start(s.level); err != nil {
			return err
		}
	}
}
