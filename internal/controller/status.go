package controller

import (
	"context"
	"fmt"

	"github.com/phantomwg/wsbridge/internal/config/store"
)

// Report is the status snapshot returned by Status. Optional fields are nil
// when they could not be read.
type Report struct {
	State             State       `json:"status" yaml:"status"`
	LastError         string      `json:"last_error" yaml:"last_error"`
	Mode              *store.Mode `json:"mode,omitempty" yaml:"mode,omitempty"`
	TunnelsCount      *int        `json:"tunnels_count,omitempty" yaml:"tunnels_count,omitempty"`
	RestrictionsCount *int        `json:"restrictions_count,omitempty" yaml:"restrictions_count,omitempty"`
	HeadersCount      *int        `json:"headers_count,omitempty" yaml:"headers_count,omitempty"`
	IsRunning         *bool       `json:"is_running,omitempty" yaml:"is_running,omitempty"`
	RuntimeError      *string     `json:"runtime_error,omitempty" yaml:"runtime_error,omitempty"`
	SessionID         *string     `json:"session_id,omitempty" yaml:"session_id,omitempty"`
}

// Status never fails. Each optional field is read on its own; a failing read
// is logged at debug level and leaves only that field empty.
func (c *Controller) Status() Report {
	report := Report{State: c.state, LastError: c.lastErr}

	if c.store != nil {
		ctx, cancel := storeContext()
		defer cancel()

		c.bestEffort("mode", func() error {
			status, err := c.store.GetStatus(ctx)
			if err != nil {
				return err
			}
			report.Mode = &status.Mode
			return nil
		})
		report.TunnelsCount = c.count(ctx, "tunnels_count", c.store.CountTunnels)
		report.RestrictionsCount = c.count(ctx, "restrictions_count", c.store.CountRestrictions)
		report.HeadersCount = c.count(ctx, "headers_count", c.store.CountHeaders)
	}

	if c.session != nil {
		c.bestEffort("is_running", func() error {
			running := c.session.IsRunning()
			report.IsRunning = &running
			return nil
		})
		c.bestEffort("runtime_error", func() error {
			if msg, ok := c.session.LastError(); ok {
				report.RuntimeError = &msg
			}
			return nil
		})
		if c.sessionID != "" {
			id := c.sessionID
			report.SessionID = &id
		}
	}

	return report
}

func (c *Controller) count(ctx context.Context, field string, fn func(context.Context) (int, error)) *int {
	var out *int
	c.bestEffort(field, func() error {
		n, err := fn(ctx)
		if err != nil {
			return err
		}
		out = &n
		return nil
	})
	return out
}

// bestEffort runs one status sub-read, converting both errors and panics from
// the engine or store into a debug log entry.
func (c *Controller) bestEffort(field string, read func() error) {
	defer func() {
		if r := recover(); r != nil {
			c.log.WithField("field", field).WithError(fmt.Errorf("panic: %v", r)).Debug("status field unavailable")
		}
	}()
	if err := read(); err != nil {
		c.log.WithField("field", field).WithError(err).Debug("status field unavailable")
	}
}
