// Package bridgeerr defines the error taxonomy shared by the configuration
// store, the runtime adapters and the lifecycle controller.
//
// Every failure crossing a package boundary is an *Error carrying a Kind, so
// callers can branch with errors.Is(err, bridgeerr.InvalidState) no matter how
// deeply the error was wrapped.
package bridgeerr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind string

const (
	DbOpen         Kind = "db_open"
	DbQuery        Kind = "db_query"
	DbWrite        Kind = "db_write"
	InvalidParam   Kind = "invalid_param"
	InvalidState   Kind = "invalid_state"
	NotInitialized Kind = "not_initialized"
	StartFailed    Kind = "start_failed"
	AlreadyRunning Kind = "already_running"
	NotRunning     Kind = "not_running"
)

var kindMessages = map[Kind]string{
	DbOpen:         "database open failed",
	DbQuery:        "database query failed",
	DbWrite:        "database write failed",
	InvalidParam:   "invalid parameter",
	InvalidState:   "invalid state",
	NotInitialized: "not initialized",
	StartFailed:    "start failed",
	AlreadyRunning: "already running",
	NotRunning:     "not running",
}

// Error implements error so a bare Kind can be used as an errors.Is target.
func (k Kind) Error() string {
	if msg, ok := kindMessages[k]; ok {
		return msg
	}
	return string(k)
}

// Error is a typed failure with an optional detail string and cause.
type Error struct {
	Kind   Kind
	Detail string
	Cause  error
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is this error's Kind or an *Error of the same Kind.
func (e *Error) Is(target error) bool {
	switch t := target.(type) {
	case Kind:
		return e.Kind == t
	case *Error:
		return t != nil && e.Kind == t.Kind
	}
	return false
}

// New returns an *Error with a formatted detail.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// Wrap returns an *Error with the given cause. A nil cause yields nil.
func Wrap(kind Kind, cause error, format string, args ...any) error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf returns the Kind of the outermost *Error in err's chain, or "" if
// err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
