package engine

import (
	"errors"
	"fmt"
)

// Code is a result code reported by the engine.
type Code int

const (
	CodeOK             Code = 0
	CodeAlreadyRunning Code = -1
	CodeInvalidParam   Code = -2
	CodeRuntime        Code = -3
	CodeStartFailed    Code = -4
	CodeNotRunning     Code = -5
	CodeConfigNull     Code = -6
)

func (c Code) String() string {
	switch c {
	case CodeOK:
		return "ok"
	case CodeAlreadyRunning:
		return "already running"
	case CodeInvalidParam:
		return "invalid parameter"
	case CodeRuntime:
		return "runtime error"
	case CodeStartFailed:
		return "start failed"
	case CodeNotRunning:
		return "not running"
	case CodeConfigNull:
		return "config is null"
	default:
		return fmt.Sprintf("unknown code %d", int(c))
	}
}

// Error is a non-OK engine result with optional detail text.
type Error struct {
	Code   Code
	Detail string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("engine: %s (%d)", e.Code, int(e.Code))
	}
	return fmt.Sprintf("engine: %s (%d): %s", e.Code, int(e.Code), e.Detail)
}

// Errorf builds an *Error with a formatted detail.
func Errorf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Detail: fmt.Sprintf(format, args...)}
}

// CodeOf returns the engine code carried by err, CodeOK for nil, or
// CodeRuntime when err carries no engine code.
func CodeOf(err error) Code {
	if err == nil {
		return CodeOK
	}
	var engErr *Error
	if errors.As(err, &engErr) {
		return engErr.Code
	}
	return CodeRuntime
}
