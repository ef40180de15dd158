package engine

import (
	"fmt"
	"strings"
)

// LogLevel is the verbosity requested from the engine, independent of the
// wsbridge process log level.
type LogLevel int

const (
	LogError LogLevel = 0
	LogWarn  LogLevel = 1
	LogInfo  LogLevel = 2
	LogDebug LogLevel = 3
	LogTrace LogLevel = 4
)

var logLevelNames = [...]string{"error", "warn", "info", "debug", "trace"}

func (l LogLevel) String() string {
	if l.Valid() {
		return logLevelNames[l]
	}
	return fmt.Sprintf("LogLevel(%d)", int(l))
}

// Valid reports whether l is one of the defined levels.
func (l LogLevel) Valid() bool {
	return l >= LogError && l <= LogTrace
}

// ParseLogLevel accepts a level name ("warning" is an alias for warn).
func ParseLogLevel(s string) (LogLevel, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "warning" {
		name = "warn"
	}
	for i, n := range logLevelNames {
		if n == name {
			return LogLevel(i), nil
		}
	}
	return LogError, fmt.Errorf("unknown engine log level %q", s)
}
