package wstunnelexec

import (
	"bufio"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/phantomwg/wsbridge/internal/sanitize"
)

// maxLineBytes caps a forwarded engine log line and the error reported from it.
const maxLineBytes = 1024

// stderrTail remembers the last ERROR line wstunnel printed, falling back to
// the last line of any kind.
type stderrTail struct {
	mu        sync.Mutex
	lastError string
	lastLine  string
}

func (t *stderrTail) observe(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastLine = line
	if lineLevel(line) == logrus.ErrorLevel {
		t.lastError = line
	}
}

func (t *stderrTail) last() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.lastError != "" {
		return t.lastError
	}
	return t.lastLine
}

// maxRawLineBytes is how much of one raw line is kept before escape
// stripping; the rest of an over-long line is read and dropped.
const maxRawLineBytes = 4 * maxLineBytes

// pump forwards each line of r to the logger at the level wstunnel tagged it
// with and, when tail is non-nil, records it there. It reads r to EOF however
// long a line gets, so the child never blocks on a full pipe.
func pump(r io.Reader, log logrus.FieldLogger, tail *stderrTail) error {
	br := bufio.NewReaderSize(r, 4096)
	line := make([]byte, 0, 512)
	for {
		chunk, err := br.ReadSlice('\n')
		if room := maxRawLineBytes - len(line); room > 0 {
			line = append(line, chunk[:min(len(chunk), room)]...)
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		forward(string(line), log, tail)
		line = line[:0]
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func forward(raw string, log logrus.FieldLogger, tail *stderrTail) {
	line := sanitize.LogLine(raw, maxLineBytes)
	if line == "" {
		return
	}
	if tail != nil {
		tail.observe(line)
	}
	switch lineLevel(line) {
	case logrus.ErrorLevel:
		log.Error(line)
	case logrus.WarnLevel:
		log.Warn(line)
	case logrus.InfoLevel:
		log.Info(line)
	default:
		log.Debug(line)
	}
}

// lineLevel finds the tracing level token in a wstunnel log line such as
// "2024-05-01T10:00:00Z ERROR wstunnel::tunnel: connection refused".
func lineLevel(line string) logrus.Level {
	for _, field := range strings.Fields(line) {
		switch field {
		case "ERROR":
			return logrus.ErrorLevel
		case "WARN":
			return logrus.WarnLevel
		case "INFO":
			return logrus.InfoLevel
		case "DEBUG", "TRACE":
			return logrus.DebugLevel
		}
	}
	return logrus.DebugLevel
}
