package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaults(t *testing.T) {
	t.Parallel()

	logger, closeFn, err := New(Options{Output: &bytes.Buffer{}})
	require.NoError(t, err)
	defer closeFn()

	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, logger.Formatter)
}

func TestNewJSONFormat(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, closeFn, err := New(Options{Level: "debug", Format: "JSON", Output: &buf})
	require.NoError(t, err)
	defer closeFn()

	Component(logger, "controller").Debug("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "hello", entry["msg"])
	assert.Equal(t, "controller", entry["component"])
	assert.Equal(t, "debug", entry["level"])
}

func TestNewRejectsBadOptions(t *testing.T) {
	t.Parallel()

	_, _, err := New(Options{Level: "loud"})
	assert.Error(t, err)

	_, _, err = New(Options{Format: "xml"})
	assert.Error(t, err)
}

func TestNewWritesLogFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "logs", "wsbridge.log")
	logger, closeFn, err := New(Options{Output: &bytes.Buffer{}, File: path})
	require.NoError(t, err)

	logger.Info("to file")
	require.NoError(t, closeFn())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "to file")
}

func TestComponentNilLogger(t *testing.T) {
	t.Parallel()

	entry := Component(nil, "store")
	assert.NotPanics(t, func() { entry.Warn("dropped") })
}

func TestComponentField(t *testing.T) {
	t.Parallel()

	logger, hook := test.NewNullLogger()
	Component(logger, "engine").Warn("careful")

	require.Len(t, hook.AllEntries(), 1)
	assert.Equal(t, "engine", hook.LastEntry().Data["component"])
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}
