package logger

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerWritesStructuredFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.log")

	log, err := New(WithLevel(DebugLevel), WithOutputPaths([]string{path}))
	require.NoError(t, err)

	log.WithFields(NewField("component", "feed")).Info("connected", NewField("attempt", 3))
	log.Error(errors.New("dial failed"), NewField("url", "ws://localhost"))
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)

	assert.Contains(t, out, `"message":"connected"`)
	assert.Contains(t, out, `"component":"feed"`)
	assert.Contains(t, out, `"attempt":3`)
	assert.Contains(t, out, `"message":"dial failed"`)
}

func TestLoggerLevelFilters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.log")

	log, err := New(WithLevel(WarnLevel), WithOutputPaths([]string{path}))
	require.NoError(t, err)

	log.Debug("hidden")
	log.Info("hidden too")
	log.Warn("visible")
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(data), "\n"))
	assert.Contains(t, string(data), "visible")
}

func TestNopLogger(t *testing.T) {
	log := NewNop()
	assert.NotPanics(t, func() {
		log.Info("ignored", NewField("k", "v"))
		log.Error(errors.New("ignored"))
	})
}
