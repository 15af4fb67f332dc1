package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewWritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flight-display.log")

	log, err := New(Options{File: path})
	require.NoError(t, err)

	log.With("component", "poller").Info("cycle complete", "flights", 12)
	log.Debug("hidden at info level")
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "cycle complete", entry["msg"])
	assert.Equal(t, "poller", entry["component"])
	assert.Equal(t, float64(12), entry["flights"])
	assert.Contains(t, entry, "timestamp")
}

func TestNewVerboseEnablesDebug(t *testing.T) {
	path := filepath.Join(t.TempDir(), "debug.log")

	log, err := New(Options{File: path, Verbose: true})
	require.NoError(t, err)
	log.Debug("detail fetch", "callsigns", 3)
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "detail fetch")
}

func TestNewWithoutDestinationIsNop(t *testing.T) {
	log, err := New(Options{})
	require.NoError(t, err)
	assert.NotPanics(t, func() { log.Error("dropped") })
}

func TestNewBadFile(t *testing.T) {
	_, err := New(Options{File: filepath.Join(t.TempDir(), "missing", "x.log")})
	assert.Error(t, err)
}

func TestFromZap(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := FromZap(zap.New(core))

	log.With("component", "cache").Debug("Removed expired cache entries", "count", 2)

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "Removed expired cache entries", entries[0].Message)
	assert.Equal(t, map[string]any{"component": "cache", "count": int64(2)}, entries[0].ContextMap())
}
