package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/muxstream/v2/internal/config"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry), "log line not JSON: %s", line)
		out = append(out, entry)
	}
	return out
}

func TestLoggerEmitsStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	lg := NewTestLogger(&buf)

	lg.Info("stream bound", LogFields{"stream_id": 7, "writable": true})

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "stream bound", entries[0]["message"])
	assert.Equal(t, "info", entries[0]["level"])
	assert.EqualValues(t, 7, entries[0]["stream_id"])
	assert.Equal(t, true, entries[0]["writable"])
}

func TestLoggerLevelFiltering(t *testing.T) {
	tmp := filepath.Join(t.TempDir(), "engine.log")
	lg, err := NewLogger(&config.LoggingConfig{
		LogLevel: config.LogLevelWarning,
		Target:   tmp,
	})
	require.NoError(t, err)

	lg.Debug("suppressed", nil)
	lg.Info("suppressed too", nil)
	lg.Warn("kept", LogFields{"kind": "warning"})
	lg.Error("kept too", nil)
	require.NoError(t, lg.CloseLogFiles())

	data, err := os.ReadFile(tmp)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "suppressed")
	assert.Contains(t, string(data), "kept")
	assert.Contains(t, string(data), "kept too")
}

func TestLoggerFileTargetAppends(t *testing.T) {
	tmp := filepath.Join(t.TempDir(), "engine.log")

	for i := 0; i < 2; i++ {
		lg, err := NewLogger(&config.LoggingConfig{
			LogLevel: config.LogLevelInfo,
			Target:   tmp,
		})
		require.NoError(t, err)
		lg.Info("run", LogFields{"n": i})
		require.NoError(t, lg.CloseLogFiles())
	}

	data, err := os.ReadFile(tmp)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Len(t, lines, 2)
}

func TestLoggerNilConfigDefaults(t *testing.T) {
	lg, err := NewLogger(nil)
	require.NoError(t, err)
	// stderr target, nothing to close
	assert.NoError(t, lg.CloseLogFiles())
}

func TestNilLoggerIsSafe(t *testing.T) {
	var lg *Logger
	lg.Debug("x", nil)
	lg.Info("x", nil)
	lg.Warn("x", nil)
	lg.Error("x", nil)
	assert.NoError(t, lg.CloseLogFiles())
}

func TestDiscardLoggerDropsEverything(t *testing.T) {
	lg := NewDiscardLogger()
	lg.Error("into the void", LogFields{"ignored": true})
	assert.NoError(t, lg.CloseLogFiles())
}
