package logger

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run("level_"+tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLevel(tt.input))
		})
	}
}

func TestNew_FileOutput(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "service.log")

	log, err := New(&Config{
		Level:  "info",
		Format: "json",
		Output: logPath,
	})
	require.NoError(t, err)

	log.Info("job stored", slog.String("job_id", "T1"))
	log.Debug("should be filtered")
	require.NoError(t, log.Close())

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "job stored", entry["msg"])
	assert.Equal(t, "T1", entry["job_id"])
}

func TestNew_FileOutputAppends(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "service.log")

	for i := 0; i < 2; i++ {
		log, err := New(&Config{Level: "info", Format: "json", Output: logPath})
		require.NoError(t, err)
		log.Info("entry")
		require.NoError(t, log.Close())
	}

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(string(data)), "\n"), 2)
}

func TestNew_UnwritableFilePathFails(t *testing.T) {
	_, err := New(&Config{
		Level:  "info",
		Format: "json",
		Output: filepath.Join(t.TempDir(), "missing", "service.log"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open log file")
}

func TestNew_ConsoleFormat(t *testing.T) {
	log, err := New(&Config{
		Level:      "debug",
		Format:     "console",
		Output:     "stdout",
		TimeFormat: time.RFC3339,
	})
	require.NoError(t, err)
	require.NotNil(t, log.Logger)
	assert.NoError(t, log.Close())
}

func TestWith(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "service.log")

	log, err := New(&Config{Level: "info", Format: "json", Output: logPath})
	require.NoError(t, err)

	log.With("job_id", "T2").Info("patched")
	require.NoError(t, log.Close())

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"job_id":"T2"`)
}
