package logging

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"":      slog.LevelInfo,
		"debug": slog.LevelDebug,
		"WARN":  slog.LevelWarn,
		"error": slog.LevelError,
	} {
		got, err := ParseLevel(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestNew_JSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sift.log")
	logger, closeFn, err := New(Config{Level: "debug", Format: "json", File: path, MaxSizeMB: 1})
	require.NoError(t, err)

	logger.Debug("rendered", "url", "https://a.example", "paragraphs", 3)
	require.NoError(t, closeFn())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	line := strings.TrimSpace(string(data))

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &rec))
	assert.Equal(t, "rendered", rec["msg"])
	assert.Equal(t, "https://a.example", rec["url"])
}

func TestNew_LevelFilters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sift.log")
	logger, closeFn, err := New(Config{Level: "warn", File: path})
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown")
	require.NoError(t, closeFn())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hidden")
	assert.Contains(t, string(data), "shown")
}

func TestNew_BadFormat(t *testing.T) {
	_, _, err := New(Config{Format: "xml"})
	assert.Error(t, err)
}
