package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"trace": LevelTrace,
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"":      slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"loud":  slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestSetupLogger_Split(t *testing.T) {
	var stdout, stderr bytes.Buffer
	logger, closers, err := setupLogger(&stdout, &stderr, "debug", FormatText, "")
	require.NoError(t, err)
	assert.Empty(t, closers)

	logger.Debug("configured", "config", 1)
	logger.Error("fault")
	logger.Log(t.Context(), LevelTrace, "register write")

	assert.Contains(t, stdout.String(), "msg=configured")
	assert.NotContains(t, stdout.String(), "fault")
	assert.NotContains(t, stdout.String(), "register write")
	assert.Contains(t, stderr.String(), "msg=fault")
}

func TestSetupLogger_JSON(t *testing.T) {
	var stdout, stderr bytes.Buffer
	logger, _, err := setupLogger(&stdout, &stderr, "trace", FormatAuto, "")
	require.NoError(t, err)

	// A buffer is not a terminal.
	logger.Log(t.Context(), LevelTrace, "register write", "offset", 0x800)
	var rec map[string]any
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &rec))
	assert.Equal(t, "TRACE", rec["level"])
	assert.Equal(t, "register write", rec["msg"])
}

func TestSetupLogger_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vcpsim.log")
	var stdout, stderr bytes.Buffer
	logger, closers, err := setupLogger(&stdout, &stderr, "info", FormatText, path)
	require.NoError(t, err)
	require.Len(t, closers, 1)

	logger.Info("enumerated")
	logger.Warn("stalled")
	for _, c := range closers {
		require.NoError(t, c.Close())
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "msg=enumerated")
	assert.Contains(t, string(data), "msg=stalled")
	assert.NotContains(t, stderr.String(), "enumerated")
	assert.Contains(t, stderr.String(), "msg=stalled")
	assert.Empty(t, stdout.String())
}

func TestLevelFilter_WithAttrs(t *testing.T) {
	var buf bytes.Buffer
	h := NewLevelFilter(func(l slog.Level) bool { return l == slog.LevelWarn },
		slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	logger := slog.New(NewMultiHandler(h)).With("component", "cdc")

	logger.Info("dropped")
	logger.Warn("kept")
	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "component=cdc")
}
