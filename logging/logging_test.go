package logging

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

func TestNew_JSONHonoursLevel(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Options{Level: "warn", Output: &buf})
	require.NoError(t, err)

	l.Info("dropped")
	l.Warn("kept", "port", 80)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "kept", entry["msg"])
	assert.Equal(t, float64(80), entry["port"])
}

func TestNew_Text(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Options{Format: "text", Output: &buf})
	require.NoError(t, err)

	l.Info("scan started", "target", "127.0.0.1")
	assert.Contains(t, buf.String(), "target=127.0.0.1")
}

func TestNew_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "portsweep.log")
	l, err := New(Options{File: path})
	require.NoError(t, err)

	l.Info("hello")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
}

func TestNew_Invalid(t *testing.T) {
	_, err := New(Options{Format: "xml"})
	assert.Error(t, err)

	_, err = New(Options{Level: "loud"})
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":        slog.LevelInfo,
		"DEBUG":   slog.LevelDebug,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestLogger_ReturnsConfigured(t *testing.T) {
	var buf bytes.Buffer
	configured, err := Configure(Options{Format: "json", Output: &buf})
	require.NoError(t, err)
	assert.Same(t, configured, Logger())

	again, err := Configure(Options{Format: "text"})
	require.NoError(t, err)
	assert.Same(t, configured, again, "first successful Configure wins")
}
