package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttrs(t *testing.T) {
	scope := Scope("sweep")
	assert.Equal(t, "scope", scope.Key)
	assert.Equal(t, "sweep", scope.Value.String())

	err := errors.New("boom")
	attr := Error(err)
	assert.Equal(t, "error", attr.Key)
	assert.Equal(t, err, attr.Value.Any())
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"", slog.LevelInfo},
		{"info", slog.LevelInfo},
		{"debug", slog.LevelDebug},
		{" DEBUG ", slog.LevelDebug},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLevel(tt.in))
		})
	}
}

func TestNewLogger_Level(t *testing.T) {
	var buf bytes.Buffer
	log := newLogger(&buf, "warn", "local")

	assert.False(t, log.Enabled(context.Background(), slog.LevelInfo))
	log.Info("dropped")
	log.Warn("kept", Scope("commit"))

	out := buf.String()
	assert.NotContains(t, out, "dropped")
	assert.Contains(t, out, "kept")
	assert.Contains(t, out, "scope=commit")
}

func TestNewLogger_ProductionJSON(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, "", "production").Info("transaction committed", slog.String("tenant", "acme"))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "transaction committed", line["msg"])
	assert.Equal(t, "acme", line["tenant"])
}

func TestNewLogger_Env(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("GO_ENV", "")
	assert.True(t, NewLogger().Enabled(context.Background(), slog.LevelDebug))
}

func TestHTTPLogger_LogRequest(t *testing.T) {
	var buf bytes.Buffer
	l := NewHTTPLoggerWriter(&buf)

	l.LogRequest("10.0.0.1", "POST", "/api/entities", 200, 15*time.Millisecond, "curl/8.0", "req-1")

	line := buf.String()
	for _, want := range []string{"10.0.0.1", `"POST /api/entities"`, " 200 ", "15ms", `"curl/8.0"`, "req-1"} {
		assert.Contains(t, line, want)
	}
}

func TestNewHTTPLogger_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "access.log")
	t.Setenv("HTTP_LOG_FILE", path)

	l := NewHTTPLogger(slog.New(slog.DiscardHandler))
	l.LogRequest("10.0.0.1", "GET", "/api/sweep", 200, time.Millisecond, "", "req-2")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "req-2"))
}

func TestHTTPLogger_NilSafe(t *testing.T) {
	var l *HTTPLogger
	assert.NotPanics(t, func() { l.LogRequest("ip", "GET", "/", 200, 0, "", "") })
}
