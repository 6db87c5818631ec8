package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withCapturedLogger(t *testing.T, level, format string) *bytes.Buffer {
	t.Helper()

	saved := logger
	savedDefault := slog.Default()
	t.Cleanup(func() {
		logger = saved
		slog.SetDefault(savedDefault)
	})

	var buf bytes.Buffer
	initLogger(&buf, level, format)
	return &buf
}

func TestInitLogger_JSONFormat(t *testing.T) {
	buf := withCapturedLogger(t, "info", "json")

	slog.Info("test message", slog.String("key", "value"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "test message", entry["msg"])
	assert.Equal(t, "value", entry["key"])
}

func TestInitLogger_TextFormat(t *testing.T) {
	buf := withCapturedLogger(t, "info", "text")

	slog.Info("test message")

	assert.Contains(t, buf.String(), "msg=\"test message\"")
}

func TestInitLogger_LogLevels(t *testing.T) {
	tests := []struct {
		name       string
		level      string
		debugShown bool
		infoShown  bool
	}{
		{"debug_level", "debug", true, true},
		{"info_level", "info", false, true},
		{"warn_level", "warn", false, false},
		{"error_level", "error", false, false},
		{"invalid_defaults_to_info", "unknown", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := withCapturedLogger(t, tt.level, "text")

			slog.Debug("debug line")
			slog.Info("info line")

			assert.Equal(t, tt.debugShown, bytes.Contains(buf.Bytes(), []byte("debug line")))
			assert.Equal(t, tt.infoShown, bytes.Contains(buf.Bytes(), []byte("info line")))
		})
	}
}

func TestInitLogger_AddSourceOption(t *testing.T) {
	buf := withCapturedLogger(t, "debug", "json")

	slog.Debug("with source")

	assert.Contains(t, buf.String(), "\"source\"")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"DEBUG", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLevel(tt.input))
		})
	}
}

func TestFromContext(t *testing.T) {
	t.Run("attaches_request_and_client_ids", func(t *testing.T) {
		buf := withCapturedLogger(t, "info", "json")

		ctx := WithRequestID(context.Background(), "req-123")
		ctx = WithClientID(ctx, "client-abc")
		ctx = WithUsername(ctx, "alice")
		FromContext(ctx).Info("hello")

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "req-123", entry["request_id"])
		assert.Equal(t, "client-abc", entry["client_id"])
		assert.Equal(t, "alice", entry["username"])
	})

	t.Run("empty_values_are_ignored", func(t *testing.T) {
		buf := withCapturedLogger(t, "info", "json")

		ctx := WithRequestID(context.Background(), "")
		ctx = WithClientID(ctx, "")
		FromContext(ctx).Info("hello")

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.NotContains(t, entry, "request_id")
		assert.NotContains(t, entry, "client_id")
	})

	t.Run("falls_back_to_default_when_not_initialized", func(t *testing.T) {
		saved := logger
		defer func() { logger = saved }()
		logger = nil

		assert.Equal(t, slog.Default(), FromContext(context.Background()))
	})
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = WithRequestID(ctx, "old-id")
	ctx = WithRequestID(ctx, "new-id")
	ctx = WithClientID(ctx, "client-1")

	assert.Equal(t, "new-id", ctx.Value(requestIDKey))
	assert.Equal(t, "client-1", ctx.Value(clientIDKey))
	assert.Nil(t, ctx.Value(usernameKey))
}
