package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNew_JSONFormatAndLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "warn", "JSON")

	l.Info("dropped")
	require.Zero(t, buf.Len())

	l.Warn("kept", "event_id", "Ev1")
	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "kept", line["msg"])
	require.Equal(t, "Ev1", line["event_id"])
}

func TestNew_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, "debug", "text").Debug("hello", "k", "v")
	require.Contains(t, buf.String(), "msg=hello")
	require.Contains(t, buf.String(), "k=v")
}

func TestContextLogger(t *testing.T) {
	require.Equal(t, slog.Default(), FromContext(context.Background()))

	var buf bytes.Buffer
	ctx := WithContext(context.Background(), New(&buf, "info", "json"))
	ctx = With(ctx, "channel_id", "C1")
	FromContext(ctx).Info("scoped")
	require.Contains(t, buf.String(), `"channel_id":"C1"`)
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	require.Equal(t, slog.LevelWarn, parseLevel("warning"))
	require.Equal(t, slog.LevelError, parseLevel(" error "))
	require.Equal(t, slog.LevelInfo, parseLevel("nope"))
}
