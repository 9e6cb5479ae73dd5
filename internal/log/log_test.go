package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.in), "ParseLevel(%q)", tt.in)
	}
}

func TestNewHandler_ProductionIsJSON(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(NewHandler(&buf, "info", true))
	l.Info("hello", "label", "up")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec), "output %q", buf.String())
	assert.Equal(t, "up", rec["label"])
}

func TestNewHandler_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(NewHandler(&buf, "warn", false))
	l.Info("dropped")
	assert.Zero(t, buf.Len(), "info should be filtered at warn level")
	l.Warn("kept")
	assert.NotZero(t, buf.Len(), "warn should be written at warn level")
}
