package logging_test

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"tasksync/internal/logging"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in    string
		want  slog.Level
		known bool
	}{
		{"debug", slog.LevelDebug, true},
		{"INFO", slog.LevelInfo, true},
		{" warn ", slog.LevelWarn, true},
		{"error", slog.LevelError, true},
		{"verbose", slog.LevelInfo, false},
	}
	for _, tt := range tests {
		got, ok := logging.ParseLevel(tt.in)
		assert.Equal(t, tt.want, got, tt.in)
		assert.Equal(t, tt.known, ok, tt.in)
	}
}

func TestSetup_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	log := logging.Setup("info", "json", &buf)

	log.Debug("hidden")
	log.Info("queued task", "id", 7)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"queued task"`)
	assert.Contains(t, out, `"id":7`)
}

func TestSetup_InvalidLevelWarns(t *testing.T) {
	var buf bytes.Buffer
	logging.Setup("loud", "text", &buf)

	assert.Contains(t, buf.String(), "invalid log level configured")
	assert.Contains(t, buf.String(), "configured_level=loud")
}
