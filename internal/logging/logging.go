// Package logging builds the structured logger shared by every component.
package logging

import (
	"io"
	"log/slog"
	"strings"
)

// ParseLevel maps a configured level name (case-insensitive) to a slog level.
// The second result is false when the name is unknown; info is returned then.
func ParseLevel(name string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

// Setup creates a logger writing to w. format is "json" or "text";
// anything else falls back to text. An unknown level is reported once
// through the new logger and replaced with info.
func Setup(level, format string, w io.Writer) *slog.Logger {
	lvl, ok := ParseLevel(level)

	opts := &slog.HandlerOptions{Level: lvl}

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	logger := slog.New(handler)
	if !ok {
		logger.Warn("invalid log level configured, using default level",
			"configured_level", level,
			"default_level", "info")
	}
	return logger
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}
