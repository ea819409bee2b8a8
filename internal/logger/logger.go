// Package logger builds the structured slog logger used for startup,
// bootstrap and shutdown events. Hot-path components log through the
// stdlib log package with a [component] prefix; slog carries the
// machine-readable lifecycle events.
package logger

import (
	"log/slog"
	"os"
	"strings"
)

// Init creates a JSON logger for the given service, installs it as the
// slog default, and returns it.
func Init(service string, level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})

	logger := slog.New(handler).With(
		slog.String("service", service),
	)

	slog.SetDefault(logger)
	return logger
}

// ParseLevel maps a LOG_LEVEL string to a slog level. Unknown values
// fall back to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
