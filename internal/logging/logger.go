// Package logging builds the structured logger used across the service.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

// New builds a JSON logger tuned for production use. slog keeps the
// standard library feel while still emitting structured logs that ship
// to any backend.
func New(level string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     levelFromString(level),
		AddSource: true,
	}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}

func levelFromString(level string) slog.Leveler {
	switch strings.ToLower(strings.TrimSpace(level)) {
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
