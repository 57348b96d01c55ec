// Package log configures the process-wide slog logger for rivet
// binaries.
package log

import (
	"log/slog"
	"os"
	"strings"
)

// Setup installs the default logger. Unknown levels fall back to info;
// set LOG_FORMAT=json for machine-readable output.
func Setup(logLevel string) {
	opts := &slog.HandlerOptions{Level: parseLevel(logLevel)}

	var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if strings.EqualFold(os.Getenv("LOG_FORMAT"), "json") {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))
}

func parseLevel(logLevel string) slog.Level {
	switch strings.ToLower(logLevel) {
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

// WithModule returns a child logger tagged with the owning module.
func WithModule(module string) *slog.Logger {
	return slog.With("module", module)
}
