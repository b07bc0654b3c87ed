// Package logging builds the structured logger shared by the pipeline.
package logging

import (
	"io"
	"log/slog"
	"strings"
)

// ParseLevel maps a textual level to a slog.Level. Unknown values fall back
// to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug", "trace":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "fatal":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New returns a JSON logger, or a human-readable text logger when pretty is set.
func New(w io.Writer, level string, pretty bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	if pretty {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// Discard returns a logger that drops everything; handy in tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}
