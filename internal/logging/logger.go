package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// New builds the structured JSON logger every component receives
// through its constructor. An unrecognized level name degrades to info
// instead of failing startup.
func New(w io.Writer, level string) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:     ParseLevel(level),
		AddSource: true,
	})
	return slog.New(handler)
}

// NewLogger writes to stdout, where the dispatch processes expect
// their logs to be collected from.
func NewLogger(level string) *slog.Logger {
	return New(os.Stdout, level)
}

// ParseLevel maps a LOG_LEVEL value to its slog level. Matching is
// case-insensitive and tolerates surrounding whitespace.
func ParseLevel(level string) slog.Level {
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
