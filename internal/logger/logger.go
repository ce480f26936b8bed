// Package logger builds the application's slog.Logger.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// ParseLevel maps debug, info, warn and error (any case) to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("logger: unknown level %q", s)
	}
	return level, nil
}

// Setup returns a logger writing to w (os.Stdout when nil) in the given
// format: "json" for structured output, anything else for text.
func Setup(w io.Writer, format string, level slog.Level) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// SetupDefault builds a logger with Setup and installs it as slog's default,
// so code logging through slog.Default() shares its handler.
func SetupDefault(w io.Writer, format string, level slog.Level) *slog.Logger {
	l := Setup(w, format, level)
	slog.SetDefault(l)
	return l
}
