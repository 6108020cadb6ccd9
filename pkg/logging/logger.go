// Package logging is the structured logger shared by every component.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger embeds *slog.Logger so callers use the slog API directly.
type Logger struct {
	*slog.Logger
}

// New logs JSON to stdout at level.
func New(level string) *Logger {
	return NewWithWriter(os.Stdout, level)
}

// NewWithWriter logs JSON to w.
func NewWithWriter(w io.Writer, level string) *Logger {
	return wrap(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)}))
}

// NewText logs human readable key=value lines to w. Meant for terminals.
func NewText(w io.Writer, level string) *Logger {
	return wrap(slog.NewTextHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)}))
}

func Default() *Logger {
	return New("info")
}

// Discard drops every record.
func Discard() *Logger {
	return wrap(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

func wrap(h slog.Handler) *Logger {
	return &Logger{Logger: slog.New(h)}
}

// With returns a child logger carrying args.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// ParseLevel maps a level name to slog; unknown names mean info.
func ParseLevel(level string) slog.Level {
	var lvl slog.Level
	name := strings.ToLower(strings.TrimSpace(level))
	if name == "warning" {
		name = "warn"
	}
	if err := lvl.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
