package logging

import (
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the structured logger injected into every component. It
// keeps the call-site shape the rest of the codebase is written
// against (Info/Warn/Error with trailing key-value pairs) while
// delegating formatting and output to log/slog.
type Logger struct {
	slog   *slog.Logger
	prefix string
}

// Options configures the sink a Logger writes to.
type Options struct {
	// File, when non-empty, rotates output through lumberjack instead
	// of writing to stdout.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	JSON       bool
}

// New creates a root logger for component named prefix.
func New(prefix string, opts Options) *Logger {
	var w io.Writer = os.Stdout
	if opts.File != "" {
		w = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    orDefault(opts.MaxSizeMB, 100),
			MaxBackups: orDefault(opts.MaxBackups, 3),
			MaxAge:     orDefault(opts.MaxAgeDays, 28),
		}
	}

	var handler slog.Handler
	if opts.JSON {
		handler = slog.NewJSONHandler(w, nil)
	} else {
		handler = slog.NewTextHandler(w, nil)
	}

	return &Logger{
		slog:   slog.New(handler).With("component", prefix),
		prefix: prefix,
	}
}

// NewLogger builds a stdout text logger with prefix, the shape every
// component constructor in this codebase expects.
func NewLogger(prefix string) *Logger {
	return New(prefix, Options{})
}

// With returns a child logger scoped to an additional component name,
// e.g. logger.With("backend-1") for per-backend log lines.
func (l *Logger) With(suffix string) *Logger {
	return &Logger{
		slog:   l.slog.With("component", l.prefix+"."+suffix),
		prefix: l.prefix + "." + suffix,
	}
}

func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	l.slog.Info(msg, keysAndValues...)
}

func (l *Logger) Warn(msg string, keysAndValues ...interface{}) {
	l.slog.Warn(msg, keysAndValues...)
}

func (l *Logger) Error(msg string, keysAndValues ...interface{}) {
	l.slog.Error(msg, keysAndValues...)
}

func (l *Logger) Debug(msg string, keysAndValues ...interface{}) {
	l.slog.Debug(msg, keysAndValues...)
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
