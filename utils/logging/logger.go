// Package logging provides the leveled logger used by every component in
// this module, in place of ad-hoc fmt.Print* calls. It keeps the familiar
// printf-style call shape (`log.Error("...: %s", id, err)`) while being
// implemented on top of log/slog, in the same structured-logging style
// used elsewhere in this codebase.
package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
)

// LevelVerbo is one notch more granular than slog.LevelDebug, for per-item
// trace output that would be too noisy even at debug level.
const LevelVerbo = slog.Level(-8)

// Logger is a named, leveled logger. The zero value is not usable; construct
// one with New or NewNop.
type Logger struct {
	name    string
	slogger *slog.Logger
}

// New builds a Logger named component, writing JSON records to stdout at or
// above levelStr ("verbo", "debug", "info", "warn", "error").
func New(component, levelStr string) *Logger {
	level, err := ParseLevel(levelStr)
	if err != nil {
		level = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	return &Logger{
		name:    component,
		slogger: slog.New(handler).With("component", component),
	}
}

// NewNop returns a Logger that discards everything, useful in tests that
// don't want log noise but still need to pass a *Logger to a constructor.
func NewNop() *Logger {
	handler := slog.NewJSONHandler(discard{}, &slog.HandlerOptions{Level: slog.LevelError + 1})
	return &Logger{name: "nop", slogger: slog.New(handler)}
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

// With returns a Logger scoped to a sub-component, e.g. engine.log.With("phase4").
func (l *Logger) With(component string) *Logger {
	return &Logger{
		name:    l.name + "." + component,
		slogger: l.slogger.With("component", l.name+"."+component),
	}
}

func (l *Logger) log(level slog.Level, format string, args ...interface{}) {
	l.slogger.Log(context.Background(), level, fmt.Sprintf(format, args...))
}

// Verbo logs at the most granular level, for per-item trace output.
func (l *Logger) Verbo(format string, args ...interface{}) { l.log(LevelVerbo, format, args...) }

// Debug logs diagnostic detail useful while developing or investigating.
func (l *Logger) Debug(format string, args ...interface{}) { l.log(slog.LevelDebug, format, args...) }

// Info logs normal operational events.
func (l *Logger) Info(format string, args ...interface{}) { l.log(slog.LevelInfo, format, args...) }

// Warn logs recoverable anomalies, e.g. a faulty peer share.
func (l *Logger) Warn(format string, args ...interface{}) { l.log(slog.LevelWarn, format, args...) }

// Error logs failures that affect correctness or availability.
func (l *Logger) Error(format string, args ...interface{}) { l.log(slog.LevelError, format, args...) }

// ParseLevel parses a level name, defaulting to an error for unknown names.
func ParseLevel(s string) (slog.Level, error) {
	switch s {
	case "verbo":
		return LevelVerbo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level: %s", s)
	}
}
