// Package logger holds the structured logger shared by every engine package.
// The engine is silent by default; install a logger with SetLogger to see output.
package logger

import (
	"context"
	"log/slog"
	"os"
	"sync/atomic"
)

// nopHandler discards every record. Enabled reports false so callers skip formatting.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(slog.New(nopHandler{}))
}

// SetLogger installs the logger used by the engine and all of its sub-packages.
// Passing nil restores the silent default.
//
// Levels used by the engine:
//   - slog.LevelDebug: per-frame diagnostics (fence waits, barrier skips)
//   - slog.LevelInfo: lifecycle events (adapter selected, device created, path toggled)
//   - slog.LevelWarn: degraded operation (ray tracing unavailable, shader changed on disk)
//   - slog.LevelError: failures that stop the frame loop
//
// Parameters:
//   - l: the logger to install, or nil to disable logging
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(nopHandler{})
	}
	loggerPtr.Store(l)
}

// Logger returns the active engine logger. Safe for concurrent use.
//
// Returns:
//   - *slog.Logger: the current logger, never nil
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

// NewTextLogger builds a text logger writing to stderr at the named level.
// Unknown level names fall back to info.
//
// Parameters:
//   - level: one of "debug", "info", "warn", "error"
//
// Returns:
//   - *slog.Logger: the configured logger
func NewTextLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
