package log

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// defaultLogger backs the package level functions.  Records are dropped until one is installed, which keeps
// tests of other packages quiet.
var defaultLogger atomic.Pointer[Logger]

// SetDefaultLogger sets the global logger used by the package level logging functions
func SetDefaultLogger(logger *Logger) {
	defaultLogger.Store(logger)
}

// DefaultLogger returns the current default logger, or nil
func DefaultLogger() *Logger {
	return defaultLogger.Load()
}

func Debug(msg string, args ...any) { emit(slog.LevelDebug, msg, args) }

func Info(msg string, args ...any) { emit(slog.LevelInfo, msg, args) }

func Warn(msg string, args ...any) { emit(slog.LevelWarn, msg, args) }

func Error(msg string, args ...any) { emit(slog.LevelError, msg, args) }

// Trace logs at debug level, but only if trace logging is enabled.
func Trace(msg string, args ...any) {
	if logger := DefaultLogger(); logger != nil {
		logger.Trace(msg, args...)
	}
}

func emit(level slog.Level, msg string, args []any) {
	if logger := DefaultLogger(); logger != nil {
		logger.logger.Log(context.Background(), level, msg, args...)
	}
}
