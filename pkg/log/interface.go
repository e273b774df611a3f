// Package log provides the structured logging interface used across the
// surrogate pipeline.
//
// The interface is slog-compatible so that the zerolog backend in this
// package can be swapped for another implementation without touching
// callers. Pipeline components receive a Logger and attach stage context
// with With:
//
//	logger := log.GetLogger().With(
//	    log.ModelNameKey, "default",
//	    log.StageKey, "downsampling",
//	)
//	logger.Info("greedy selection finished",
//	    log.PointsKey, 183,
//	    log.StopReasonKey, "tolerance",
//	)
package log

import (
	"context"
)

// Logger defines a structured logging interface compatible with log/slog.
type Logger interface {
	// Debug logs a debug-level message with optional key/value fields.
	Debug(msg string, fields ...any)

	// Info logs an info-level message with optional key/value fields.
	Info(msg string, fields ...any)

	// Warn logs a warning-level message with optional key/value fields.
	Warn(msg string, fields ...any)

	// Error logs an error-level message. If the first field is an error it
	// is logged under ErrAttrKey together with its stack trace.
	Error(msg string, fields ...any)

	// With returns a Logger that adds the given fields to every record.
	With(fields ...any) Logger

	// Enabled reports whether records at level would be emitted.
	Enabled(ctx context.Context, level Level) bool
}

// Level represents a logging level, compatible with slog.Level.
type Level int

// Standard logging levels, values are compatible with slog.Level.
const (
	LevelDebug Level = -4
	LevelInfo  Level = 0
	LevelWarn  Level = 4
	LevelError Level = 8
)

// String returns the string representation of the log level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}
