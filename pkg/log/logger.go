package log

import (
	"io"
	"strings"
	"sync"

	"github.com/YuminosukeSato/gwsurrogate/pkg/errors"
)

// Field names used by zerolog for errors and their stack traces.
const (
	ErrAttrKey        = "error"
	StacktraceAttrKey = "stack"
)

var (
	globalMu     sync.RWMutex
	globalLogger Logger = NewNopLogger()
)

// GetLogger returns the process-wide logger. It discards everything until
// SetupLogger or SetLogger is called.
func GetLogger() Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLogger
}

// SetLogger replaces the process-wide logger.
func SetLogger(l Logger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = l
}

// SetupLogger installs a JSON zerolog logger at the given level and routes
// pkg/errors warnings through it.
func SetupLogger(level string, w io.Writer) error {
	lvl, err := ToLogLevel(level)
	if err != nil {
		return err
	}
	l := NewZerologLogger(w, lvl)
	SetLogger(l)
	errors.SetZerologWarnFunc(l.warning)
	return nil
}

// ToLogLevel parses "debug", "info", "warn" or "error".
func ToLogLevel(level string) (Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, errors.NewValidationError("logging.level", "must be one of debug, info, warn, error", level)
	}
}
