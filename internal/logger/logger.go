// Package logger is the process-wide levelled logger used by the tracker,
// the gateways and the HTTP surface.
//
// Verbosity levels (in increasing order):
//
//	Error < Warn < Info < Debug < Trace
//
// Example usage:
//
//	logger.SetVerbosity(int(logger.Debug))
//	logger.Infof("session %s started", id)
//	logger.Debugf("tick symbol=%s strike=%d", sym, strike)
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync/atomic"
)

// Level represents a logging verbosity level.
// Higher values mean more verbose logging.
type Level int

const (
	Error Level = iota // Error logs failures that need attention.
	Warn               // Warn logs degraded but recoverable conditions.
	Info               // Info logs session lifecycle events.
	Debug              // Debug logs per-tick diagnostics.
	Trace              // Trace logs every gateway request.
)

var levelNames = map[string]Level{
	"error": Error,
	"warn":  Warn,
	"info":  Info,
	"debug": Debug,
	"trace": Trace,
}

// current holds the active verbosity level. The tick loop and the HTTP
// handlers log from different goroutines, so it is read atomically.
var current atomic.Int32

func init() {
	current.Store(int32(Info))

	// stderr keeps logs apart from the -once JSON output on stdout.
	log.SetOutput(os.Stderr)

	//   2026/01/25 15:42:10 supervisor.go:87 [INFO]  session started
	log.SetFlags(log.LstdFlags | log.Lshortfile)
}

// SetVerbosity sets the global logging verbosity.
func SetVerbosity(v int) {
	current.Store(int32(v))
}

// Verbosity returns the active level.
func Verbosity() Level {
	return Level(current.Load())
}

// ParseLevel maps a level name ("warn", "DEBUG") or a numeric string to a Level.
func ParseLevel(s string) (Level, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if l, ok := levelNames[s]; ok {
		return l, nil
	}
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err == nil && n >= int(Error) && n <= int(Trace) {
		return Level(n), nil
	}
	return Info, fmt.Errorf("unknown log level %q", s)
}

// SetOutput redirects log output, mainly for tests.
func SetOutput(w io.Writer) {
	log.SetOutput(w)
}

// logf checks verbosity and hands formatting to the standard logger.
// calldepth 3 points Lshortfile at the caller of Errorf/Infof/etc.
func logf(l Level, prefix, format string, args ...any) {
	if Verbosity() >= l {
		_ = log.Output(3, prefix+fmt.Sprintf(format, args...))
	}
}

// Errorf logs an error-level message.
func Errorf(format string, args ...any) {
	logf(Error, "[ERROR] ", format, args...)
}

// Warnf logs a warning: stale data served, a corrupt store replaced, a join timeout.
func Warnf(format string, args ...any) {
	logf(Warn, "[WARN]  ", format, args...)
}

// Infof logs an informational message.
func Infof(format string, args ...any) {
	logf(Info, "[INFO]  ", format, args...)
}

// Debugf logs debugging information.
func Debugf(format string, args ...any) {
	logf(Debug, "[DEBUG] ", format, args...)
}

// Tracef logs very detailed execution traces.
// Use this sparingly due to high volume.
func Tracef(format string, args ...any) {
	logf(Trace, "[TRACE] ", format, args...)
}
