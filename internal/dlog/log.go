// Package dlog is the simulator's fatal-logging helper. The reference tool
// funnels every abort through a single logging macro that stamps the error
// class, call site, and offending value; this package is the Go stand-in.
// No third-party logging library appears anywhere in the retrieved example
// pack, so this stays on the standard library's log.Logger (see DESIGN.md).
package dlog

import (
	"fmt"
	"log"
	"os"
	"runtime"
)

var std = log.New(os.Stderr, "", 0)

// SetOutput redirects the logger, primarily for tests.
func SetOutput(w *log.Logger) { std = w }

// Fatal logs a structured SIM_* fatal message with the caller's file:line
// and returns the formatted string (the caller is expected to wrap it into
// a simerr.Error and return it — dlog never calls os.Exit itself, since the
// simulator's process-exit decision belongs to cmd/dpusim, not the library).
func Fatal(class, format string, args ...any) string {
	_, file, line, ok := runtime.Caller(1)
	msg := fmt.Sprintf(format, args...)
	if !ok {
		std.Printf("%s: %s", class, msg)
		return msg
	}
	std.Printf("%s %s:%d: %s", class, file, line, msg)
	return msg
}

// Infof logs an informational line (dependency-counter tracing, etc).
func Infof(format string, args ...any) {
	std.Printf("INFO: "+format, args...)
}
