// Package monitoring holds the localiser's diagnostic logger.
package monitoring

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf and
// may be replaced by SetLogger so tests can capture or mute output.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil installs a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Warnf logs a recoverable problem, such as a skipped sensor update.
func Warnf(format string, v ...interface{}) {
	Logf("[warn] "+format, v...)
}

// Debugf logs only when Verbose is set.
func Debugf(format string, v ...interface{}) {
	if Verbose {
		Logf("[debug] "+format, v...)
	}
}

// Verbose enables Debugf output.
var Verbose bool
