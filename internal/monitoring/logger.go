// Package monitoring provides the shared diagnostic logger for the
// detection and control pipeline.
package monitoring

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf.
// Components use it for high-volume diagnostics that operators may want to
// mute or redirect independently of the main application log.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger and returns the previous one so
// callers (typically tests) can restore it. Passing nil installs a no-op
// logger.
func SetLogger(f func(format string, v ...interface{})) func(format string, v ...interface{}) {
	prev := Logf
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return prev
	}
	Logf = f
	return prev
}
