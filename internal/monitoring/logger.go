// Package monitoring holds the node's diagnostic logging hooks.
package monitoring

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf but
// may be replaced by SetLogger. Tests or production code can redirect or mute
// it; the acquisition loop's timeout warnings flow through here, so a camera
// that stops responding shows up as a continuous warning stream.
var Logf func(format string, v ...interface{}) = log.Printf

// Warnf logs a warning through the package logger.
func Warnf(format string, v ...interface{}) {
	Logf("WARNING: "+format, v...)
}

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}
