// Package monitoring holds the diagnostic logger shared by the estimator
// packages. The filter core never logs per tick; it reports only degenerate
// numerical conditions through Logf.
package monitoring

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Prefixed returns a logger that tags every line with prefix before
// delegating to the current Logf. The delegate is resolved per call so a
// later SetLogger also applies to loggers created earlier.
func Prefixed(prefix string) func(format string, v ...interface{}) {
	return func(format string, v ...interface{}) {
		Logf("["+prefix+"] "+format, v...)
	}
}
