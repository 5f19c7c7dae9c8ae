// Package monitoring holds the diagnostic logger of the serial reader and the
// logger application. Port opens and closes, reader stop reasons, scanner
// errors and store failures all go through Logf.
package monitoring

import (
	"io"
	"log"
)

// Logf reports diagnostics. It is log.Printf until SetLogger replaces it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces Logf. nil mutes diagnostics.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// WriterLogger returns a Logf-compatible function printing timestamped lines
// to w, for sharing one output with device lines.
func WriterLogger(w io.Writer) func(format string, v ...interface{}) {
	return log.New(w, "", log.LstdFlags).Printf
}
