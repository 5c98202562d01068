// Package logging centralises construction of component loggers on top of
// charmbracelet/log, the way client2/connection.go and client2/arq.go build
// a prefixed *log.Logger per component in katzenpost.
package logging

import (
	"os"

	"github.com/charmbracelet/log"
)

// New returns a logger prefixed with component, reporting timestamps the way
// katzenpost's client2 package configures its loggers.
func New(component string) *log.Logger {
	return log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          component,
	})
}

// Root is the process-wide default logger, used by cmd/ entrypoints before
// any connection-scoped logger exists.
var Root = New("rexec")
