//go:build unix

package main

import (
	"os"
	"syscall"
)

// shutdownSignals are the signals that stop memoire serve. SIGTERM comes
// from Docker and process managers.
func shutdownSignals() []os.Signal {
	return []os.Signal{os.Interrupt, syscall.SIGTERM}
}
