//go:build !unix

package main

import "os"

// shutdownSignals are the signals that stop memoire serve.
// Only Interrupt exists outside Unix.
func shutdownSignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}
