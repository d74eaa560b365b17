//go:build excludemain

package main

func init() {
	daemonWaitForShutdown = waitForShutdownSignal
}

// waitForShutdownSignal returns immediately when building with -tags=excludemain.
func waitForShutdownSignal() {}
