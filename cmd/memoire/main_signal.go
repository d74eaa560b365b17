//go:build !excludemain

package main

import (
	"os"
	"os/signal"
)

func init() {
	daemonWaitForShutdown = waitForShutdownSignal
}

func waitForShutdownSignal() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, shutdownSignals()...)
	defer signal.Stop(ch)
	<-ch
}
