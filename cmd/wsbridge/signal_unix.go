//go:build !windows

package main

import (
	"os"
	"os/signal"
	"syscall"
)

// notifyRunSignals registers the signals that end `wsbridge run`.
// On Unix this includes SIGHUP so a closed terminal stops the session.
func notifyRunSignals(ch chan<- os.Signal) {
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
}

func stopRunSignals(ch chan<- os.Signal) {
	signal.Stop(ch)
}
