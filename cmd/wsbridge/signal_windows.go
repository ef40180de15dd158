//go:build windows

package main

import (
	"os"
	"os/signal"
	"syscall"
)

// notifyRunSignals registers the signals that end `wsbridge run`.
// Windows has no SIGHUP; only SIGINT and SIGTERM are registered.
func notifyRunSignals(ch chan<- os.Signal) {
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
}

func stopRunSignals(ch chan<- os.Signal) {
	signal.Stop(ch)
}
