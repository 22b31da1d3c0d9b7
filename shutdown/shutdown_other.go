//go:build !windows

// Package shutdown abstracts the termination signal set per platform;
// SIGTERM does not exist on Windows.
package shutdown

import (
	"os"
	"os/signal"
	"syscall"
)

func Notify(ch chan os.Signal) {
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
}
