//go:build !windows
// +build !windows

package integration

import (
	"os"
	"syscall"
)

// terminationSignals are the signals the command treats as a request to
// release every grab and exit.
func terminationSignals() []os.Signal {
	return []os.Signal{
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT,
		syscall.SIGTSTP,
	}
}
