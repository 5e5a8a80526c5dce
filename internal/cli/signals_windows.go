//go:build windows

package cli

import (
	"errors"
	"os"
	"syscall"
)

func getSignalsForPlatform() []os.Signal {
	return []os.Signal{
		syscall.SIGINT,
		syscall.SIGTERM,
	}
}

func isSIGTSTPForPlatform(sig os.Signal) bool {
	return false
}

func getReloadSignals() []os.Signal {
	return nil
}

func isReloadSignal(sig os.Signal) bool {
	return false
}

func signalReload(proc *os.Process) error {
	return errors.New("reloading a running instance is not supported on windows")
}
