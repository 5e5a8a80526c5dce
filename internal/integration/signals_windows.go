//go:build windows
// +build windows

package integration

import "os"

// Signals cannot be delivered to another process on Windows.
func terminationSignals() []os.Signal {
	return nil
}
