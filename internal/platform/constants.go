package platform

import "time"

const (
	// VirtualDevicePrefix names every input device this program creates so
	// that enumeration can skip them.
	VirtualDevicePrefix = "middleclick"

	// FilterTimeout bounds how long a button event waits for the run loop
	// before it is delivered unchanged.
	FilterTimeout = 25 * time.Millisecond
)
