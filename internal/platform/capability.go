package platform

// Capability describes whether the pointer hook can work on this system.
type Capability struct {
	// CanIntercept indicates whether button events can be intercepted and posted
	CanIntercept bool

	// ErrorMessage is a user-friendly error message if interception won't work
	ErrorMessage string

	// Instructions provides step-by-step instructions to fix the issue
	Instructions string
}

// Degraded reports whether the capability check found a problem.
func (c Capability) Degraded() bool {
	return !c.CanIntercept
}
