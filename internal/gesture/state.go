// Package gesture turns multitouch frames into synthesized middle clicks.
//
// Everything in this package is confined to the run loop goroutine. None of
// the types carry locks.
package gesture

import "time"

// State is the gesture state shared between the recognizer and the pointer
// interceptor.
type State struct {
	// QualifyingFingersHeld is true while the live finger count satisfies
	// the configured gesture finger count.
	QualifyingFingersHeld bool
	// SyntheticPressInFlight is true between a rewritten button down and its
	// matching up.
	SyntheticPressInFlight bool

	lastNatural    time.Time
	hasLastNatural bool
}

// NewState returns an empty state.
func NewState() *State {
	return &State{}
}

// MarkNaturalMiddleClick records a hardware-originated middle press at t.
func (s *State) MarkNaturalMiddleClick(t time.Time) {
	s.lastNatural = t
	s.hasLastNatural = true
}

// LastNaturalMiddleClick returns the time of the last natural middle press.
func (s *State) LastNaturalMiddleClick() (time.Time, bool) {
	return s.lastNatural, s.hasLastNatural
}

// ResetInput clears the live input flags. The natural click time is kept.
func (s *State) ResetInput() {
	s.QualifyingFingersHeld = false
	s.SyntheticPressInFlight = false
}
