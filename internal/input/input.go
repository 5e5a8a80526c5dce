// Package input defines the value types exchanged between the platform
// backends and the gesture/interception logic.
package input

import "time"

// Vector2 is a point or sum of points in normalized device coordinates.
type Vector2 struct {
	X float64
	Y float64
}

// Add returns the component-wise sum of v and o.
func (v Vector2) Add(o Vector2) Vector2 {
	return Vector2{X: v.X + o.X, Y: v.Y + o.Y}
}

// IsZero reports whether both components are exactly zero.
func (v Vector2) IsZero() bool {
	return v.X == 0 && v.Y == 0
}

// Contact is one finger's report within a single frame. Positions are
// normalized to [0,1] on both axes.
type Contact struct {
	X float64
	Y float64
}

// Frame is one report from a multitouch device.
type Frame struct {
	Device   string
	Contacts []Contact
	Fingers  int
	Time     time.Time
}

// Button identifies a pointer button.
type Button int

const (
	ButtonLeft Button = iota
	ButtonRight
	ButtonMiddle
)

func (b Button) String() string {
	switch b {
	case ButtonLeft:
		return "left"
	case ButtonRight:
		return "right"
	case ButtonMiddle:
		return "middle"
	default:
		return "unknown"
	}
}

// Action is the direction of a button transition.
type Action int

const (
	Down Action = iota
	Up
)

func (a Action) String() string {
	if a == Down {
		return "down"
	}
	return "up"
}

// ButtonEvent is a single pointer button transition.
type ButtonEvent struct {
	Button Button
	Action Action
}

// IsPrimaryOrSecondary reports whether the event comes from the left or right button.
func (e ButtonEvent) IsPrimaryOrSecondary() bool {
	return e.Button == ButtonLeft || e.Button == ButtonRight
}
