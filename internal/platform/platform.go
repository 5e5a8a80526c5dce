// Package platform defines the contract between the gesture core and the
// host input stack, and selects the backend for the running OS.
package platform

import (
	"errors"
	"strings"
	"sync"

	"github.com/stigoleg/middleclick/internal/input"
)

var (
	// ErrHookUnavailable means the pointer hook could not be installed,
	// usually because of a missing permission.
	ErrHookUnavailable = errors.New("pointer hook unavailable")
	// ErrUnsupported means the backend cannot provide the requested facility.
	ErrUnsupported = errors.New("not supported on this platform")
	// ErrNoDevices means no multitouch device was found.
	ErrNoDevices = errors.New("no multitouch devices")
)

// Subscription is an owned registration with the host. Release tears it
// down and is safe to call more than once.
type Subscription interface {
	Release() error
}

type funcSubscription struct {
	once    sync.Once
	release func() error
	err     error
}

func (s *funcSubscription) Release() error {
	s.once.Do(func() {
		if s.release != nil {
			s.err = s.release()
		}
	})
	return s.err
}

// SubscriptionFunc turns fn into a Subscription that runs fn at most once.
func SubscriptionFunc(fn func() error) Subscription {
	return &funcSubscription{release: fn}
}

// Noop is a Subscription with nothing to release.
var Noop Subscription = SubscriptionFunc(nil)

// ButtonFilter receives a left, right or middle button transition and
// returns the event that should be delivered in its place.
type ButtonFilter func(input.ButtonEvent) input.ButtonEvent

// FrameFunc receives touch frames from one device.
type FrameFunc func(input.Frame)

// PointerHook intercepts button events system-wide.
type PointerHook interface {
	// Install starts routing button events through filter. Errors wrap
	// ErrHookUnavailable when the OS resource cannot be obtained.
	Install(filter ButtonFilter) (Subscription, error)
}

// Poster emits OS-level pointer button events at the current pointer position.
type Poster interface {
	Post(button input.Button, action input.Action) error
}

// TouchDevice is one attached multitouch surface.
type TouchDevice interface {
	ID() string
	Name() string
	Subscribe(fn FrameFunc) (Subscription, error)
}

// TouchSource enumerates multitouch devices.
type TouchSource interface {
	TouchDevices() ([]TouchDevice, error)
}

// DisplayChange is a set of display reconfiguration flags.
type DisplayChange uint32

const (
	DisplayAdded DisplayChange = 1 << iota
	DisplayRemoved
	DisplaySetMode
	DisplayDisabled
	DisplayMoved
	DisplayOther
)

// RequiresRestart reports whether the change invalidates input hooks.
func (c DisplayChange) RequiresRestart() bool {
	return c&(DisplayAdded|DisplayRemoved|DisplaySetMode|DisplayDisabled) != 0
}

func (c DisplayChange) String() string {
	if c == 0 {
		return "none"
	}
	names := []struct {
		flag DisplayChange
		name string
	}{
		{DisplayAdded, "added"},
		{DisplayRemoved, "removed"},
		{DisplaySetMode, "set-mode"},
		{DisplayDisabled, "disabled"},
		{DisplayMoved, "moved"},
		{DisplayOther, "other"},
	}
	var parts []string
	for _, n := range names {
		if c&n.flag != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// Notifier delivers host events that invalidate hooks. Callbacks run on
// backend goroutines. Each subscription fails independently.
type Notifier interface {
	OnWake(fn func()) (Subscription, error)
	OnDisplayChange(fn func(DisplayChange)) (Subscription, error)
	OnDeviceAdded(fn func(name string)) (Subscription, error)
}

// FocusSource reports the focused application id. It must return quickly.
type FocusSource interface {
	FocusedApp() (string, bool)
}

// Backend bundles everything the service needs from the host.
type Backend interface {
	PointerHook
	Poster
	TouchSource
	Notifier
	FocusSource

	Name() string
	Permissions() Capability
	Close() error
}
