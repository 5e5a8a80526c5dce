//go:build linux

package platform

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/stigoleg/middleclick/internal/input"
	"github.com/stigoleg/middleclick/internal/platform/linux"
)

var log = logrus.WithField("component", "platform")

type linuxBackend struct {
	hub     *linux.Hub
	poster  *linux.Poster
	uevents *linux.UeventMonitor
	sleep   *linux.SleepWatcher
	focus   *linux.FocusTracker
}

// NewBackend returns the evdev/uinput backend.
func NewBackend() (Backend, error) {
	b := &linuxBackend{
		hub:     linux.NewHub(VirtualDevicePrefix),
		poster:  linux.NewPoster(VirtualDevicePrefix + " pointer"),
		uevents: linux.NewUeventMonitor(),
		sleep:   linux.NewSleepWatcher(),
		focus:   linux.NewFocusTracker(),
	}
	// Failures are logged by the poster and retried on Install and Post.
	_ = b.poster.Prepare()

	session := linux.DetectSession()
	if err := b.focus.Start(); err != nil {
		log.WithError(err).Warn("Focused application is unknown, the ignore list has no effect")
	} else if session.FocusLimited() {
		log.Info("Wayland session: only XWayland applications can be ignored")
	}
	log.WithFields(logrus.Fields{
		"display_server": session.DisplayServer,
		"desktop":        session.Desktop,
		"x11":            session.X11,
	}).Info("Linux backend ready")
	return b, nil
}

func (b *linuxBackend) Name() string { return "linux-evdev" }

func (b *linuxBackend) Permissions() Capability {
	p := linux.CheckPermissions()
	c := Capability{CanIntercept: p.OK()}
	if !c.CanIntercept {
		c.ErrorMessage = p.Problem
		c.Instructions = linux.Instructions()
	}
	return c
}

func (b *linuxBackend) Install(filter ButtonFilter) (Subscription, error) {
	release, err := b.hub.Grab(filter)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHookUnavailable, err)
	}
	// Recreate the pointer if it failed while degraded.
	if err := b.poster.Prepare(); err != nil {
		log.WithError(err).Warn("Pointer hook installed but synthesized clicks are unavailable")
	}
	return SubscriptionFunc(release), nil
}

func (b *linuxBackend) Post(button input.Button, action input.Action) error {
	return b.poster.Post(button, action)
}

type linuxTouchDevice struct {
	d *linux.TouchDevice
}

func (t linuxTouchDevice) ID() string   { return t.d.ID() }
func (t linuxTouchDevice) Name() string { return t.d.Name() }

func (t linuxTouchDevice) Subscribe(fn FrameFunc) (Subscription, error) {
	cancel := t.d.Subscribe(fn)
	return SubscriptionFunc(func() error {
		cancel()
		return nil
	}), nil
}

func (b *linuxBackend) TouchDevices() ([]TouchDevice, error) {
	devices, err := b.hub.TouchDevices()
	if err != nil {
		return nil, err
	}
	if len(devices) == 0 {
		return nil, ErrNoDevices
	}
	out := make([]TouchDevice, 0, len(devices))
	for _, d := range devices {
		out = append(out, linuxTouchDevice{d: d})
	}
	return out, nil
}

func cancelSubscription(cancel func()) Subscription {
	return SubscriptionFunc(func() error {
		cancel()
		return nil
	})
}

func (b *linuxBackend) OnWake(fn func()) (Subscription, error) {
	cancel, err := b.sleep.OnWake(fn)
	if err != nil {
		return nil, fmt.Errorf("wake notifications: %w", err)
	}
	return cancelSubscription(cancel), nil
}

var displayFlags = map[linux.DisplayFlags]DisplayChange{
	linux.DisplayFlagAdded:   DisplayAdded,
	linux.DisplayFlagRemoved: DisplayRemoved,
	linux.DisplayFlagModeSet: DisplaySetMode,
	linux.DisplayFlagOther:   DisplayOther,
	linux.DisplayFlagLost:    DisplaySetMode,
}

func (b *linuxBackend) OnDisplayChange(fn func(DisplayChange)) (Subscription, error) {
	cancel, err := b.uevents.Subscribe(func(batch []linux.Uevent) {
		flags := linux.DisplayChange(batch)
		var change DisplayChange
		for from, to := range displayFlags {
			if flags&from != 0 {
				change |= to
			}
		}
		if change != 0 {
			fn(change)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("display notifications: %w", err)
	}
	return cancelSubscription(cancel), nil
}

func (b *linuxBackend) OnDeviceAdded(fn func(name string)) (Subscription, error) {
	cancel, err := b.uevents.Subscribe(func(batch []linux.Uevent) {
		if names := linux.AddedInputDevices(batch, VirtualDevicePrefix); len(names) > 0 {
			fn(strings.Join(names, ", "))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("device notifications: %w", err)
	}
	return cancelSubscription(cancel), nil
}

func (b *linuxBackend) FocusedApp() (string, bool) {
	return b.focus.FocusedApp()
}

func (b *linuxBackend) Close() error {
	return errors.Join(
		b.hub.Close(),
		b.poster.Close(),
		b.uevents.Close(),
		b.sleep.Close(),
		b.focus.Close(),
	)
}
