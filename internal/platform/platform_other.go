//go:build !linux

package platform

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-vgo/robotgo"
	hook "github.com/robotn/gohook"
	"github.com/sirupsen/logrus"
	"github.com/stigoleg/middleclick/internal/input"
)

var log = logrus.WithField("component", "platform")

// otherBackend is a listen-only backend. The global hook observes button
// events but cannot suppress them, so a rewrite is realized by posting the
// middle button event alongside the original one. No multitouch source is
// available, which leaves gesture recognition idle.
type otherBackend struct {
	mu        sync.Mutex
	hookOwner *hookSession

	focused atomic.Pointer[string]
	stop    chan struct{}
	once    sync.Once
}

const focusPollInterval = 250 * time.Millisecond

type hookSession struct {
	done chan struct{}
}

// NewBackend returns the backend for this OS.
func NewBackend() (Backend, error) {
	b := &otherBackend{stop: make(chan struct{})}
	go b.pollFocus()
	return b, nil
}

func (b *otherBackend) pollFocus() {
	ticker := time.NewTicker(focusPollInterval)
	defer ticker.Stop()
	for {
		b.refreshFocus()
		select {
		case <-b.stop:
			return
		case <-ticker.C:
		}
	}
}

func (b *otherBackend) refreshFocus() {
	pid := robotgo.GetPid()
	if pid <= 0 {
		b.focused.Store(nil)
		return
	}
	name, err := robotgo.FindName(pid)
	if err != nil || name == "" {
		b.focused.Store(nil)
		return
	}
	b.focused.Store(&name)
}

func (b *otherBackend) Name() string { return "gohook" }

func (b *otherBackend) Permissions() Capability {
	return Capability{
		CanIntercept: true,
		Instructions: "Grant accessibility/input monitoring access to this terminal if clicks are not observed.",
	}
}

func (b *otherBackend) Install(filter ButtonFilter) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.hookOwner != nil {
		return nil, fmt.Errorf("%w: hook already installed", ErrHookUnavailable)
	}

	buttons := map[uint16]input.Button{
		hook.MouseMap["left"]:   input.ButtonLeft,
		hook.MouseMap["right"]:  input.ButtonRight,
		hook.MouseMap["center"]: input.ButtonMiddle,
	}
	handle := func(action input.Action) func(hook.Event) {
		return func(e hook.Event) {
			button, ok := buttons[e.Button]
			if !ok {
				return
			}
			ev := input.ButtonEvent{Button: button, Action: action}
			if out := filter(ev); out != ev {
				if err := b.Post(out.Button, out.Action); err != nil {
					log.WithError(err).Warn("Failed to post rewritten button event")
				}
			}
		}
	}
	hook.Register(hook.MouseHold, []string{}, handle(input.Down))
	hook.Register(hook.MouseUp, []string{}, handle(input.Up))

	session := &hookSession{done: make(chan struct{})}
	events := hook.Start()
	go func() {
		<-hook.Process(events)
		close(session.done)
	}()
	b.hookOwner = session
	log.Info("Listen-only pointer hook installed")

	return SubscriptionFunc(func() error {
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.hookOwner != session {
			return nil
		}
		hook.End()
		b.hookOwner = nil
		return nil
	}), nil
}

func (b *otherBackend) Post(button input.Button, action input.Action) error {
	name := map[input.Button]string{
		input.ButtonLeft:   "left",
		input.ButtonRight:  "right",
		input.ButtonMiddle: "center",
	}[button]
	if name == "" {
		return fmt.Errorf("unknown button %v", button)
	}
	if action == input.Up {
		return robotgo.Toggle(name, "up")
	}
	return robotgo.Toggle(name)
}

func (b *otherBackend) TouchDevices() ([]TouchDevice, error) {
	return nil, fmt.Errorf("%w: %w", ErrNoDevices, ErrUnsupported)
}

func (b *otherBackend) OnWake(func()) (Subscription, error) {
	return nil, fmt.Errorf("wake notifications: %w", ErrUnsupported)
}

func (b *otherBackend) OnDisplayChange(func(DisplayChange)) (Subscription, error) {
	return nil, fmt.Errorf("display notifications: %w", ErrUnsupported)
}

func (b *otherBackend) OnDeviceAdded(func(string)) (Subscription, error) {
	return nil, fmt.Errorf("device notifications: %w", ErrUnsupported)
}

func (b *otherBackend) FocusedApp() (string, bool) {
	name := b.focused.Load()
	if name == nil {
		return "", false
	}
	return *name, true
}

func (b *otherBackend) Close() error {
	b.once.Do(func() { close(b.stop) })
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.hookOwner != nil {
		hook.End()
		b.hookOwner = nil
	}
	return nil
}
