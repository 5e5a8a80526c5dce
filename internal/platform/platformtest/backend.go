// Package platformtest provides an in-memory platform.Backend for tests.
package platformtest

import (
	"sync"

	"github.com/stigoleg/middleclick/internal/input"
	"github.com/stigoleg/middleclick/internal/platform"
)

// Device is a scripted multitouch device.
type Device struct {
	id   string
	name string

	mu   sync.Mutex
	next int
	fns  map[int]platform.FrameFunc
}

func (d *Device) ID() string   { return d.id }
func (d *Device) Name() string { return d.name }

func (d *Device) Subscribe(fn platform.FrameFunc) (platform.Subscription, error) {
	d.mu.Lock()
	id := d.next
	d.next++
	d.fns[id] = fn
	d.mu.Unlock()
	return platform.SubscriptionFunc(func() error {
		d.mu.Lock()
		delete(d.fns, id)
		d.mu.Unlock()
		return nil
	}), nil
}

// Send delivers f to every subscriber on the calling goroutine.
func (d *Device) Send(f input.Frame) {
	d.mu.Lock()
	fns := make([]platform.FrameFunc, 0, len(d.fns))
	for _, fn := range d.fns {
		fns = append(fns, fn)
	}
	d.mu.Unlock()
	if f.Device == "" {
		f.Device = d.id
	}
	for _, fn := range fns {
		fn(f)
	}
}

// Subscribers returns the number of active frame subscriptions.
func (d *Device) Subscribers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.fns)
}

// Backend records everything the service does to the host.
type Backend struct {
	mu         sync.Mutex
	installErr error
	capability platform.Capability
	focus      string
	focusKnown bool

	filter   platform.ButtonFilter
	hooked   bool
	installs int
	posted   []input.ButtonEvent
	devices  []*Device
	closed   bool

	wake    map[int]func()
	display map[int]func(platform.DisplayChange)
	added   map[int]func(string)
	nextSub int
}

// New returns a backend with no devices and full permissions.
func New() *Backend {
	return &Backend{
		capability: platform.Capability{CanIntercept: true},
		wake:       make(map[int]func()),
		display:    make(map[int]func(platform.DisplayChange)),
		added:      make(map[int]func(string)),
	}
}

// AddDevice attaches a touch device. It is picked up on the next enumeration.
func (b *Backend) AddDevice(id, name string) *Device {
	d := &Device{id: id, name: name, fns: make(map[int]platform.FrameFunc)}
	b.mu.Lock()
	b.devices = append(b.devices, d)
	b.mu.Unlock()
	return d
}

// SetFocus sets the focused application. An empty app means unknown.
func (b *Backend) SetFocus(app string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.focus = app
	b.focusKnown = app != ""
}

// SetInstallError makes Install fail with err until it is cleared with nil.
func (b *Backend) SetInstallError(err error, capability platform.Capability) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.installErr = err
	b.capability = capability
}

// Press runs ev through the installed filter. It reports false when no
// hook is installed.
func (b *Backend) Press(ev input.ButtonEvent) (input.ButtonEvent, bool) {
	b.mu.Lock()
	filter, hooked := b.filter, b.hooked
	b.mu.Unlock()
	if !hooked {
		return ev, false
	}
	return filter(ev), true
}

// Posted returns every event sent through Post.
func (b *Backend) Posted() []input.ButtonEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]input.ButtonEvent(nil), b.posted...)
}

// Hooked reports whether a pointer hook is installed.
func (b *Backend) Hooked() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hooked
}

// Installs counts successful hook installations.
func (b *Backend) Installs() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.installs
}

// Closed reports whether Close was called.
func (b *Backend) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Notifications returns how many wake, display and device subscriptions
// are active.
func (b *Backend) Notifications() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.wake) + len(b.display) + len(b.added)
}

// Wake fires the wake notification.
func (b *Backend) Wake() {
	b.mu.Lock()
	fns := make([]func(), 0, len(b.wake))
	for _, fn := range b.wake {
		fns = append(fns, fn)
	}
	b.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// ChangeDisplay fires the display notification.
func (b *Backend) ChangeDisplay(c platform.DisplayChange) {
	b.mu.Lock()
	fns := make([]func(platform.DisplayChange), 0, len(b.display))
	for _, fn := range b.display {
		fns = append(fns, fn)
	}
	b.mu.Unlock()
	for _, fn := range fns {
		fn(c)
	}
}

// Attach fires the device-added notification.
func (b *Backend) Attach(name string) {
	b.mu.Lock()
	fns := make([]func(string), 0, len(b.added))
	for _, fn := range b.added {
		fns = append(fns, fn)
	}
	b.mu.Unlock()
	for _, fn := range fns {
		fn(name)
	}
}

func (b *Backend) Name() string { return "fake" }

func (b *Backend) Permissions() platform.Capability {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.capability
}

func (b *Backend) Install(filter platform.ButtonFilter) (platform.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.installErr != nil {
		return nil, b.installErr
	}
	b.filter = filter
	b.hooked = true
	b.installs++
	return platform.SubscriptionFunc(func() error {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.filter = nil
		b.hooked = false
		return nil
	}), nil
}

func (b *Backend) Post(button input.Button, action input.Action) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.posted = append(b.posted, input.ButtonEvent{Button: button, Action: action})
	return nil
}

func (b *Backend) TouchDevices() ([]platform.TouchDevice, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.devices) == 0 {
		return nil, platform.ErrNoDevices
	}
	out := make([]platform.TouchDevice, len(b.devices))
	for i, d := range b.devices {
		out[i] = d
	}
	return out, nil
}

func (b *Backend) register(add func(id int)) platform.Subscription {
	b.mu.Lock()
	id := b.nextSub
	b.nextSub++
	add(id)
	b.mu.Unlock()
	return platform.SubscriptionFunc(func() error {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.wake, id)
		delete(b.display, id)
		delete(b.added, id)
		return nil
	})
}

func (b *Backend) OnWake(fn func()) (platform.Subscription, error) {
	return b.register(func(id int) { b.wake[id] = fn }), nil
}

func (b *Backend) OnDisplayChange(fn func(platform.DisplayChange)) (platform.Subscription, error) {
	return b.register(func(id int) { b.display[id] = fn }), nil
}

func (b *Backend) OnDeviceAdded(fn func(string)) (platform.Subscription, error) {
	return b.register(func(id int) { b.added[id] = fn }), nil
}

func (b *Backend) FocusedApp() (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.focus, b.focusKnown
}

func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

var _ platform.Backend = (*Backend)(nil)
