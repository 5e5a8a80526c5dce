//go:build linux

package linux

import (
	"fmt"
	"sync"

	"github.com/go-vgo/robotgo"
	"github.com/stigoleg/middleclick/internal/input"
)

// buttonDevice is the part of a VirtualDevice the poster drives.
type buttonDevice interface {
	EmitKey(code uint16, pressed bool) error
	Close() error
}

// Poster emits button events through a persistent uinput pointer. When
// uinput cannot be opened it falls back to robotgo, which needs an X11
// session. Creation is retried until it succeeds.
type Poster struct {
	name   string
	create func(DeviceSpec) (buttonDevice, error)

	mu      sync.Mutex
	dev     buttonDevice
	lastErr error
	useX11  bool
}

// NewPoster returns a poster whose virtual device is named name.
func NewPoster(name string) *Poster {
	return &Poster{name: name, create: func(spec DeviceSpec) (buttonDevice, error) {
		dev, err := NewVirtualDevice(spec)
		if err != nil {
			return nil, err
		}
		return dev, nil
	}}
}

func (p *Poster) deviceLocked() (buttonDevice, error) {
	if p.dev != nil {
		return p.dev, nil
	}
	dev, err := p.create(PointerSpec(p.name))
	if err != nil {
		if p.lastErr == nil || p.lastErr.Error() != err.Error() {
			p.useX11 = DetectSession().X11
			log.WithError(err).WithField("x11_fallback", p.useX11).Warn("Virtual pointer unavailable")
		}
		p.lastErr = err
		return nil, err
	}
	if p.lastErr != nil {
		log.WithField("name", p.name).Info("Virtual pointer available again")
	}
	p.dev, p.lastErr, p.useX11 = dev, nil, false
	return dev, nil
}

// Prepare creates the virtual device ahead of the first Post so consumers
// have picked it up by the time a click is sent. It is a no-op while the
// device exists.
func (p *Poster) Prepare() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := p.deviceLocked()
	return err
}

// Post emits one button transition.
func (p *Poster) Post(button input.Button, action input.Action) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	dev, err := p.deviceLocked()
	if err == nil {
		code, _ := rawButton(input.ButtonEvent{Button: button, Action: action})
		return dev.EmitKey(code, action == input.Down)
	}
	if p.useX11 {
		return postRobotgo(button, action)
	}
	return fmt.Errorf("cannot post %s %s: %w", button, action, err)
}

// Reset drops the virtual device so the next Post recreates it.
func (p *Poster) Reset() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastErr = nil
	p.useX11 = false
	if p.dev == nil {
		return nil
	}
	err := p.dev.Close()
	p.dev = nil
	return err
}

// Close destroys the virtual device.
func (p *Poster) Close() error {
	return p.Reset()
}

func postRobotgo(button input.Button, action input.Action) error {
	name := "left"
	switch button {
	case input.ButtonRight:
		name = "right"
	case input.ButtonMiddle:
		name = "center"
	}
	if action == input.Up {
		return robotgo.Toggle(name, "up")
	}
	return robotgo.Toggle(name)
}
