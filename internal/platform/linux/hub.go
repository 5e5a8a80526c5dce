//go:build linux

package linux

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	evdev "github.com/gvalkov/golang-evdev"
	"github.com/sirupsen/logrus"
	"github.com/stigoleg/middleclick/internal/input"
)

var log = logrus.WithField("component", "linux")

const inputGlob = "/dev/input/event*"

// ErrNoPointers is returned by Grab when no device reports BTN_LEFT.
var ErrNoPointers = errors.New("no pointer devices found")

// Hub owns one reader goroutine per relevant evdev node. Touch frames and
// grabbed pointer events both flow through the same reader, so a grabbed
// touchpad still feeds the gesture recognizer.
type Hub struct {
	glob       string
	skipPrefix string

	mu      sync.Mutex
	readers map[string]*reader
	closed  bool
}

// NewHub returns a hub that ignores devices whose name starts with skipPrefix.
func NewHub(skipPrefix string) *Hub {
	return &Hub{
		glob:       inputGlob,
		skipPrefix: skipPrefix,
		readers:    make(map[string]*reader),
	}
}

// Scan opens devices that appeared since the last scan.
func (h *Hub) Scan() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return errors.New("hub closed")
	}

	devices, err := evdev.ListInputDevices(h.glob)
	if err != nil {
		return fmt.Errorf("failed to list input devices: %w", err)
	}
	for _, dev := range devices {
		if _, known := h.readers[dev.Fn]; known || strings.HasPrefix(dev.Name, h.skipPrefix) {
			dev.File.Close()
			continue
		}
		r := newReader(h, dev)
		if r == nil {
			dev.File.Close()
			continue
		}
		h.readers[dev.Fn] = r
		log.WithFields(logrus.Fields{
			"path":    dev.Fn,
			"name":    dev.Name,
			"touch":   r.touch,
			"pointer": r.pointer,
		}).Debug("Opened input device")
		go r.run()
	}
	return nil
}

// TouchDevices scans and returns every multitouch reader.
func (h *Hub) TouchDevices() ([]*TouchDevice, error) {
	if err := h.Scan(); err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []*TouchDevice
	for _, r := range h.readers {
		if r.touch {
			out = append(out, &TouchDevice{r: r})
		}
	}
	return out, nil
}

// Grab takes exclusive ownership of every pointer device and forwards its
// events through a uinput clone after passing left and right button
// transitions through filter. The returned func undoes the grab.
func (h *Hub) Grab(filter func(input.ButtonEvent) input.ButtonEvent) (func() error, error) {
	if err := h.Scan(); err != nil {
		return nil, err
	}

	h.mu.Lock()
	var pointers []*reader
	for _, r := range h.readers {
		if r.pointer {
			pointers = append(pointers, r)
		}
	}
	h.mu.Unlock()

	if len(pointers) == 0 {
		return nil, ErrNoPointers
	}

	var grabbed []*reader
	for _, r := range pointers {
		if err := r.startGrab(filter); err != nil {
			for _, g := range grabbed {
				g.stopGrab()
			}
			return nil, fmt.Errorf("%s: %w", r.name, err)
		}
		grabbed = append(grabbed, r)
	}
	log.WithField("devices", len(grabbed)).Info("Pointer devices grabbed")

	var once sync.Once
	return func() error {
		var errs []error
		once.Do(func() {
			for _, r := range grabbed {
				errs = append(errs, r.stopGrab())
			}
		})
		return errors.Join(errs...)
	}, nil
}

func (h *Hub) remove(r *reader) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.readers[r.path] == r {
		delete(h.readers, r.path)
	}
}

// Close releases every device. Reader goroutines exit on their own once
// their file is closed.
func (h *Hub) Close() error {
	h.mu.Lock()
	h.closed = true
	readers := h.readers
	h.readers = make(map[string]*reader)
	h.mu.Unlock()

	var errs []error
	for _, r := range readers {
		errs = append(errs, r.shutdown())
	}
	return errors.Join(errs...)
}

// TouchDevice is a multitouch reader exposed to the registry.
type TouchDevice struct {
	r *reader
}

// ID returns the device node path.
func (d *TouchDevice) ID() string { return d.r.path }

// Name returns the kernel device name.
func (d *TouchDevice) Name() string { return d.r.name }

// Subscribe delivers every frame to fn on the reader goroutine.
func (d *TouchDevice) Subscribe(fn func(input.Frame)) func() {
	return d.r.subscribe(fn)
}

type grab struct {
	clone  *VirtualDevice
	filter func(input.ButtonEvent) input.ButtonEvent
}

type reader struct {
	hub     *Hub
	dev     *evdev.InputDevice
	path    string
	name    string
	touch   bool
	pointer bool
	frames  *frameAssembler

	mu      sync.Mutex
	subs    map[int]func(input.Frame)
	nextSub int
	grab    *grab
	closed  bool
}

func capabilityCodes(dev *evdev.InputDevice, evType int) []uint16 {
	var out []uint16
	for t, codes := range dev.Capabilities {
		if t.Type != evType {
			continue
		}
		for _, c := range codes {
			out = append(out, uint16(c.Code))
		}
	}
	return out
}

func hasCode(codes []uint16, code uint16) bool {
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}

// newReader classifies dev and returns nil when it is neither a touch
// surface nor a pointer.
func newReader(h *Hub, dev *evdev.InputDevice) *reader {
	abs := capabilityCodes(dev, evAbs)
	keys := capabilityCodes(dev, evKey)

	r := &reader{
		hub:     h,
		dev:     dev,
		path:    dev.Fn,
		name:    dev.Name,
		touch:   hasCode(abs, absMTPositionX) && hasCode(abs, absMTPositionY) && hasCode(abs, absMTSlot),
		pointer: hasCode(keys, btnLeft),
		subs:    make(map[int]func(input.Frame)),
	}
	if !r.touch && !r.pointer {
		return nil
	}
	if r.touch {
		fd := dev.File.Fd()
		x, errX := readAbsInfo(fd, absMTPositionX)
		y, errY := readAbsInfo(fd, absMTPositionY)
		if err := errors.Join(errX, errY); err != nil {
			log.WithError(err).WithField("path", dev.Fn).Warn("Failed to read touch axis ranges")
			r.touch = false
			if !r.pointer {
				return nil
			}
		} else {
			r.frames = newFrameAssembler(dev.Fn, axisRange{x.Min, x.Max}, axisRange{y.Min, y.Max})
			r.frames.resync = func() (mtSnapshot, error) { return readMTState(fd) }
			// Fingers may already be down when the device is opened.
			r.frames.sync()
		}
	}
	return r
}

func (r *reader) run() {
	for {
		events, err := r.dev.Read()
		if err != nil {
			r.mu.Lock()
			closed := r.closed
			r.mu.Unlock()
			if !closed {
				log.WithError(err).WithField("path", r.path).Info("Input device went away")
			}
			r.hub.remove(r)
			r.shutdown()
			return
		}
		for i := range events {
			r.handle(events[i].Type, events[i].Code, events[i].Value)
		}
	}
}

func (r *reader) handle(etype, code uint16, value int32) {
	if r.frames != nil {
		if f, ok := r.frames.feed(etype, code, value); ok {
			r.emit(f)
		}
	}

	r.mu.Lock()
	g := r.grab
	r.mu.Unlock()
	if g == nil {
		return
	}

	if etype == evKey && (code == btnLeft || code == btnRight) && value != 2 {
		out := g.filter(buttonEvent(code, value))
		code, value = rawButton(out)
	}
	if err := g.clone.Emit(etype, code, value); err != nil {
		log.WithError(err).WithField("path", r.path).Debug("Dropped forwarded event")
	}
}

func (r *reader) emit(f input.Frame) {
	r.mu.Lock()
	subs := make([]func(input.Frame), 0, len(r.subs))
	for _, fn := range r.subs {
		subs = append(subs, fn)
	}
	r.mu.Unlock()
	for _, fn := range subs {
		fn(f)
	}
}

func (r *reader) subscribe(fn func(input.Frame)) func() {
	r.mu.Lock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = fn
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		delete(r.subs, id)
		r.mu.Unlock()
	}
}

func (r *reader) startGrab(filter func(input.ButtonEvent) input.ButtonEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return errors.New("device closed")
	}
	if r.grab != nil {
		return errors.New("device already grabbed")
	}

	clone, err := NewVirtualDevice(r.cloneSpec())
	if err != nil {
		return err
	}
	if err := r.dev.Grab(); err != nil {
		clone.Close()
		return fmt.Errorf("failed to grab device: %w", err)
	}
	r.grab = &grab{clone: clone, filter: filter}
	return nil
}

func (r *reader) stopGrab() error {
	r.mu.Lock()
	g := r.grab
	r.grab = nil
	closed := r.closed
	r.mu.Unlock()
	if g == nil {
		return nil
	}

	var errs []error
	if !closed {
		if err := r.dev.Release(); err != nil {
			errs = append(errs, fmt.Errorf("failed to release %s: %w", r.name, err))
		}
	}
	errs = append(errs, g.clone.Close())
	return errors.Join(errs...)
}

func (r *reader) shutdown() error {
	grabErr := r.stopGrab()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return grabErr
	}
	r.closed = true
	r.mu.Unlock()
	return errors.Join(grabErr, r.dev.File.Close())
}

// cloneSpec mirrors the device capabilities and adds BTN_MIDDLE.
func (r *reader) cloneSpec() DeviceSpec {
	name := r.hub.skipPrefix + " " + r.name
	if len(name) > uinputMaxName-1 {
		name = name[:uinputMaxName-1]
	}
	spec := DeviceSpec{
		Name:     name,
		Keys:     capabilityCodes(r.dev, evKey),
		Rels:     capabilityCodes(r.dev, evRel),
		Msc:      capabilityCodes(r.dev, evMsc),
		Switches: capabilityCodes(r.dev, evSw),
		Leds:     capabilityCodes(r.dev, evLed),
		Abs:      make(map[uint16]AbsInfo),
	}
	if !hasCode(spec.Keys, btnMiddle) {
		spec.Keys = append(spec.Keys, btnMiddle)
	}

	fd := r.dev.File.Fd()
	for _, code := range capabilityCodes(r.dev, evAbs) {
		info, err := readAbsInfo(fd, code)
		if err != nil {
			log.WithError(err).WithField("axis", code).Debug("Skipping unreadable axis")
			continue
		}
		spec.Abs[code] = info
	}
	if props, err := readProps(fd); err == nil {
		spec.Props = props
	}
	return spec
}

func buttonEvent(code uint16, value int32) input.ButtonEvent {
	ev := input.ButtonEvent{Button: input.ButtonLeft, Action: input.Up}
	if code == btnRight {
		ev.Button = input.ButtonRight
	}
	if value != 0 {
		ev.Action = input.Down
	}
	return ev
}

func rawButton(ev input.ButtonEvent) (uint16, int32) {
	code := uint16(btnLeft)
	switch ev.Button {
	case input.ButtonRight:
		code = btnRight
	case input.ButtonMiddle:
		code = btnMiddle
	}
	var value int32
	if ev.Action == input.Down {
		value = 1
	}
	return code, value
}
