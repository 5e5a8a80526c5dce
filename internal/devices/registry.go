// Package devices keeps per-device touch frame callbacks registered on
// every attached multitouch surface.
package devices

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/stigoleg/middleclick/internal/platform"
)

var log = logrus.WithField("component", "devices")

// Device describes one registered multitouch device.
type Device struct {
	ID   string
	Name string
}

type registration struct {
	device Device
	sub    platform.Subscription
}

// Registry owns the frame subscriptions of all registered devices.
type Registry struct {
	source  platform.TouchSource
	deliver platform.FrameFunc

	mu   sync.Mutex
	regs []registration
}

// New returns a registry that forwards every frame from source to deliver.
// deliver runs on device goroutines.
func New(source platform.TouchSource, deliver platform.FrameFunc) *Registry {
	return &Registry{source: source, deliver: deliver}
}

// RegisterAll subscribes to every attached device that is not registered
// yet and returns how many devices are registered afterwards. Enumeration
// failures count as zero devices.
func (r *Registry) RegisterAll() int {
	devices, err := r.source.TouchDevices()
	if err != nil {
		if errors.Is(err, platform.ErrNoDevices) {
			log.Debug("No multitouch devices attached")
		} else {
			log.WithError(err).Warn("Failed to enumerate multitouch devices")
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	known := make(map[string]bool, len(r.regs))
	for _, reg := range r.regs {
		known[reg.device.ID] = true
	}
	for _, d := range devices {
		if known[d.ID()] {
			continue
		}
		sub, err := d.Subscribe(r.deliver)
		if err != nil {
			log.WithError(err).WithField("device", d.Name()).Warn("Failed to register touch callback")
			continue
		}
		if sub == nil {
			panic(fmt.Sprintf("devices: nil subscription for %s without error", d.ID()))
		}
		info := Device{ID: d.ID(), Name: d.Name()}
		r.regs = append(r.regs, registration{device: info, sub: sub})
		known[info.ID] = true
		log.WithFields(logrus.Fields{"device": info.Name, "id": info.ID}).Info("Registered touch callback")
	}
	return len(r.regs)
}

// UnregisterAll releases every subscription. Calling it with nothing
// registered is a no-op.
func (r *Registry) UnregisterAll() error {
	r.mu.Lock()
	regs := r.regs
	r.regs = nil
	r.mu.Unlock()

	var errs []error
	for _, reg := range regs {
		if err := reg.sub.Release(); err != nil {
			errs = append(errs, fmt.Errorf("release %s: %w", reg.device.Name, err))
		}
	}
	if len(regs) > 0 {
		log.WithField("count", len(regs)).Debug("Unregistered touch callbacks")
	}
	return errors.Join(errs...)
}

// Devices returns the registered devices in registration order.
func (r *Registry) Devices() []Device {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Device, len(r.regs))
	for i, reg := range r.regs {
		out[i] = reg.device
	}
	return out
}

// Len returns the number of registered devices.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.regs)
}
