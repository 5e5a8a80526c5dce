// Package supervisor owns the lifecycle of the pointer hook, the touch
// device callbacks and the host notifications that invalidate them.
//
// All Supervisor methods must run on the event loop goroutine. Host
// notifications arrive on backend goroutines and are posted to the loop
// before they touch any state.
package supervisor

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stigoleg/middleclick/internal/platform"
	"github.com/stigoleg/middleclick/internal/runloop"
)

var log = logrus.WithField("component", "supervisor")

// Restart delays.
const (
	WakeDelay      = 10 * time.Second
	FastWakeDelay  = 2 * time.Second
	DisplayDelay   = 2 * time.Second
	DeviceDelay    = 2 * time.Second
	HookRetryDelay = 5 * time.Second
)

// Restart reasons.
const (
	ReasonWake      = "System woke up"
	ReasonDisplay   = "Display reconfigured"
	ReasonDevice    = "Multitouch device added"
	ReasonHookRetry = "Couldn't install pointer hook (check input device permissions)"
	ReasonManual    = "Manual restart"
)

// Delays holds the debounce delay of every restart trigger.
type Delays struct {
	Wake      time.Duration
	Display   time.Duration
	Device    time.Duration
	HookRetry time.Duration
	// Immediate forces every scheduled restart to run without delay.
	Immediate bool
}

// NewDelays returns the default delays. fast shortens the wake delay.
func NewDelays(fast, immediate bool) Delays {
	d := Delays{
		Wake:      WakeDelay,
		Display:   DisplayDelay,
		Device:    DeviceDelay,
		HookRetry: HookRetryDelay,
		Immediate: immediate,
	}
	if fast {
		d.Wake = FastWakeDelay
	}
	return d
}

// Host is the part of the platform backend the supervisor drives.
type Host interface {
	platform.PointerHook
	platform.Notifier
	Permissions() platform.Capability
}

// Registry registers touch callbacks on every attached device.
type Registry interface {
	RegisterAll() int
	UnregisterAll() error
}

// Executor queues work on the event loop.
type Executor interface {
	Post(fn func()) bool
}

// Config wires a Supervisor.
type Config struct {
	Host     Host
	Registry Registry
	Filter   platform.ButtonFilter
	Loop     Executor
	// Scheduler must run its callbacks on the loop goroutine.
	Scheduler runloop.Scheduler
	Delays    Delays
	// OnRestart runs after the hooks are released and before they are
	// reinstalled.
	OnRestart func()
	Now       func() time.Time
}

type pendingRestart struct {
	id     string
	reason string
	delay  time.Duration
	at     time.Time
}

// Status is a snapshot of the supervisor state, safe to read from any goroutine.
type Status struct {
	Started       bool
	Stopped       bool
	Hooked        bool
	Degraded      bool
	Capability    platform.Capability
	LastError     string
	Devices       int
	Restarts      int
	LastRestart   time.Time
	Pending       bool
	PendingReason string
	PendingDelay  time.Duration
	PendingAt     time.Time
	Subscriptions []string
}

// Supervisor implements debounced restarts of the unstable hooks.
type Supervisor struct {
	cfg      Config
	teardown *Teardown

	hook       platform.Subscription
	timer      runloop.Timer
	generation uint64
	pending    *pendingRestart

	started  bool
	stopped  bool
	degraded bool
	prompted bool
	lastErr  error
	capab    platform.Capability

	devices     int
	restarts    int
	lastRestart time.Time

	status atomic.Pointer[Status]
}

// New returns a supervisor that has not been started yet.
func New(cfg Config) *Supervisor {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	s := &Supervisor{
		cfg:      cfg,
		teardown: NewTeardown(DefaultTeardownTimeout),
		capab:    platform.Capability{CanIntercept: true},
	}
	s.publish()
	return s
}

// Start registers touch callbacks, subscribes to host notifications and
// installs the pointer hook. Failures are recovered, never returned.
func (s *Supervisor) Start() {
	if s.started {
		return
	}
	s.started = true
	log.Info("Starting listeners")

	s.devices = s.cfg.Registry.RegisterAll()
	s.subscribe()
	s.installHook()
	s.publish()
}

func (s *Supervisor) post(fn func()) {
	if !s.cfg.Loop.Post(fn) {
		log.Debug("Event loop stopped, dropping notification")
	}
}

func (s *Supervisor) subscribe() {
	d := s.cfg.Delays

	if sub, err := s.cfg.Host.OnWake(func() {
		s.post(func() { s.ScheduleRestart(d.Wake, ReasonWake) })
	}); err != nil {
		log.WithError(err).Warn("Failed to observe wake notifications, will not recover after sleep")
	} else {
		s.teardown.Add("wake", sub)
	}

	if sub, err := s.cfg.Host.OnDisplayChange(func(change platform.DisplayChange) {
		s.post(func() {
			if !change.RequiresRestart() {
				log.WithField("change", change.String()).Debug("Ignoring display change")
				return
			}
			s.ScheduleRestart(d.Display, fmt.Sprintf("%s (%s)", ReasonDisplay, change))
		})
	}); err != nil {
		log.WithError(err).Warn("Failed to observe display changes, will not recover after reconfiguration")
	} else {
		s.teardown.Add("display", sub)
	}

	if sub, err := s.cfg.Host.OnDeviceAdded(func(name string) {
		s.post(func() { s.ScheduleRestart(d.Device, fmt.Sprintf("%s: %s", ReasonDevice, name)) })
	}); err != nil {
		log.WithError(err).Warn("Failed to observe device attach, will not handle newly attached devices")
	} else {
		s.teardown.Add("device", sub)
	}
}

// ScheduleRestart arms a restart after delay. A pending restart is
// cancelled and replaced, so only the most recent delay applies.
func (s *Supervisor) ScheduleRestart(delay time.Duration, reason string) {
	if !s.started || s.stopped {
		return
	}
	if s.cfg.Delays.Immediate {
		delay = 0
	}

	id := uuid.NewString()
	entry := log.WithFields(logrus.Fields{
		"reason":     reason,
		"delay":      delay,
		"restart_id": id,
	})
	if s.timer != nil {
		s.timer.Stop()
		if s.pending != nil {
			entry = entry.WithField("superseded", s.pending.id)
		}
	}

	s.generation++
	gen := s.generation
	s.pending = &pendingRestart{id: id, reason: reason, delay: delay, at: s.cfg.Now().Add(delay)}
	s.timer = s.cfg.Scheduler.AfterFunc(delay, func() { s.fire(gen) })
	entry.Info("Scheduled restart")
	s.publish()
}

func (s *Supervisor) fire(gen uint64) {
	if gen != s.generation || s.stopped || s.pending == nil {
		return
	}
	p := s.pending
	s.pending = nil
	s.timer = nil
	s.restart(p.reason, p.id)
}

func (s *Supervisor) cancelPending() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.pending = nil
	s.generation++
}

// RestartNow cancels any pending restart, releases the hooks and
// reinstalls them. It is safe after a partial failure.
func (s *Supervisor) RestartNow() {
	if !s.started || s.stopped {
		return
	}
	s.cancelPending()
	s.restart(ReasonManual, uuid.NewString())
}

func (s *Supervisor) restart(reason, id string) {
	entry := log.WithFields(logrus.Fields{"reason": reason, "restart_id": id})
	entry.Info("Restarting now")

	s.stopUnstable()
	if s.cfg.OnRestart != nil {
		s.cfg.OnRestart()
	}
	s.devices = s.cfg.Registry.RegisterAll()
	s.installHook()

	s.restarts++
	s.lastRestart = s.cfg.Now()
	entry.WithFields(logrus.Fields{
		"devices":  s.devices,
		"degraded": s.degraded,
	}).Info("Restart complete")
	s.publish()
}

func (s *Supervisor) stopUnstable() error {
	var errs []error
	if err := s.cfg.Registry.UnregisterAll(); err != nil {
		log.WithError(err).Warn("Failed to unregister touch callbacks")
		errs = append(errs, err)
	}
	s.devices = 0
	if s.hook == nil {
		log.Debug("No pointer hook to release")
		return errors.Join(errs...)
	}
	if err := s.hook.Release(); err != nil {
		log.WithError(err).Warn("Failed to release pointer hook")
		errs = append(errs, err)
	}
	s.hook = nil
	return errors.Join(errs...)
}

func (s *Supervisor) installHook() {
	sub, err := s.cfg.Host.Install(s.cfg.Filter)
	if err != nil {
		s.degraded = true
		s.lastErr = err
		s.capab = s.cfg.Host.Permissions()
		log.WithError(err).WithField("retry_in", s.cfg.Delays.HookRetry).Error("Failed to install pointer hook")
		if !s.prompted {
			s.prompted = true
			log.WithFields(logrus.Fields{
				"problem":      s.capab.ErrorMessage,
				"instructions": s.capab.Instructions,
			}).Warn("Input permissions are missing")
		}
		s.ScheduleRestart(s.cfg.Delays.HookRetry, ReasonHookRetry)
		return
	}
	if sub == nil {
		panic("supervisor: pointer hook installed without a subscription")
	}
	s.hook = sub
	if s.degraded {
		log.Info("Pointer hook installed, leaving degraded state")
	}
	s.degraded = false
	s.prompted = false
	s.lastErr = nil
	s.capab = platform.Capability{CanIntercept: true}
}

// Stop cancels any pending restart and releases every hook and
// subscription. The supervisor cannot be started again.
func (s *Supervisor) Stop() error {
	if !s.started || s.stopped {
		return nil
	}
	s.stopped = true
	s.cancelPending()

	errs := s.teardown.Release()
	if err := s.stopUnstable(); err != nil {
		errs = append(errs, err)
	}
	log.Info("Listeners stopped")
	s.publish()
	return errors.Join(errs...)
}

func (s *Supervisor) publish() {
	st := &Status{
		Started:       s.started,
		Stopped:       s.stopped,
		Hooked:        s.hook != nil,
		Degraded:      s.degraded,
		Capability:    s.capab,
		Devices:       s.devices,
		Restarts:      s.restarts,
		LastRestart:   s.lastRestart,
		Subscriptions: s.teardown.Names(),
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	if s.pending != nil {
		st.Pending = true
		st.PendingReason = s.pending.reason
		st.PendingDelay = s.pending.delay
		st.PendingAt = s.pending.at
	}
	s.status.Store(st)
}

// Status returns the latest published snapshot. It may be called from any
// goroutine.
func (s *Supervisor) Status() Status {
	if st := s.status.Load(); st != nil {
		return *st
	}
	return Status{}
}
