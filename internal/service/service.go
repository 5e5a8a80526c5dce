// Package service wires the gesture recognizer, the pointer interceptor and
// the listener supervisor to a platform backend and keeps them in sync with
// the settings store.
package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stigoleg/middleclick/internal/config"
	"github.com/stigoleg/middleclick/internal/devices"
	"github.com/stigoleg/middleclick/internal/gesture"
	"github.com/stigoleg/middleclick/internal/input"
	"github.com/stigoleg/middleclick/internal/intercept"
	"github.com/stigoleg/middleclick/internal/platform"
	"github.com/stigoleg/middleclick/internal/runloop"
	"github.com/stigoleg/middleclick/internal/supervisor"
)

var log = logrus.WithField("component", "service")

var (
	// ErrAlreadyRunning is returned by Start on a running service.
	ErrAlreadyRunning = errors.New("service already running")
	// ErrNotRunning is returned by operations that need a running service.
	ErrNotRunning = errors.New("service not running")
	// ErrNoFocusedApp is returned when the focused application is unknown.
	ErrNoFocusedApp = errors.New("focused application unknown")
)

const (
	defaultStopTimeout = 5 * time.Second
	statusTimeout      = 100 * time.Millisecond
)

// Options tunes a Service.
type Options struct {
	Delays supervisor.Delays
	// FilterTimeout bounds how long a button event waits for the loop.
	FilterTimeout time.Duration
	// Scheduler replaces the loop timers used for debounced restarts.
	Scheduler runloop.Scheduler
	Now       func() time.Time
}

// DefaultOptions returns the production options.
func DefaultOptions() Options {
	return Options{
		Delays:        supervisor.NewDelays(false, false),
		FilterTimeout: platform.FilterTimeout,
	}
}

// Status is a point-in-time view of the service for the UI.
type Status struct {
	Running        bool
	Backend        string
	GestureEnabled bool
	Settings       config.Settings
	FocusedApp     string
	FocusKnown     bool
	FocusIgnored   bool
	Supervisor     supervisor.Status
	Gestures       gesture.Stats
	Rewrites       uint64
	Synthetic      uint64
}

// session holds everything created by one Start.
type session struct {
	cancel      context.CancelFunc
	loop        *runloop.Loop
	state       *gesture.State
	filter      *gesture.IgnoreFilter
	recognizer  *gesture.Recognizer
	interceptor *intercept.Interceptor
	registry    *devices.Registry
	supervisor  *supervisor.Supervisor
	unsubscribe func()
}

// Service runs the middle click machinery on a backend.
type Service struct {
	store   *config.Store
	backend platform.Backend
	opts    Options

	mu      sync.Mutex
	running bool
	sess    *session

	enabled atomic.Bool
}

// New returns a stopped service.
func New(store *config.Store, backend platform.Backend, opts Options) *Service {
	if opts.FilterTimeout <= 0 {
		opts.FilterTimeout = platform.FilterTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Service{store: store, backend: backend, opts: opts}
	s.enabled.Store(store.Current().GestureEnabled())
	return s
}

// IsRunning returns whether the service is active.
func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Start builds the gesture pipeline and starts the supervisor on a fresh
// event loop. The loop ends when ctx is cancelled or Stop is called.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrAlreadyRunning
	}

	settings := s.store.Current()
	ctx, cancel := context.WithCancel(ctx)
	loop := runloop.New()
	loop.Start(ctx)

	sess := &session{cancel: cancel, loop: loop, state: gesture.NewState()}
	sess.filter = gesture.NewIgnoreFilter(settings.IgnoredApps, s.backend.FocusedApp)
	sess.interceptor = intercept.New(sess.state, sess.filter, s.backend, intercept.WithClock(s.opts.Now))
	sess.recognizer = gesture.NewRecognizer(sess.state, sess.filter, sess.interceptor, settings, gesture.WithClock(s.opts.Now))
	sess.registry = devices.New(s.backend, func(f input.Frame) {
		loop.Post(func() { sess.recognizer.HandleFrame(f) })
	})

	scheduler := s.opts.Scheduler
	if scheduler == nil {
		scheduler = loop
	}
	sess.supervisor = supervisor.New(supervisor.Config{
		Host:      s.backend,
		Registry:  sess.registry,
		Filter:    sess.interceptor.OnLoop(loop, s.opts.FilterTimeout),
		Loop:      loop,
		Scheduler: scheduler,
		Delays:    s.opts.Delays,
		OnRestart: func() {
			sess.recognizer.Reset()
			sess.state.ResetInput()
		},
		Now: s.opts.Now,
	})

	s.enabled.Store(settings.GestureEnabled())
	sess.unsubscribe = s.store.Subscribe(func(next config.Settings) {
		s.enabled.Store(next.GestureEnabled())
		loop.Post(func() {
			sess.recognizer.ApplySettings(next)
			sess.filter.Update(next.IgnoredApps)
		})
	})

	if err := loop.Do(ctx, sess.supervisor.Start); err != nil {
		sess.unsubscribe()
		loop.Stop()
		cancel()
		return err
	}

	s.sess = sess
	s.running = true
	log.WithFields(logrus.Fields{
		"backend":  s.backend.Name(),
		"settings": settings.String(),
	}).Info("Service started")
	return nil
}

// Stop stops the service.
func (s *Service) Stop() error {
	return s.StopWithTimeout(0)
}

// StopWithTimeout stops the supervisor and the event loop, giving up after
// timeout.
func (s *Service) StopWithTimeout(timeout time.Duration) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	if timeout <= 0 {
		timeout = defaultStopTimeout
	}
	sess := s.sess
	s.sess = nil
	s.running = false
	s.mu.Unlock()

	sess.unsubscribe()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var stopErr error
	err := sess.loop.Do(ctx, func() { stopErr = sess.supervisor.Stop() })
	sess.loop.Stop()
	sess.cancel()

	if err != nil {
		log.WithError(err).WithField("timeout", timeout).Warn("Stop did not complete")
		return err
	}
	if stopErr != nil {
		log.WithError(stopErr).Warn("Stopped with errors")
		return stopErr
	}
	log.Info("Service stopped")
	return nil
}

func (s *Service) session() *session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sess
}

// RestartNow queues a manual restart of the listeners.
func (s *Service) RestartNow() error {
	sess := s.session()
	if sess == nil {
		return ErrNotRunning
	}
	if !sess.loop.Post(sess.supervisor.RestartNow) {
		return ErrNotRunning
	}
	return nil
}

// GestureEnabled reports whether gestures are recognized. It tracks
// settings changes as soon as they are stored.
func (s *Service) GestureEnabled() bool {
	return s.enabled.Load()
}

// Settings returns the current settings snapshot.
func (s *Service) Settings() config.Settings {
	return s.store.Current()
}

// Subscribe registers fn for settings changes.
func (s *Service) Subscribe(fn func(config.Settings)) (cancel func()) {
	return s.store.Subscribe(fn)
}

// SetTapToClick persists the tap-to-click mode.
func (s *Service) SetTapToClick(on bool) error {
	return s.store.Update(func(st *config.Settings) { st.TapToClick = on })
}

// ToggleTapToClick flips the tap-to-click mode and returns the new value.
func (s *Service) ToggleTapToClick() (bool, error) {
	on := !s.store.Current().TapToClick
	if err := s.SetTapToClick(on); err != nil {
		return !on, err
	}
	return on, nil
}

// ResetTapToClick restores the default click mode.
func (s *Service) ResetTapToClick() error {
	return s.SetTapToClick(config.Default().TapToClick)
}

// ToggleIgnoreFocused adds the focused application to the ignore list, or
// removes it if it is already there. It returns the app id and whether it
// is now ignored.
func (s *Service) ToggleIgnoreFocused() (string, bool, error) {
	app, ok := s.backend.FocusedApp()
	if !ok || app == "" {
		return "", false, ErrNoFocusedApp
	}
	ignored := !s.store.Current().IsIgnored(app)
	err := s.store.Update(func(st *config.Settings) {
		*st = st.WithIgnored(app, ignored)
	})
	if err != nil {
		return app, !ignored, err
	}
	return app, ignored, nil
}

// Status collects a snapshot. Loop-confined counters are read on the loop
// with a short timeout and left zero if the loop is busy.
func (s *Service) Status() Status {
	settings := s.store.Current()
	app, known := s.backend.FocusedApp()
	st := Status{
		Backend:        s.backend.Name(),
		GestureEnabled: s.GestureEnabled(),
		Settings:       settings,
		FocusedApp:     app,
		FocusKnown:     known,
		FocusIgnored:   known && settings.IsIgnored(app),
	}

	sess := s.session()
	if sess == nil {
		return st
	}
	st.Running = true
	st.Supervisor = sess.supervisor.Status()

	ctx, cancel := context.WithTimeout(context.Background(), statusTimeout)
	defer cancel()
	_ = sess.loop.Do(ctx, func() {
		st.Gestures = sess.recognizer.Stats()
		st.Rewrites, st.Synthetic = sess.interceptor.Counts()
	})
	return st
}
