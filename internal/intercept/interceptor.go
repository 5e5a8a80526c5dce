// Package intercept rewrites primary and secondary button events into middle
// button events while a qualifying finger count is held, and posts
// synthesized middle clicks for the gesture recognizer.
package intercept

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stigoleg/middleclick/internal/gesture"
	"github.com/stigoleg/middleclick/internal/input"
	"github.com/stigoleg/middleclick/internal/runloop"
)

var log = logrus.WithField("component", "intercept")

// Poster emits one OS-level button event.
type Poster interface {
	Post(button input.Button, action input.Action) error
}

// Interceptor is the pointer event filter. Handle and PostSyntheticClick
// must run on the run loop goroutine.
type Interceptor struct {
	state  *gesture.State
	filter *gesture.IgnoreFilter
	poster Poster
	now    func() time.Time

	rewrites  uint64
	synthetic uint64
}

// Option configures an Interceptor.
type Option func(*Interceptor)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(i *Interceptor) { i.now = now }
}

// New returns an interceptor sharing state with the recognizer.
func New(state *gesture.State, filter *gesture.IgnoreFilter, poster Poster, opts ...Option) *Interceptor {
	i := &Interceptor{
		state:  state,
		filter: filter,
		poster: poster,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Handle returns ev rewritten to a middle button event when the gesture
// state calls for it, or ev unchanged.
func (i *Interceptor) Handle(ev input.ButtonEvent) input.ButtonEvent {
	if !ev.IsPrimaryOrSecondary() || i.filter.FocusedIgnored() {
		return ev
	}

	switch ev.Action {
	case input.Down:
		if !i.state.QualifyingFingersHeld {
			return ev
		}
		i.state.SyntheticPressInFlight = true
		i.state.QualifyingFingersHeld = false
		i.state.MarkNaturalMiddleClick(i.now())
		i.rewrites++
		log.WithField("from", ev.Button).Debug("Rewrote button down to middle")
		return input.ButtonEvent{Button: input.ButtonMiddle, Action: input.Down}
	case input.Up:
		if !i.state.SyntheticPressInFlight {
			return ev
		}
		i.state.SyntheticPressInFlight = false
		return input.ButtonEvent{Button: input.ButtonMiddle, Action: input.Up}
	}
	return ev
}

// PostSyntheticClick emits a middle button down followed by an up at the
// current pointer position. It leaves the shared flags untouched.
func (i *Interceptor) PostSyntheticClick() error {
	if i.poster == nil {
		return errors.New("no event poster available")
	}
	if err := i.poster.Post(input.ButtonMiddle, input.Down); err != nil {
		return fmt.Errorf("failed to post middle down: %w", err)
	}
	if err := i.poster.Post(input.ButtonMiddle, input.Up); err != nil {
		return fmt.Errorf("failed to post middle up: %w", err)
	}
	i.synthetic++
	return nil
}

// Counts returns how many events were rewritten and how many clicks were
// synthesized.
func (i *Interceptor) Counts() (rewrites, synthetic uint64) {
	return i.rewrites, i.synthetic
}

// OnLoop adapts Handle for hooks that deliver events on their own
// goroutines. Each event is handled on l; if l does not pick it up within
// timeout the event passes through unchanged so the pointer never stalls.
func (i *Interceptor) OnLoop(l *runloop.Loop, timeout time.Duration) func(input.ButtonEvent) input.ButtonEvent {
	return func(ev input.ButtonEvent) input.ButtonEvent {
		out := ev
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := l.Do(ctx, func() { out = i.Handle(ev) }); err != nil {
			log.WithError(err).WithField("event", fmt.Sprintf("%s %s", ev.Button, ev.Action)).
				Warn("Passing button event through unchanged")
			return ev
		}
		return out
	}
}
