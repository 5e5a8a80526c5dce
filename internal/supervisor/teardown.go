package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/stigoleg/middleclick/internal/platform"
)

// DefaultTeardownTimeout bounds how long releasing subscriptions may take.
const DefaultTeardownTimeout = 5 * time.Second

// ErrTeardownTimeout is returned when releases do not finish in time.
var ErrTeardownTimeout = errors.New("teardown timeout exceeded")

type named struct {
	name string
	sub  platform.Subscription
}

// Teardown collects long-lived subscriptions and releases them in reverse
// registration order with a timeout.
type Teardown struct {
	mu      sync.Mutex
	subs    []named
	timeout time.Duration
}

// NewTeardown creates a teardown manager with the given timeout.
func NewTeardown(timeout time.Duration) *Teardown {
	if timeout <= 0 {
		timeout = DefaultTeardownTimeout
	}
	return &Teardown{timeout: timeout}
}

// Add registers sub under name.
func (t *Teardown) Add(name string, sub platform.Subscription) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.subs = append(t.subs, named{name: name, sub: sub})
}

// AddFunc registers a release function under name.
func (t *Teardown) AddFunc(name string, fn func() error) {
	t.Add(name, platform.SubscriptionFunc(fn))
}

// Names lists registered subscriptions in registration order.
func (t *Teardown) Names() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	names := make([]string, len(t.subs))
	for i, s := range t.subs {
		names[i] = s.name
	}
	return names
}

// Release releases everything registered so far and empties the manager.
// A panicking release is recovered and reported as an error.
func (t *Teardown) Release() []error {
	t.mu.Lock()
	subs := t.subs
	t.subs = nil
	t.mu.Unlock()

	if len(subs) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()

	done := make(chan struct{})
	var mu sync.Mutex
	var errs []error
	record := func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}

	go func() {
		defer close(done)
		for i := len(subs) - 1; i >= 0; i-- {
			s := subs[i]
			func() {
				defer func() {
					if r := recover(); r != nil {
						record(fmt.Errorf("panic releasing %s: %v", s.name, r))
						log.WithField("subscription", s.name).WithField("panic", r).Error("Panic during release")
					}
				}()
				if err := s.sub.Release(); err != nil {
					record(fmt.Errorf("release %s: %w", s.name, err))
					log.WithError(err).WithField("subscription", s.name).Warn("Failed to release subscription")
					return
				}
				log.WithField("subscription", s.name).Debug("Released subscription")
			}()
		}
	}()

	select {
	case <-done:
	case <-ctx.Done():
		log.WithField("timeout", t.timeout).Warn("Teardown timed out, some subscriptions may still be active")
		record(ErrTeardownTimeout)
	}
	mu.Lock()
	defer mu.Unlock()
	return append([]error(nil), errs...)
}
