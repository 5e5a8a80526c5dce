// Package runloop serializes all gesture state mutation onto one goroutine.
//
// Device readers, the pointer hook, notification watchers and timers never
// touch shared state directly. They post closures to a Loop, which runs them
// one at a time in submission order.
package runloop

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "runloop")

var (
	// ErrStopped is returned when work is submitted to a stopped loop.
	ErrStopped = errors.New("run loop stopped")
	// ErrTimeout is returned by Do when the loop did not pick up the task in time.
	ErrTimeout = errors.New("run loop busy")
)

// Timer is a cancellable pending callback.
type Timer interface {
	// Stop prevents the callback from running and reports whether it was
	// still pending.
	Stop() bool
}

// Scheduler creates timers whose callbacks run on the loop.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) Timer
}

const defaultQueue = 256

// Loop runs submitted closures sequentially on a single goroutine.
type Loop struct {
	tasks chan func()
	quit  chan struct{}
	done  chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once
}

// New returns a loop that has not been started yet.
func New() *Loop {
	return &Loop{
		tasks: make(chan func(), defaultQueue),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

// Start launches the loop goroutine. It exits when ctx is done or Stop is called.
func (l *Loop) Start(ctx context.Context) {
	l.startOnce.Do(func() {
		go l.run(ctx)
	})
}

func (l *Loop) run(ctx context.Context) {
	defer close(l.done)
	log.Debug("Run loop started")
	for {
		select {
		case <-ctx.Done():
			l.Stop()
			log.Debug("Run loop context cancelled")
			return
		case <-l.quit:
			log.Debug("Run loop stopped")
			return
		case fn := <-l.tasks:
			l.exec(fn)
		}
	}
}

func (l *Loop) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("Recovered panic in run loop task")
		}
	}()
	fn()
}

// Post queues fn without waiting. It reports false if the loop is stopped.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.quit:
		return false
	default:
	}
	select {
	case l.tasks <- fn:
		return true
	case <-l.quit:
		return false
	}
}

const (
	taskPending int32 = iota
	taskRunning
	taskAbandoned
)

// Do runs fn on the loop and waits for it to finish. If ctx ends before the
// loop starts fn, fn is abandoned and never runs. Once fn has started, Do
// waits for it regardless of ctx. Do must not be called from a loop task.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	var state atomic.Int32
	finished := make(chan struct{})

	task := func() {
		if !state.CompareAndSwap(taskPending, taskRunning) {
			return
		}
		defer close(finished)
		fn()
	}
	if !l.Post(task) {
		return ErrStopped
	}

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		if state.CompareAndSwap(taskPending, taskAbandoned) {
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return ErrTimeout
			}
			return ctx.Err()
		}
		<-finished
		return nil
	case <-l.quit:
		if state.CompareAndSwap(taskPending, taskAbandoned) {
			return ErrStopped
		}
		<-finished
		return nil
	}
}

// AfterFunc runs fn on the loop after d.
func (l *Loop) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, func() { l.Post(fn) })
}

// Stop terminates the loop without waiting. Queued tasks that have not
// started are dropped.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() {
		close(l.quit)
	})
}

// Wait blocks until the loop goroutine has exited. It must only be called
// after Start.
func (l *Loop) Wait() {
	<-l.done
}

// Stopped reports whether Stop has been called.
func (l *Loop) Stopped() bool {
	select {
	case <-l.quit:
		return true
	default:
		return false
	}
}
