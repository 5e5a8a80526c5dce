//go:build linux

package linux

import (
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
)

const (
	logindInterface = "org.freedesktop.login1.Manager"
	logindPath      = "/org/freedesktop/login1"
	prepareForSleep = "PrepareForSleep"
)

// SleepWatcher reports resume from suspend using logind's PrepareForSleep
// signal on the system bus.
type SleepWatcher struct {
	mu      sync.Mutex
	conn    *dbus.Conn
	signals chan *dbus.Signal
	subs    map[int]func()
	nextID  int
}

// NewSleepWatcher returns a watcher that connects on first use.
func NewSleepWatcher() *SleepWatcher {
	return &SleepWatcher{subs: make(map[int]func())}
}

// OnWake registers fn for every resume. fn runs on the watcher goroutine.
func (w *SleepWatcher) OnWake(fn func()) (func(), error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn == nil {
		if err := w.connectLocked(); err != nil {
			return nil, err
		}
	}
	id := w.nextID
	w.nextID++
	w.subs[id] = fn
	return func() {
		w.mu.Lock()
		delete(w.subs, id)
		w.mu.Unlock()
	}, nil
}

func (w *SleepWatcher) connectLocked() error {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return fmt.Errorf("failed to connect to system bus: %w", err)
	}
	if err := conn.AddMatchSignal(
		dbus.WithMatchObjectPath(logindPath),
		dbus.WithMatchInterface(logindInterface),
		dbus.WithMatchMember(prepareForSleep),
	); err != nil {
		conn.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", prepareForSleep, err)
	}

	signals := make(chan *dbus.Signal, 8)
	conn.Signal(signals)
	w.conn = conn
	w.signals = signals
	go w.run(signals)
	log.Debug("Listening for logind sleep signals")
	return nil
}

func (w *SleepWatcher) run(signals chan *dbus.Signal) {
	for sig := range signals {
		if sig.Name != logindInterface+"."+prepareForSleep || len(sig.Body) == 0 {
			continue
		}
		sleeping, ok := sig.Body[0].(bool)
		if !ok {
			continue
		}
		if sleeping {
			log.Debug("System is going to sleep")
			continue
		}
		log.Info("System resumed from sleep")

		w.mu.Lock()
		subs := make([]func(), 0, len(w.subs))
		for _, fn := range w.subs {
			subs = append(subs, fn)
		}
		w.mu.Unlock()
		for _, fn := range subs {
			fn()
		}
	}
}

// Close disconnects from the bus, which also ends the signal goroutine.
func (w *SleepWatcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn == nil {
		return nil
	}
	err := w.conn.Close()
	w.conn = nil
	w.signals = nil
	return err
}
