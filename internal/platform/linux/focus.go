//go:build linux

package linux

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xproto"
)

const (
	focusCacheSize      = 256
	xdotoolPollInterval = 500 * time.Millisecond
)

// FocusTracker keeps the focused application id current in the background
// so that lookups never block. It follows _NET_ACTIVE_WINDOW on X11 and
// falls back to polling xdotool.
type FocusTracker struct {
	current atomic.Pointer[string]

	mu    sync.Mutex
	conn  *xgb.Conn
	cache *lru.Cache[xproto.Window, string]
	stop  chan struct{}
	done  chan struct{}
}

// NewFocusTracker returns an idle tracker.
func NewFocusTracker() *FocusTracker {
	cache, _ := lru.New[xproto.Window, string](focusCacheSize)
	return &FocusTracker{cache: cache}
}

// Start begins tracking focus.
func (t *FocusTracker) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done != nil {
		return nil
	}

	x11Err := t.startX11Locked()
	if x11Err == nil {
		return nil
	}
	if xdotoolAvailable() && DetectSession().X11 {
		log.WithError(x11Err).Info("Falling back to xdotool for focus tracking")
		t.stop = make(chan struct{})
		t.done = make(chan struct{})
		go t.pollXdotool(t.stop, t.done)
		return nil
	}
	return fmt.Errorf("focus tracking unavailable: %w", x11Err)
}

// FocusedApp returns the cached application id.
func (t *FocusTracker) FocusedApp() (string, bool) {
	app := t.current.Load()
	if app == nil || *app == "" {
		return "", false
	}
	return *app, true
}

func (t *FocusTracker) set(app string) {
	prev := t.current.Load()
	if prev != nil && *prev == app {
		return
	}
	t.current.Store(&app)
	log.WithField("app", app).Debug("Focused application changed")
}

type x11Atoms struct {
	activeWindow xproto.Atom
}

func internAtom(conn *xgb.Conn, name string) (xproto.Atom, error) {
	reply, err := xproto.InternAtom(conn, true, uint16(len(name)), name).Reply()
	if err != nil {
		return 0, err
	}
	if reply.Atom == xproto.AtomNone {
		return 0, fmt.Errorf("atom %s not supported by the window manager", name)
	}
	return reply.Atom, nil
}

func (t *FocusTracker) startX11Locked() error {
	conn, err := xgb.NewConn()
	if err != nil {
		return fmt.Errorf("failed to connect to X server: %w", err)
	}
	root := xproto.Setup(conn).DefaultScreen(conn).Root

	active, err := internAtom(conn, "_NET_ACTIVE_WINDOW")
	if err != nil {
		conn.Close()
		return err
	}
	if err := xproto.ChangeWindowAttributesChecked(conn, root, xproto.CwEventMask,
		[]uint32{xproto.EventMaskPropertyChange}).Check(); err != nil {
		conn.Close()
		return fmt.Errorf("failed to watch root window: %w", err)
	}

	t.conn = conn
	t.done = make(chan struct{})
	atoms := x11Atoms{activeWindow: active}
	t.refreshX11(conn, root, atoms)
	go t.runX11(conn, root, atoms, t.done)
	log.Debug("Tracking focus through _NET_ACTIVE_WINDOW")
	return nil
}

func (t *FocusTracker) runX11(conn *xgb.Conn, root xproto.Window, atoms x11Atoms, done chan struct{}) {
	defer close(done)
	for {
		ev, err := conn.WaitForEvent()
		if ev == nil && err == nil {
			return
		}
		if err != nil {
			log.WithField("error", err.Error()).Debug("X11 error while tracking focus")
			continue
		}
		if pn, ok := ev.(xproto.PropertyNotifyEvent); ok && pn.Atom == atoms.activeWindow {
			t.refreshX11(conn, root, atoms)
		}
	}
}

func (t *FocusTracker) refreshX11(conn *xgb.Conn, root xproto.Window, atoms x11Atoms) {
	reply, err := xproto.GetProperty(conn, false, root, atoms.activeWindow, xproto.AtomWindow, 0, 1).Reply()
	if err != nil || reply.ValueLen == 0 || len(reply.Value) < 4 {
		t.set("")
		return
	}
	win := xproto.Window(xgb.Get32(reply.Value))
	if win == 0 {
		t.set("")
		return
	}
	if app, ok := t.cache.Get(win); ok {
		t.set(app)
		return
	}
	app, err := windowClass(conn, win)
	if err != nil {
		log.WithError(err).Debug("Failed to read WM_CLASS")
		t.set("")
		return
	}
	t.cache.Add(win, app)
	t.set(app)
}

func windowClass(conn *xgb.Conn, win xproto.Window) (string, error) {
	reply, err := xproto.GetProperty(conn, false, win, xproto.AtomWmClass, xproto.AtomString, 0, 256).Reply()
	if err != nil {
		return "", err
	}
	app := parseWMClass(reply.Value)
	if app == "" {
		return "", errors.New("empty WM_CLASS")
	}
	return app, nil
}

// parseWMClass returns the class part of a WM_CLASS value
// ("instance\0class\0"), or the instance when no class is set.
func parseWMClass(value []byte) string {
	parts := strings.Split(strings.TrimRight(string(value), "\x00"), "\x00")
	for i := len(parts) - 1; i >= 0; i-- {
		if p := strings.TrimSpace(parts[i]); p != "" {
			return p
		}
	}
	return ""
}

func (t *FocusTracker) pollXdotool(stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(xdotoolPollInterval)
	defer ticker.Stop()
	for {
		class, err := activeWindowClass()
		if err != nil {
			t.set("")
		} else {
			t.set(class)
		}
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
	}
}

// Close stops tracking.
func (t *FocusTracker) Close() error {
	t.mu.Lock()
	conn, stop, done := t.conn, t.stop, t.done
	t.conn, t.stop, t.done = nil, nil, nil
	t.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	if stop != nil {
		close(stop)
	}
	if done != nil {
		<-done
	}
	return nil
}
