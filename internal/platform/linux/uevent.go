//go:build linux

package linux

import (
	"bytes"
	"errors"
	"math/bits"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// Uevent is one kernel object event.
type Uevent struct {
	Action    string
	DevPath   string
	Subsystem string
	Env       map[string]string
}

// ParseUevent decodes a kernel uevent datagram of the form
// "action@devpath\0KEY=VALUE\0...". Messages rebroadcast by udev are rejected.
func ParseUevent(msg []byte) (Uevent, bool) {
	parts := bytes.Split(msg, []byte{0})
	if len(parts) == 0 {
		return Uevent{}, false
	}
	header := string(parts[0])
	at := strings.IndexByte(header, '@')
	if at <= 0 {
		return Uevent{}, false
	}

	ev := Uevent{
		Action:  header[:at],
		DevPath: header[at+1:],
		Env:     make(map[string]string, len(parts)-1),
	}
	for _, p := range parts[1:] {
		kv := string(p)
		eq := strings.IndexByte(kv, '=')
		if eq <= 0 {
			continue
		}
		ev.Env[kv[:eq]] = kv[eq+1:]
	}
	if action, ok := ev.Env["ACTION"]; ok {
		ev.Action = action
	}
	ev.Subsystem = ev.Env["SUBSYSTEM"]
	return ev, true
}

// ActionOverflow marks a batch in which the kernel dropped uevents.
const ActionOverflow = "overflow"

// DisplayFlags classifies display uevents.
type DisplayFlags uint32

const (
	DisplayFlagAdded DisplayFlags = 1 << iota
	DisplayFlagRemoved
	DisplayFlagModeSet
	DisplayFlagOther
	// DisplayFlagLost means drm events may have been dropped.
	DisplayFlagLost
)

// DisplayChange folds the drm events of a batch into flags.
func DisplayChange(batch []Uevent) DisplayFlags {
	var flags DisplayFlags
	for _, ev := range batch {
		if ev.Action == ActionOverflow {
			flags |= DisplayFlagLost
			continue
		}
		if ev.Subsystem != "drm" {
			continue
		}
		switch ev.Action {
		case "add":
			flags |= DisplayFlagAdded
		case "remove":
			flags |= DisplayFlagRemoved
		case "change":
			if ev.Env["HOTPLUG"] == "1" {
				flags |= DisplayFlagModeSet
			} else {
				flags |= DisplayFlagOther
			}
		}
	}
	return flags
}

// LostDevicesName stands in for devices hidden by an overflowed batch.
const LostDevicesName = "unknown devices (uevents lost)"

// AddedInputDevices returns the names of touch or pointer devices added in
// batch, skipping names that start with skipPrefix. Only the inputN parent
// carries capability bitmaps.
func AddedInputDevices(batch []Uevent, skipPrefix string) []string {
	var names []string
	for _, ev := range batch {
		if ev.Action == ActionOverflow {
			names = append(names, LostDevicesName)
			continue
		}
		if ev.Subsystem != "input" || ev.Action != "add" {
			continue
		}
		abs := parseBitmap(ev.Env["ABS"])
		keys := parseBitmap(ev.Env["KEY"])
		touch := abs.has(absMTPositionX) && abs.has(absMTPositionY)
		pointer := keys.has(btnLeft)
		if !touch && !pointer {
			continue
		}
		name := strings.Trim(ev.Env["NAME"], `"`)
		if skipPrefix != "" && strings.HasPrefix(name, skipPrefix) {
			continue
		}
		if name == "" {
			name = ev.DevPath
		}
		names = append(names, name)
	}
	return names
}

// bitmap is a kernel capability bitmap, least significant word first.
type bitmap []uint64

// parseBitmap decodes the space separated hex words the kernel prints for
// capability bitmaps, most significant word first.
func parseBitmap(s string) bitmap {
	fields := strings.Fields(s)
	out := make(bitmap, 0, len(fields))
	for i := len(fields) - 1; i >= 0; i-- {
		w, err := strconv.ParseUint(fields[i], 16, 64)
		if err != nil {
			return nil
		}
		out = append(out, w)
	}
	return out
}

func (b bitmap) has(bit int) bool {
	word := bit / bits.UintSize
	if word >= len(b) {
		return false
	}
	return b[word]&(1<<(uint(bit)%bits.UintSize)) != 0
}

const (
	ueventBufferSize  = 64 * 1024
	ueventRcvBuf      = 1 << 20
	ueventReadTimeout = 500 * time.Millisecond
	ueventReopenDelay = time.Second
	kernelUeventGroup = 1
)

type recvOutcome int

const (
	recvRetry recvOutcome = iota
	recvOverflow
	recvFatal
)

// classifyRecvErr decides how the monitor reacts to a failed read.
func classifyRecvErr(err error) recvOutcome {
	switch {
	case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.EINTR):
		return recvRetry
	case errors.Is(err, unix.ENOBUFS):
		return recvOverflow
	}
	return recvFatal
}

// UeventMonitor reads kernel uevents from a netlink socket and hands every
// burst of pending messages to subscribers as one batch.
type UeventMonitor struct {
	mu      sync.Mutex
	fd      int
	running bool
	stop    chan struct{}
	done    chan struct{}
	subs    map[int]func([]Uevent)
	nextID  int
}

// NewUeventMonitor returns a monitor that opens its socket on first use.
func NewUeventMonitor() *UeventMonitor {
	return &UeventMonitor{fd: -1, subs: make(map[int]func([]Uevent))}
}

// Subscribe registers fn for every batch. fn runs on the monitor goroutine.
func (m *UeventMonitor) Subscribe(fn func([]Uevent)) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		if err := m.startLocked(); err != nil {
			return nil, err
		}
	}
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}, nil
}

func openUeventSocket() (int, error) {
	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_RAW|unix.SOCK_CLOEXEC, unix.NETLINK_KOBJECT_UEVENT)
	if err != nil {
		return -1, err
	}
	if err := unix.Bind(fd, &unix.SockaddrNetlink{Family: unix.AF_NETLINK, Groups: kernelUeventGroup}); err != nil {
		unix.Close(fd)
		return -1, err
	}
	tv := unix.NsecToTimeval(ueventReadTimeout.Nanoseconds())
	if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		unix.Close(fd)
		return -1, err
	}
	// SO_RCVBUFFORCE needs CAP_NET_ADMIN.
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUFFORCE, ueventRcvBuf); err != nil {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, ueventRcvBuf); err != nil {
			log.WithError(err).Debug("Could not raise uevent receive buffer")
		}
	}
	return fd, nil
}

func (m *UeventMonitor) startLocked() error {
	fd, err := openUeventSocket()
	if err != nil {
		return err
	}
	m.fd = fd
	m.running = true
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	go m.run(fd, m.stop, m.done)
	log.Debug("Uevent monitor started")
	return nil
}

func (m *UeventMonitor) run(fd int, stop, done chan struct{}) {
	defer close(done)
	buf := make([]byte, ueventBufferSize)
	for {
		select {
		case <-stop:
			return
		default:
		}

		var batch []Uevent
		n, _, err := unix.Recvfrom(fd, buf, 0)
		switch {
		case err == nil:
			batch = m.drain(fd, buf, buf[:n])
		case classifyRecvErr(err) == recvRetry:
			continue
		case classifyRecvErr(err) == recvOverflow:
			log.WithError(err).Warn("Uevent socket overflowed, treating devices and displays as changed")
			batch = append(m.drain(fd, buf, nil), Uevent{Action: ActionOverflow})
		default:
			log.WithError(err).Warn("Uevent socket read failed, reopening")
			next, ok := m.reopen(fd, stop)
			if !ok {
				return
			}
			fd = next
			batch = []Uevent{{Action: ActionOverflow}}
		}

		if len(batch) == 0 {
			continue
		}
		m.dispatch(batch)
	}
}

func (m *UeventMonitor) dispatch(batch []Uevent) {
	m.mu.Lock()
	subs := make([]func([]Uevent), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.mu.Unlock()
	for _, fn := range subs {
		fn(batch)
	}
}

// reopen replaces a broken socket, retrying until it succeeds or stop is
// closed. It reports false when the monitor is stopping.
func (m *UeventMonitor) reopen(old int, stop chan struct{}) (int, bool) {
	m.mu.Lock()
	if m.fd == old {
		unix.Close(old)
		m.fd = -1
	}
	m.mu.Unlock()

	for {
		select {
		case <-stop:
			return -1, false
		case <-time.After(ueventReopenDelay):
		}
		fd, err := openUeventSocket()
		if err != nil {
			log.WithError(err).Debug("Uevent socket still unavailable")
			continue
		}
		m.mu.Lock()
		if !m.running {
			m.mu.Unlock()
			unix.Close(fd)
			return -1, false
		}
		m.fd = fd
		m.mu.Unlock()
		log.Info("Uevent monitor reopened")
		return fd, true
	}
}

// drain parses first and every message already queued on the socket.
func (m *UeventMonitor) drain(fd int, buf, first []byte) []Uevent {
	var batch []Uevent
	if ev, ok := ParseUevent(first); ok {
		batch = append(batch, ev)
	}
	for {
		n, _, err := unix.Recvfrom(fd, buf, unix.MSG_DONTWAIT)
		if err != nil || n <= 0 {
			return batch
		}
		if ev, ok := ParseUevent(buf[:n]); ok {
			batch = append(batch, ev)
		}
	}
}

// Close stops the monitor goroutine and closes the socket.
func (m *UeventMonitor) Close() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	close(m.stop)
	done, fd := m.done, m.fd
	m.fd = -1
	m.mu.Unlock()

	<-done
	if fd < 0 {
		return nil
	}
	return unix.Close(fd)
}
