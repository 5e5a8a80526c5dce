//go:build linux

package linux

import (
	"sort"
	"time"

	"github.com/stigoleg/middleclick/internal/input"
)

// axisRange maps raw axis values into [0,1].
type axisRange struct {
	min, max int32
}

func (r axisRange) normalize(v int32) float64 {
	if r.max <= r.min {
		return 0
	}
	n := float64(v-r.min) / float64(r.max-r.min)
	switch {
	case n < 0:
		return 0
	case n > 1:
		return 1
	}
	return n
}

type slot struct {
	trackingID int32
	x, y       int32
}

// fingerTools maps BTN_TOOL_* codes to the number of fingers they report.
// Touchpads with fewer MT slots than fingers only report the extra ones here.
var fingerTools = map[uint16]int{
	btnToolFinger:    1,
	btnToolDoubletap: 2,
	btnToolTripletap: 3,
	btnToolQuadtap:   4,
	btnToolQuinttap:  5,
}

// mtSnapshot is the multitouch state read back from the kernel. slots is
// indexed by slot number.
type mtSnapshot struct {
	current int32
	slots   []slot
	tools   map[uint16]bool
}

// frameAssembler turns a type B multitouch event stream into frames, one
// per SYN_REPORT.
type frameAssembler struct {
	device   string
	x, y     axisRange
	slots    map[int32]*slot
	current  int32
	tools    map[uint16]bool
	dropping bool
	resync   func() (mtSnapshot, error)
	now      func() time.Time
}

func newFrameAssembler(device string, x, y axisRange) *frameAssembler {
	return &frameAssembler{
		device: device,
		x:      x,
		y:      y,
		slots:  make(map[int32]*slot),
		tools:  make(map[uint16]bool),
		now:    time.Now,
	}
}

// sync replaces the tracked state with what resync reports. Without a
// resync source, or when it fails, all contacts are dropped.
func (a *frameAssembler) sync() {
	a.slots = make(map[int32]*slot)
	a.tools = make(map[uint16]bool)
	if a.resync == nil {
		return
	}
	snap, err := a.resync()
	if err != nil {
		log.WithError(err).WithField("device", a.device).Warn("Could not read multitouch state")
		return
	}
	for i := range snap.slots {
		if snap.slots[i].trackingID < 0 {
			continue
		}
		s := snap.slots[i]
		a.slots[int32(i)] = &s
	}
	for code, down := range snap.tools {
		if down {
			a.tools[code] = true
		}
	}
	a.current = snap.current
}

func (a *frameAssembler) slot() *slot {
	s, ok := a.slots[a.current]
	if !ok {
		s = &slot{trackingID: -1}
		a.slots[a.current] = s
	}
	return s
}

// feed consumes one event and returns a frame when ev completes one.
func (a *frameAssembler) feed(etype, code uint16, value int32) (input.Frame, bool) {
	if a.dropping {
		// Events up to the next SYN_REPORT are incomplete.
		if etype == evSyn && code == synReport {
			a.dropping = false
			a.sync()
			return a.frame(), true
		}
		return input.Frame{}, false
	}

	switch etype {
	case evKey:
		if _, ok := fingerTools[code]; ok {
			if value != 0 {
				a.tools[code] = true
			} else {
				delete(a.tools, code)
			}
		}
	case evAbs:
		switch code {
		case absMTSlot:
			a.current = value
		case absMTTrackingID:
			a.slot().trackingID = value
		case absMTPositionX:
			a.slot().x = value
		case absMTPositionY:
			a.slot().y = value
		}
	case evSyn:
		switch code {
		case synReport:
			return a.frame(), true
		case synDropped:
			a.dropping = true
		}
	}
	return input.Frame{}, false
}

func (a *frameAssembler) frame() input.Frame {
	ids := make([]int32, 0, len(a.slots))
	for id, s := range a.slots {
		if s.trackingID >= 0 {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	contacts := make([]input.Contact, 0, len(ids))
	for _, id := range ids {
		s := a.slots[id]
		contacts = append(contacts, input.Contact{X: a.x.normalize(s.x), Y: a.y.normalize(s.y)})
	}
	fingers := len(contacts)
	for code := range a.tools {
		if n := fingerTools[code]; n > fingers {
			fingers = n
		}
	}
	return input.Frame{
		Device:   a.device,
		Contacts: contacts,
		Fingers:  fingers,
		Time:     a.now(),
	}
}
