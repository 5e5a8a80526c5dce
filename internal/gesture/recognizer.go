package gesture

import (
	"math"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stigoleg/middleclick/internal/config"
	"github.com/stigoleg/middleclick/internal/input"
)

var log = logrus.WithField("component", "gesture")

// collisionFactor scales MaxTimeDelta into the window after a natural middle
// click during which synthesized clicks are suppressed.
const collisionFactor = 0.75

// Clicker emits a synthesized middle click.
type Clicker interface {
	PostSyntheticClick() error
}

// Outcome is the result of evaluating a gesture window on lift-off.
type Outcome int

const (
	Accepted Outcome = iota
	RejectedNoStart
	RejectedTooSlow
	RejectedMoved
	RejectedCollision
)

func (o Outcome) String() string {
	switch o {
	case Accepted:
		return "accepted"
	case RejectedNoStart:
		return "no start centroid"
	case RejectedTooSlow:
		return "too slow"
	case RejectedMoved:
		return "moved too far"
	case RejectedCollision:
		return "natural middle click collision"
	default:
		return "unknown"
	}
}

// Window is the in-flight candidate gesture.
type Window struct {
	StartTime         time.Time
	IsArmed           bool
	CentroidAtStart   input.Vector2
	CentroidAtRelease input.Vector2
}

// Stats counts evaluated windows.
type Stats struct {
	Accepted    uint64
	Rejected    uint64
	LastOutcome Outcome
	LastAt      time.Time
}

// Recognizer consumes touch frames and decides when to synthesize a click.
// It must only be used from the run loop goroutine.
type Recognizer struct {
	state   *State
	filter  *IgnoreFilter
	clicker Clicker
	now     func() time.Time

	settings config.Settings
	window   *Window
	stats    Stats
}

// Option configures a Recognizer.
type Option func(*Recognizer)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Recognizer) { r.now = now }
}

// NewRecognizer returns a recognizer using settings until ApplySettings is called.
func NewRecognizer(state *State, filter *IgnoreFilter, clicker Clicker, settings config.Settings, opts ...Option) *Recognizer {
	r := &Recognizer{
		state:    state,
		filter:   filter,
		clicker:  clicker,
		now:      time.Now,
		settings: settings,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ApplySettings swaps the active settings snapshot. Turning tap-to-click on
// drops any in-flight window.
func (r *Recognizer) ApplySettings(s config.Settings) {
	if !s.GestureEnabled() && r.window != nil {
		log.Debug("Gesture disabled, dropping in-flight window")
		r.window = nil
	}
	r.settings = s
}

// Settings returns the active snapshot.
func (r *Recognizer) Settings() config.Settings {
	return r.settings
}

// Enabled reports whether gestures are currently tracked.
func (r *Recognizer) Enabled() bool {
	return r.settings.GestureEnabled()
}

// Window returns a copy of the in-flight window, if any.
func (r *Recognizer) Window() (Window, bool) {
	if r.window == nil {
		return Window{}, false
	}
	return *r.window, true
}

// Stats returns evaluation counters.
func (r *Recognizer) Stats() Stats {
	return r.stats
}

// Reset drops the in-flight window.
func (r *Recognizer) Reset() {
	r.window = nil
}

// HandleFrame is OnFrame for a device frame.
func (r *Recognizer) HandleFrame(f input.Frame) {
	r.OnFrame(f.Contacts, f.Fingers)
}

// OnFrame processes one touch frame.
func (r *Recognizer) OnFrame(contacts []input.Contact, fingers int) {
	s := r.settings
	qualifies := s.Qualifies(fingers)

	if !s.GestureEnabled() || r.filter.FocusedIgnored() {
		r.state.QualifyingFingersHeld = qualifies
		return
	}
	r.state.QualifyingFingersHeld = qualifies

	if fingers == 0 {
		if r.window != nil {
			r.finish()
		}
		return
	}

	now := r.now()
	if r.window == nil {
		r.window = &Window{StartTime: now, IsArmed: true}
	} else if r.window.IsArmed && now.Sub(r.window.StartTime) > s.MaxTimeDelta {
		r.window.IsArmed = false
	}

	if fingers < s.MinimumFingers {
		return
	}
	if !s.AllowMoreFingers && fingers > s.MinimumFingers {
		r.window.IsArmed = false
		r.window.CentroidAtStart = input.Vector2{}
		return
	}
	if !qualifies {
		return
	}

	n := s.MinimumFingers
	if len(contacts) < n {
		n = len(contacts)
	}
	var sum input.Vector2
	for _, c := range contacts[:n] {
		sum = sum.Add(input.Vector2{X: c.X, Y: c.Y})
	}

	if r.window.IsArmed {
		r.window.CentroidAtStart = sum
		r.window.CentroidAtRelease = sum
		r.window.IsArmed = false
		return
	}
	r.window.CentroidAtRelease = sum
}

func (r *Recognizer) finish() {
	w := *r.window
	r.window = nil

	now := r.now()
	outcome := r.evaluate(w, now)
	r.stats.LastOutcome = outcome
	r.stats.LastAt = now

	entry := log.WithFields(logrus.Fields{
		"elapsed": now.Sub(w.StartTime),
		"delta":   manhattan(w.CentroidAtStart, w.CentroidAtRelease),
	})
	if outcome != Accepted {
		r.stats.Rejected++
		entry.Debugf("Gesture rejected: %s", outcome)
		return
	}

	r.stats.Accepted++
	entry.Debug("Gesture accepted, posting middle click")
	if err := r.clicker.PostSyntheticClick(); err != nil {
		log.WithError(err).Warn("Failed to post synthesized middle click")
	}
}

func (r *Recognizer) evaluate(w Window, now time.Time) Outcome {
	s := r.settings
	if w.CentroidAtStart.IsZero() {
		return RejectedNoStart
	}
	if now.Sub(w.StartTime) > s.MaxTimeDelta {
		return RejectedTooSlow
	}
	if manhattan(w.CentroidAtStart, w.CentroidAtRelease) >= s.MaxDistanceDelta {
		return RejectedMoved
	}
	if last, ok := r.state.LastNaturalMiddleClick(); ok {
		guard := time.Duration(float64(s.MaxTimeDelta) * collisionFactor)
		if now.Sub(last) <= guard {
			return RejectedCollision
		}
	}
	return Accepted
}

func manhattan(a, b input.Vector2) float64 {
	return math.Abs(a.X-b.X) + math.Abs(a.Y-b.Y)
}
