package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Default gesture tuning.
const (
	DefaultMinimumFingers   = 3
	DefaultMaxDistanceDelta = 0.05
	DefaultMaxTimeDelta     = 300 * time.Millisecond
)

// Settings is the read-only snapshot consumed by the gesture core.
type Settings struct {
	MinimumFingers   int
	AllowMoreFingers bool
	MaxDistanceDelta float64
	MaxTimeDelta     time.Duration
	// TapToClick delegates clicking to the touchpad's own tap-to-click and
	// disables gesture recognition.
	TapToClick  bool
	IgnoredApps []string
}

// Default returns the settings used when no file exists.
func Default() Settings {
	return Settings{
		MinimumFingers:   DefaultMinimumFingers,
		MaxDistanceDelta: DefaultMaxDistanceDelta,
		MaxTimeDelta:     DefaultMaxTimeDelta,
	}
}

// Validate checks the ranges the gesture core relies on.
func (s Settings) Validate() error {
	var errs []error
	if s.MinimumFingers < 1 {
		errs = append(errs, fmt.Errorf("fingers must be at least 1, got %d", s.MinimumFingers))
	}
	if s.MaxDistanceDelta <= 0 {
		errs = append(errs, fmt.Errorf("max_distance_delta must be positive, got %g", s.MaxDistanceDelta))
	}
	if s.MaxTimeDelta <= 0 {
		errs = append(errs, fmt.Errorf("max_time_delta must be positive, got %s", s.MaxTimeDelta))
	}
	return errors.Join(errs...)
}

// GestureEnabled reports whether the recognizer should track gestures.
func (s Settings) GestureEnabled() bool {
	return !s.TapToClick
}

// Qualifies reports whether fingers satisfies the configured finger count.
func (s Settings) Qualifies(fingers int) bool {
	if s.AllowMoreFingers {
		return fingers >= s.MinimumFingers
	}
	return fingers == s.MinimumFingers
}

// IsIgnored reports whether app is in the ignore list.
func (s Settings) IsIgnored(app string) bool {
	for _, id := range s.IgnoredApps {
		if id == app {
			return true
		}
	}
	return false
}

// WithIgnored returns a copy of s with app added to or removed from the ignore list.
func (s Settings) WithIgnored(app string, ignored bool) Settings {
	set := make(map[string]struct{}, len(s.IgnoredApps)+1)
	for _, id := range s.IgnoredApps {
		set[id] = struct{}{}
	}
	if ignored {
		set[app] = struct{}{}
	} else {
		delete(set, app)
	}
	s.IgnoredApps = normalizeApps(keys(set))
	return s
}

// Equal reports whether two snapshots carry the same values.
func (s Settings) Equal(o Settings) bool {
	if s.MinimumFingers != o.MinimumFingers ||
		s.AllowMoreFingers != o.AllowMoreFingers ||
		s.MaxDistanceDelta != o.MaxDistanceDelta ||
		s.MaxTimeDelta != o.MaxTimeDelta ||
		s.TapToClick != o.TapToClick ||
		len(s.IgnoredApps) != len(o.IgnoredApps) {
		return false
	}
	for i := range s.IgnoredApps {
		if s.IgnoredApps[i] != o.IgnoredApps[i] {
			return false
		}
	}
	return true
}

func (s Settings) String() string {
	return fmt.Sprintf("fingers=%d allow_more=%v max_distance=%g max_time=%s tap_to_click=%v ignored=[%s]",
		s.MinimumFingers, s.AllowMoreFingers, s.MaxDistanceDelta, s.MaxTimeDelta, s.TapToClick,
		strings.Join(s.IgnoredApps, ","))
}

func normalizeApps(apps []string) []string {
	seen := make(map[string]struct{}, len(apps))
	out := make([]string, 0, len(apps))
	for _, app := range apps {
		app = strings.TrimSpace(app)
		if app == "" {
			continue
		}
		if _, ok := seen[app]; ok {
			continue
		}
		seen[app] = struct{}{}
		out = append(out, app)
	}
	if len(out) == 0 {
		return nil
	}
	sort.Strings(out)
	return out
}

func keys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
