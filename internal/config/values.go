package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/stigoleg/middleclick/internal/util"
	"gopkg.in/ini.v1"
)

// kind is the closed set of value types a settings key can hold.
type kind int

const (
	kindBool kind = iota
	kindInt
	kindFloat
	kindDuration
	kindStringSet
)

func (k kind) String() string {
	switch k {
	case kindBool:
		return "bool"
	case kindInt:
		return "int"
	case kindFloat:
		return "float"
	case kindDuration:
		return "duration"
	case kindStringSet:
		return "string-set"
	default:
		return "unknown"
	}
}

// field binds one ini key to one Settings field.
type field struct {
	section string
	key     string
	kind    kind
	comment string
	ref     func(*Settings) any
}

const (
	sectionGesture = "gesture"
	sectionIgnore  = "ignore"
	sectionMeta    = "meta"

	keySchemaVersion   = "schema_version"
	keyLegacyNeedClick = "need_click"
)

var fields = []field{
	{sectionGesture, "fingers", kindInt, "number of fingers that make up the gesture",
		func(s *Settings) any { return &s.MinimumFingers }},
	{sectionGesture, "allow_more_fingers", kindBool, "accept more fingers than configured",
		func(s *Settings) any { return &s.AllowMoreFingers }},
	{sectionGesture, "max_distance_delta", kindFloat, "maximum centroid travel in normalized units",
		func(s *Settings) any { return &s.MaxDistanceDelta }},
	{sectionGesture, "max_time_delta", kindDuration, "maximum gesture duration (bare number = milliseconds)",
		func(s *Settings) any { return &s.MaxTimeDelta }},
	{sectionGesture, "tap_to_click", kindBool, "leave tapping to the touchpad driver and disable gesture recognition",
		func(s *Settings) any { return &s.TapToClick }},
	{sectionIgnore, "apps", kindStringSet, "comma separated application ids where nothing is rewritten",
		func(s *Settings) any { return &s.IgnoredApps }},
}

// decode reads every known key present in f into s. Missing keys keep the
// value already in s.
func decode(f *ini.File, s *Settings) error {
	for _, fd := range fields {
		sec := f.Section(fd.section)
		if !sec.HasKey(fd.key) {
			continue
		}
		if err := fd.decode(sec.Key(fd.key), s); err != nil {
			return fmt.Errorf("%s.%s: %w", fd.section, fd.key, err)
		}
	}
	return nil
}

func (fd field) decode(k *ini.Key, s *Settings) error {
	raw := strings.TrimSpace(k.String())
	switch p := fd.ref(s).(type) {
	case *bool:
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("invalid %s %q", fd.kind, raw)
		}
		*p = v
	case *int:
		v, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("invalid %s %q", fd.kind, raw)
		}
		*p = v
	case *float64:
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("invalid %s %q", fd.kind, raw)
		}
		*p = v
	case *time.Duration:
		v, err := util.ParseDuration(raw)
		if err != nil {
			return err
		}
		*p = v
	case *[]string:
		*p = normalizeApps(strings.Split(raw, ","))
	default:
		panic(fmt.Sprintf("config: field %s.%s has unsupported kind %s", fd.section, fd.key, fd.kind))
	}
	return nil
}

func (fd field) encode(s *Settings) string {
	switch p := fd.ref(s).(type) {
	case *bool:
		return strconv.FormatBool(*p)
	case *int:
		return strconv.Itoa(*p)
	case *float64:
		return strconv.FormatFloat(*p, 'g', -1, 64)
	case *time.Duration:
		return strconv.FormatInt(p.Milliseconds(), 10)
	case *[]string:
		return strings.Join(*p, ", ")
	default:
		panic(fmt.Sprintf("config: field %s.%s has unsupported kind %s", fd.section, fd.key, fd.kind))
	}
}

// encode writes s into f, keeping unknown keys and comments intact.
func encode(f *ini.File, s Settings) {
	for _, fd := range fields {
		sec := f.Section(fd.section)
		k := sec.Key(fd.key)
		k.SetValue(fd.encode(&s))
		if k.Comment == "" {
			k.Comment = "# " + fd.comment
		}
	}
	f.Section(sectionMeta).Key(keySchemaVersion).SetValue(strconv.Itoa(schemaVersion))
}
