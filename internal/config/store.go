package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/ini.v1"
)

// schemaVersion is the layout written by this build. Files without a
// [meta] schema_version are treated as version 0.
const schemaVersion = 1

var log = logrus.WithField("component", "config")

// ErrInvalidSettings wraps validation failures from Update and Load.
var ErrInvalidSettings = errors.New("invalid settings")

// DefaultPath returns $XDG_CONFIG_HOME/middleclick/settings.ini, falling
// back to the user config directory reported by the OS.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "middleclick", "settings.ini")
}

// Store owns the persisted settings and fans out changes to subscribers.
type Store struct {
	path string

	mu      sync.Mutex
	file    *ini.File
	current Settings
	nextID  int
	subs    map[int]func(Settings)
}

// NewStore returns a store backed by path holding defaults until Load is called.
func NewStore(path string) *Store {
	return &Store{
		path:    path,
		file:    ini.Empty(),
		current: Default(),
		subs:    make(map[int]func(Settings)),
	}
}

// Path returns the settings file location.
func (s *Store) Path() string {
	return s.path
}

// Load reads the settings file. A missing file is created with defaults and
// legacy files are migrated and written back.
func (s *Store) Load() error {
	_, statErr := os.Stat(s.path)
	fresh := errors.Is(statErr, fs.ErrNotExist)

	f, err := ini.LooseLoad(s.path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", s.path, err)
	}

	migrated := !fresh && migrate(f)

	next := Default()
	if err := decode(f, &next); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidSettings, s.path, err)
	}
	if err := next.Validate(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidSettings, s.path, err)
	}

	s.mu.Lock()
	s.file = f
	changed := !s.current.Equal(next)
	s.current = next
	if fresh || migrated {
		encode(s.file, next)
		if err := s.saveLocked(); err != nil {
			log.WithError(err).Warn("Failed to write settings file")
		}
	}
	subs := s.snapshotSubsLocked()
	s.mu.Unlock()

	log.WithFields(logrus.Fields{"path": s.path, "migrated": migrated}).Debugf("Loaded settings: %s", next)
	if changed {
		notify(subs, next)
	}
	return nil
}

// Current returns the active snapshot.
func (s *Store) Current() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Subscribe registers fn for every subsequent change and returns a cancel func.
// fn runs on the goroutine that made the change.
func (s *Store) Subscribe(fn func(Settings)) (cancel func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// Update applies fn to a copy of the current settings, validates and saves
// the result, then notifies subscribers. Nothing changes if fn produces an
// invalid snapshot or the file cannot be written.
func (s *Store) Update(fn func(*Settings)) error {
	s.mu.Lock()
	next := s.current
	next.IgnoredApps = append([]string(nil), s.current.IgnoredApps...)
	fn(&next)
	next.IgnoredApps = normalizeApps(next.IgnoredApps)

	if err := next.Validate(); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	if next.Equal(s.current) {
		s.mu.Unlock()
		return nil
	}

	encode(s.file, next)
	if err := s.saveLocked(); err != nil {
		// Re-encode the previous snapshot so the in-memory file matches current.
		encode(s.file, s.current)
		s.mu.Unlock()
		return err
	}
	s.current = next
	subs := s.snapshotSubsLocked()
	s.mu.Unlock()

	log.Infof("Settings updated: %s", next)
	notify(subs, next)
	return nil
}

// WriteTo writes the current settings in file form to w.
func (s *Store) WriteTo(w io.Writer) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	encode(s.file, s.current)
	return s.file.WriteTo(w)
}

func (s *Store) saveLocked() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}
	if err := s.file.SaveTo(s.path); err != nil {
		return fmt.Errorf("failed to write %s: %w", s.path, err)
	}
	return nil
}

func (s *Store) snapshotSubsLocked() []func(Settings) {
	out := make([]func(Settings), 0, len(s.subs))
	for _, fn := range s.subs {
		out = append(out, fn)
	}
	return out
}

func notify(subs []func(Settings), next Settings) {
	for _, fn := range subs {
		fn(next)
	}
}

// migrate upgrades f in place and reports whether anything changed.
//
// Version 0 stored the inverse of tap_to_click as need_click, either at the
// top level or under [gesture].
func migrate(f *ini.File) bool {
	version := f.Section(sectionMeta).Key(keySchemaVersion).MustInt(0)
	if version >= schemaVersion {
		return false
	}

	for _, name := range []string{ini.DefaultSection, sectionGesture} {
		sec := f.Section(name)
		if !sec.HasKey(keyLegacyNeedClick) {
			continue
		}
		needClick, err := sec.Key(keyLegacyNeedClick).Bool()
		sec.DeleteKey(keyLegacyNeedClick)
		if err != nil {
			log.WithError(err).Warnf("Dropping unreadable legacy %s", keyLegacyNeedClick)
			continue
		}
		gesture := f.Section(sectionGesture)
		if !gesture.HasKey("tap_to_click") {
			gesture.Key("tap_to_click").SetValue(strconv.FormatBool(!needClick))
		}
	}

	f.Section(sectionMeta).Key(keySchemaVersion).SetValue(strconv.Itoa(schemaVersion))
	log.WithFields(logrus.Fields{"from": version, "to": schemaVersion}).Info("Migrated settings schema")
	return true
}
