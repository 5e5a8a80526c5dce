package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/stigoleg/middleclick/internal/util"
)

// Flag names shared by the CLI and the override logic.
const (
	FlagConfig           = "config"
	FlagHeadless         = "headless"
	FlagDaemon           = "daemon"
	FlagLogFile          = "log-file"
	FlagVerbose          = "verbose"
	FlagFastRestart      = "fast-restart"
	FlagImmediateRestart = "immediate-restart"
	FlagFingers          = "fingers"
	FlagAllowMoreFingers = "allow-more-fingers"
	FlagMaxDistance      = "max-distance"
	FlagMaxTime          = "max-time"
	FlagTapToClick       = "tap-to-click"
	FlagIgnore           = "ignore"
)

// DefaultLogFile is where the TUI sends log output.
const DefaultLogFile = "middleclick.log"

// Options holds process-level flags plus gesture overrides.
type Options struct {
	ConfigPath       string
	Headless         bool
	Daemon           bool
	LogFile          string
	Verbose          bool
	FastRestart      bool
	ImmediateRestart bool

	fingers          int
	allowMoreFingers bool
	maxDistance      float64
	maxTime          string
	tapToClick       bool
	ignore           []string

	flags *pflag.FlagSet
}

// BindFlags registers every option on fs.
func BindFlags(fs *pflag.FlagSet) *Options {
	o := &Options{flags: fs}

	fs.StringVarP(&o.ConfigPath, FlagConfig, "c", DefaultPath(), "Settings file")
	fs.BoolVar(&o.Headless, FlagHeadless, false, "Run without the terminal UI and log to stderr")
	fs.BoolVarP(&o.Daemon, FlagDaemon, "d", false, "Detach and run in the background (implies --headless)")
	fs.StringVar(&o.LogFile, FlagLogFile, DefaultLogFile, "Log file used while the terminal UI is active")
	fs.BoolVarP(&o.Verbose, FlagVerbose, "v", false, "Enable debug logging, including gesture rejections")
	fs.BoolVar(&o.FastRestart, FlagFastRestart, false, "Restart listeners 2s after wake instead of 10s")
	fs.BoolVar(&o.ImmediateRestart, FlagImmediateRestart, false, "Restart listeners without any delay")

	fs.IntVar(&o.fingers, FlagFingers, DefaultMinimumFingers, "Number of fingers in the gesture")
	fs.BoolVar(&o.allowMoreFingers, FlagAllowMoreFingers, false, "Accept more fingers than --fingers")
	fs.Float64Var(&o.maxDistance, FlagMaxDistance, DefaultMaxDistanceDelta, "Maximum centroid travel in normalized units")
	fs.StringVar(&o.maxTime, FlagMaxTime, DefaultMaxTimeDelta.String(), "Maximum gesture duration (e.g. 300 or 300ms)")
	fs.BoolVar(&o.tapToClick, FlagTapToClick, false, "Disable the gesture and rely on the touchpad's tap-to-click")
	fs.StringSliceVar(&o.ignore, FlagIgnore, nil, "Application ids where clicks are never rewritten")

	return o
}

// HasOverrides reports whether any gesture flag was set explicitly.
func (o *Options) HasOverrides() bool {
	if o.flags == nil {
		return false
	}
	for _, name := range []string{FlagFingers, FlagAllowMoreFingers, FlagMaxDistance, FlagMaxTime, FlagTapToClick, FlagIgnore} {
		if o.flags.Changed(name) {
			return true
		}
	}
	return false
}

// Apply copies explicitly set gesture flags onto s.
func (o *Options) Apply(s *Settings) error {
	if o.flags == nil {
		return nil
	}
	if o.flags.Changed(FlagFingers) {
		s.MinimumFingers = o.fingers
	}
	if o.flags.Changed(FlagAllowMoreFingers) {
		s.AllowMoreFingers = o.allowMoreFingers
	}
	if o.flags.Changed(FlagMaxDistance) {
		s.MaxDistanceDelta = o.maxDistance
	}
	if o.flags.Changed(FlagMaxTime) {
		d, err := util.ParseDuration(o.maxTime)
		if err != nil {
			return fmt.Errorf("--%s: %w", FlagMaxTime, err)
		}
		s.MaxTimeDelta = d
	}
	if o.flags.Changed(FlagTapToClick) {
		s.TapToClick = o.tapToClick
	}
	if o.flags.Changed(FlagIgnore) {
		s.IgnoredApps = normalizeApps(append(s.IgnoredApps, o.ignore...))
	}
	return nil
}

// Validate checks combinations that cobra cannot express.
func (o *Options) Validate() error {
	if o.FastRestart && o.ImmediateRestart {
		return fmt.Errorf("--%s and --%s are mutually exclusive", FlagFastRestart, FlagImmediateRestart)
	}
	if strings.TrimSpace(o.ConfigPath) == "" {
		return fmt.Errorf("--%s must not be empty", FlagConfig)
	}
	if o.Daemon {
		o.Headless = true
	}
	return nil
}
