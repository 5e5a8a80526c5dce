//go:build linux

// Package linux talks to the Linux input stack: evdev readers, uinput
// virtual devices, kernel uevents, logind and the X11 focus property.
package linux

import (
	"os"
	"strings"
)

// Display server types.
const (
	DisplayServerWayland = "wayland"
	DisplayServerX11     = "x11"
	DisplayServerUnknown = "unknown"
)

// Desktop environment types.
const (
	DesktopCosmic  = "cosmic"
	DesktopGNOME   = "gnome"
	DesktopKDE     = "kde"
	DesktopXFCE    = "xfce"
	DesktopMATE    = "mate"
	DesktopUnknown = "unknown"
)

// desktopMarkers are matched in order against XDG_CURRENT_DESKTOP and
// DESKTOP_SESSION.
var desktopMarkers = []struct {
	desktop string
	markers []string
}{
	{DesktopCosmic, []string{"cosmic", "pop"}},
	{DesktopGNOME, []string{"gnome", "unity"}},
	{DesktopKDE, []string{"kde", "plasma"}},
	{DesktopXFCE, []string{"xfce"}},
	{DesktopMATE, []string{"mate"}},
}

// Session describes the graphical session the daemon runs in.
type Session struct {
	DisplayServer string
	Desktop       string
	// X11 is true when an X server, native or XWayland, is reachable. Focus
	// tracking and the robotgo poster need it.
	X11 bool
}

// DetectSession inspects the environment of the current process.
func DetectSession() Session {
	return Session{
		DisplayServer: DetectDisplayServer(),
		Desktop:       DetectDesktopEnvironment(),
		X11:           os.Getenv("DISPLAY") != "",
	}
}

// FocusLimited reports whether only XWayland windows can be identified, so
// native Wayland applications always look unfocused to the ignore list.
func (s Session) FocusLimited() bool {
	return s.DisplayServer == DisplayServerWayland
}

// DetectDesktopEnvironment detects the current desktop environment.
func DetectDesktopEnvironment() string {
	env := strings.ToLower(os.Getenv("XDG_CURRENT_DESKTOP") + ":" + os.Getenv("DESKTOP_SESSION"))
	for _, d := range desktopMarkers {
		for _, m := range d.markers {
			if strings.Contains(env, m) {
				return d.desktop
			}
		}
	}
	return DesktopUnknown
}

// DetectDisplayServer detects whether running on Wayland or X11. A
// compositor socket wins over the session type.
func DetectDisplayServer() string {
	switch {
	case os.Getenv("WAYLAND_DISPLAY") != "":
		return DisplayServerWayland
	case os.Getenv("DISPLAY") != "" && os.Getenv("XDG_SESSION_TYPE") != DisplayServerWayland:
		return DisplayServerX11
	}
	switch t := os.Getenv("XDG_SESSION_TYPE"); t {
	case DisplayServerWayland, DisplayServerX11:
		return t
	}
	return DisplayServerUnknown
}
