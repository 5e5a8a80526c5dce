//go:build linux

package linux

import (
	"fmt"
	"os/exec"
	"strings"
)

const xdotoolCmd = "xdotool"

// xdotoolAvailable reports whether xdotool is on PATH.
func xdotoolAvailable() bool {
	_, err := exec.LookPath(xdotoolCmd)
	return err == nil
}

// activeWindowClass returns the WM_CLASS of the focused window via xdotool.
func activeWindowClass() (string, error) {
	out, err := exec.Command(xdotoolCmd, "getactivewindow", "getwindowclassname").CombinedOutput()
	text := strings.TrimSpace(string(out))
	if err != nil {
		if text != "" {
			return "", fmt.Errorf("%s: %w: %s", xdotoolCmd, err, text)
		}
		return "", fmt.Errorf("%s: %w", xdotoolCmd, err)
	}
	return text, nil
}
