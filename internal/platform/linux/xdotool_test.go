//go:build linux

package linux

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func installFakeXdotool(t *testing.T, script string) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, xdotoolCmd), []byte("#!/bin/sh\n"+script+"\n"), 0o755))
	t.Setenv("PATH", dir)
}

func TestXdotoolAvailable(t *testing.T) {
	t.Setenv("PATH", t.TempDir())
	assert.False(t, xdotoolAvailable())

	installFakeXdotool(t, "exit 0")
	assert.True(t, xdotoolAvailable())
}

func TestActiveWindowClass(t *testing.T) {
	installFakeXdotool(t, `echo "  firefox "`)
	class, err := activeWindowClass()
	require.NoError(t, err)
	assert.Equal(t, "firefox", class)
}

func TestActiveWindowClassFailure(t *testing.T) {
	installFakeXdotool(t, `echo "no active window" >&2; exit 1`)
	_, err := activeWindowClass()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no active window")
}
