//go:build linux

package linux

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseWMClass(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  string
	}{
		{"instance and class", "navigator\x00firefox\x00", "firefox"},
		{"reverse domain", "blender\x00org.blender.Blender\x00", "org.blender.Blender"},
		{"instance only", "xterm\x00", "xterm"},
		{"empty class", "gimp\x00\x00", "gimp"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseWMClass([]byte(tt.value)))
		})
	}
}

func TestFocusTrackerCache(t *testing.T) {
	tr := NewFocusTracker()
	_, ok := tr.FocusedApp()
	assert.False(t, ok)

	tr.set("firefox")
	app, ok := tr.FocusedApp()
	assert.True(t, ok)
	assert.Equal(t, "firefox", app)

	tr.set("")
	_, ok = tr.FocusedApp()
	assert.False(t, ok)
	assert.NoError(t, tr.Close())
}
