//go:build linux

package linux

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func datagram(header string, env ...string) []byte {
	return []byte(header + "\x00" + strings.Join(env, "\x00") + "\x00")
}

func TestParseUevent(t *testing.T) {
	ev, ok := ParseUevent(datagram("add@/devices/virtual/input/input42",
		"ACTION=add",
		"DEVPATH=/devices/virtual/input/input42",
		"SUBSYSTEM=input",
		`NAME="Synaptics TM3276-022"`,
		"SEQNUM=1234",
	))
	require.True(t, ok)
	assert.Equal(t, "add", ev.Action)
	assert.Equal(t, "/devices/virtual/input/input42", ev.DevPath)
	assert.Equal(t, "input", ev.Subsystem)
	assert.Equal(t, "1234", ev.Env["SEQNUM"])
}

func TestParseUeventRejectsUdevMessages(t *testing.T) {
	_, ok := ParseUevent([]byte("libudev\x00\xfe\xed\xca\xfe"))
	assert.False(t, ok)

	_, ok = ParseUevent(nil)
	assert.False(t, ok)
}

func TestDisplayChange(t *testing.T) {
	tests := []struct {
		name  string
		batch []Uevent
		want  DisplayFlags
	}{
		{"empty", nil, 0},
		{"hotplug", []Uevent{{Action: "change", Subsystem: "drm", Env: map[string]string{"HOTPLUG": "1"}}}, DisplayFlagModeSet},
		{"plain change", []Uevent{{Action: "change", Subsystem: "drm", Env: map[string]string{}}}, DisplayFlagOther},
		{"card added and removed", []Uevent{
			{Action: "add", Subsystem: "drm"},
			{Action: "remove", Subsystem: "drm"},
		}, DisplayFlagAdded | DisplayFlagRemoved},
		{"non drm ignored", []Uevent{{Action: "add", Subsystem: "usb"}}, 0},
		{"overflow", []Uevent{{Action: ActionOverflow}}, DisplayFlagLost},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DisplayChange(tt.batch))
		})
	}
}

func TestAddedInputDevices(t *testing.T) {
	touchpad, ok := ParseUevent(datagram("add@/devices/platform/i8042/serio1/input/input7",
		"ACTION=add",
		"SUBSYSTEM=input",
		`NAME="SynPS/2 Synaptics TouchPad"`,
		"EV=b",
		"KEY=e520 10000 0 0 0 0",
		"ABS=660800011000003",
	))
	require.True(t, ok)

	keyboard, ok := ParseUevent(datagram("add@/devices/platform/i8042/serio0/input/input3",
		"ACTION=add",
		"SUBSYSTEM=input",
		`NAME="AT Translated Set 2 keyboard"`,
		"EV=120013",
		"KEY=402000000 3803078f800d001 feffffdfffefffff fffffffffffffffe",
	))
	require.True(t, ok)

	eventNode, ok := ParseUevent(datagram("add@/devices/platform/i8042/serio1/input/input7/event7",
		"ACTION=add",
		"SUBSYSTEM=input",
		"DEVNAME=input/event7",
	))
	require.True(t, ok)

	clone := touchpad
	clone.Env = map[string]string{}
	for k, v := range touchpad.Env {
		clone.Env[k] = v
	}
	clone.Env["NAME"] = `"middleclick SynPS/2 Synaptics TouchPad"`

	removed := touchpad
	removed.Action = "remove"

	names := AddedInputDevices([]Uevent{touchpad, keyboard, eventNode, removed, clone}, "middleclick")
	assert.Equal(t, []string{"SynPS/2 Synaptics TouchPad"}, names)

	names = AddedInputDevices([]Uevent{keyboard, {Action: ActionOverflow}}, "middleclick")
	assert.Equal(t, []string{LostDevicesName}, names)
}

func TestClassifyRecvErr(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want recvOutcome
	}{
		{"timeout", unix.EAGAIN, recvRetry},
		{"interrupted", unix.EINTR, recvRetry},
		{"overflow", unix.ENOBUFS, recvOverflow},
		{"wrapped overflow", fmt.Errorf("recvfrom: %w", unix.ENOBUFS), recvOverflow},
		{"bad descriptor", unix.EBADF, recvFatal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classifyRecvErr(tt.err))
		})
	}
}

func TestBitmap(t *testing.T) {
	b := parseBitmap("1 8000000000000001")
	assert.True(t, b.has(0))
	assert.True(t, b.has(63))
	assert.True(t, b.has(64))
	assert.False(t, b.has(1))
	assert.False(t, b.has(200))

	assert.Nil(t, parseBitmap("zz"))
}
