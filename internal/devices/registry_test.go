package devices

import (
	"errors"
	"sync"
	"testing"

	"github.com/stigoleg/middleclick/internal/input"
	"github.com/stigoleg/middleclick/internal/platform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDevice struct {
	id, name string
	failSub  bool

	mu       sync.Mutex
	fn       platform.FrameFunc
	active   int
	released int
}

func (d *fakeDevice) ID() string   { return d.id }
func (d *fakeDevice) Name() string { return d.name }

func (d *fakeDevice) Subscribe(fn platform.FrameFunc) (platform.Subscription, error) {
	if d.failSub {
		return nil, errors.New("device gone")
	}
	d.mu.Lock()
	d.fn = fn
	d.active++
	d.mu.Unlock()
	return platform.SubscriptionFunc(func() error {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.fn = nil
		d.active--
		d.released++
		return nil
	}), nil
}

func (d *fakeDevice) send(f input.Frame) {
	d.mu.Lock()
	fn := d.fn
	d.mu.Unlock()
	if fn != nil {
		fn(f)
	}
}

type fakeSource struct {
	devices []platform.TouchDevice
	err     error
}

func (s *fakeSource) TouchDevices() ([]platform.TouchDevice, error) {
	return s.devices, s.err
}

func TestRegisterAllDeliversFrames(t *testing.T) {
	pad := &fakeDevice{id: "/dev/input/event5", name: "Touchpad"}
	src := &fakeSource{devices: []platform.TouchDevice{pad}}

	var got []input.Frame
	r := New(src, func(f input.Frame) { got = append(got, f) })

	require.Equal(t, 1, r.RegisterAll())
	pad.send(input.Frame{Fingers: 3})

	require.Len(t, got, 1)
	assert.Equal(t, 3, got[0].Fingers)
	assert.Equal(t, []Device{{ID: "/dev/input/event5", Name: "Touchpad"}}, r.Devices())
}

func TestRegisterAllSkipsKnownDevices(t *testing.T) {
	pad := &fakeDevice{id: "a", name: "A"}
	src := &fakeSource{devices: []platform.TouchDevice{pad}}
	r := New(src, func(input.Frame) {})

	assert.Equal(t, 1, r.RegisterAll())
	assert.Equal(t, 1, r.RegisterAll())
	assert.Equal(t, 1, pad.active)
}

func TestRegisterAllToleratesEnumerationFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"no devices", platform.ErrNoDevices},
		{"other error", errors.New("permission denied")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(&fakeSource{err: tt.err}, func(input.Frame) {})
			assert.Equal(t, 0, r.RegisterAll())
			assert.Empty(t, r.Devices())
		})
	}
}

func TestRegisterAllSkipsFailingDevice(t *testing.T) {
	good := &fakeDevice{id: "good", name: "Good"}
	bad := &fakeDevice{id: "bad", name: "Bad", failSub: true}
	r := New(&fakeSource{devices: []platform.TouchDevice{bad, good}}, func(input.Frame) {})

	assert.Equal(t, 1, r.RegisterAll())
	assert.Equal(t, "good", r.Devices()[0].ID)
}

func TestUnregisterAllIsIdempotent(t *testing.T) {
	pad := &fakeDevice{id: "a", name: "A"}
	r := New(&fakeSource{devices: []platform.TouchDevice{pad}}, func(input.Frame) {})

	r.RegisterAll()
	require.NoError(t, r.UnregisterAll())
	require.NoError(t, r.UnregisterAll())

	assert.Equal(t, 0, pad.active)
	assert.Equal(t, 1, pad.released)
	assert.Equal(t, 0, r.Len())
}

func TestReRegisterAfterUnregister(t *testing.T) {
	pad := &fakeDevice{id: "a", name: "A"}
	r := New(&fakeSource{devices: []platform.TouchDevice{pad}}, func(input.Frame) {})

	r.RegisterAll()
	require.NoError(t, r.UnregisterAll())
	assert.Equal(t, 1, r.RegisterAll())
	assert.Equal(t, 1, pad.active)
}
