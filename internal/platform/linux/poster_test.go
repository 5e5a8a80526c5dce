//go:build linux

package linux

import (
	"errors"
	"testing"

	"github.com/stigoleg/middleclick/internal/input"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type keyPress struct {
	code    uint16
	pressed bool
}

type fakeButtonDevice struct {
	keys   []keyPress
	closed bool
}

func (d *fakeButtonDevice) EmitKey(code uint16, pressed bool) error {
	d.keys = append(d.keys, keyPress{code, pressed})
	return nil
}

func (d *fakeButtonDevice) Close() error {
	d.closed = true
	return nil
}

// flakyFactory fails until allow is set.
type flakyFactory struct {
	allow   bool
	calls   int
	created []*fakeButtonDevice
}

func (f *flakyFactory) create(spec DeviceSpec) (buttonDevice, error) {
	f.calls++
	if !f.allow {
		return nil, errors.New("open /dev/uinput: permission denied")
	}
	d := &fakeButtonDevice{}
	f.created = append(f.created, d)
	return d, nil
}

func newTestPoster(f *flakyFactory) *Poster {
	p := NewPoster("middleclick pointer")
	p.create = f.create
	return p
}

func TestPosterRecoversAfterCreateFailure(t *testing.T) {
	t.Setenv("DISPLAY", "")
	t.Setenv("WAYLAND_DISPLAY", "")
	f := &flakyFactory{}
	p := newTestPoster(f)

	assert.Error(t, p.Prepare())
	assert.Error(t, p.Post(input.ButtonMiddle, input.Down))

	f.allow = true
	require.NoError(t, p.Prepare())
	require.NoError(t, p.Post(input.ButtonMiddle, input.Down))
	require.NoError(t, p.Post(input.ButtonMiddle, input.Up))

	require.Len(t, f.created, 1)
	assert.Equal(t, []keyPress{{btnMiddle, true}, {btnMiddle, false}}, f.created[0].keys)
}

func TestPosterPrepareCreatesOnce(t *testing.T) {
	f := &flakyFactory{allow: true}
	p := newTestPoster(f)

	require.NoError(t, p.Prepare())
	require.NoError(t, p.Prepare())
	require.NoError(t, p.Post(input.ButtonLeft, input.Down))
	assert.Equal(t, 1, f.calls)

	require.NoError(t, p.Close())
	assert.True(t, f.created[0].closed)

	require.NoError(t, p.Post(input.ButtonLeft, input.Up))
	assert.Equal(t, 2, f.calls, "post after close recreates the device")
}
