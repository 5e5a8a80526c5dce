package service

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stigoleg/middleclick/internal/config"
	"github.com/stigoleg/middleclick/internal/gesture"
	"github.com/stigoleg/middleclick/internal/input"
	"github.com/stigoleg/middleclick/internal/platform"
	"github.com/stigoleg/middleclick/internal/platform/platformtest"
	"github.com/stigoleg/middleclick/internal/supervisor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startPose sums to (0.5, 0.5) over three fingers.
var startPose = []input.Contact{{X: 0.1, Y: 0.2}, {X: 0.2, Y: 0.1}, {X: 0.2, Y: 0.2}}

type fixture struct {
	svc     *Service
	store   *config.Store
	backend *platformtest.Backend
	pad     *platformtest.Device
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := config.NewStore(filepath.Join(t.TempDir(), "settings.ini"))
	backend := platformtest.New()
	pad := backend.AddDevice("/dev/input/event7", "Test Touchpad")
	opts := DefaultOptions()
	opts.FilterTimeout = time.Second
	svc := New(store, backend, opts)
	t.Cleanup(func() { _ = svc.Stop() })
	return &fixture{svc: svc, store: store, backend: backend, pad: pad}
}

func (f *fixture) start(t *testing.T) {
	t.Helper()
	require.NoError(t, f.svc.Start(context.Background()))
}

func (f *fixture) tap(fingers int) {
	f.pad.Send(input.Frame{Contacts: startPose[:min(fingers, len(startPose))], Fingers: fingers})
	f.pad.Send(input.Frame{Fingers: 0})
}

func TestServiceLifecycle(t *testing.T) {
	f := newFixture(t)
	assert.False(t, f.svc.IsRunning())
	assert.ErrorIs(t, f.svc.RestartNow(), ErrNotRunning)

	f.start(t)
	assert.True(t, f.svc.IsRunning())
	assert.ErrorIs(t, f.svc.Start(context.Background()), ErrAlreadyRunning)
	assert.True(t, f.backend.Hooked())
	assert.Equal(t, 1, f.pad.Subscribers())
	assert.Equal(t, 3, f.backend.Notifications())

	require.NoError(t, f.svc.Stop())
	assert.False(t, f.svc.IsRunning())
	assert.False(t, f.backend.Hooked())
	assert.Equal(t, 0, f.pad.Subscribers())
	assert.Equal(t, 0, f.backend.Notifications())
	require.NoError(t, f.svc.Stop())

	f.start(t)
	assert.True(t, f.backend.Hooked())
	assert.Equal(t, 2, f.backend.Installs())
}

func TestGestureSynthesizesMiddleClick(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	f.tap(3)

	assert.Eventually(t, func() bool { return len(f.backend.Posted()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []input.ButtonEvent{
		{Button: input.ButtonMiddle, Action: input.Down},
		{Button: input.ButtonMiddle, Action: input.Up},
	}, f.backend.Posted())

	st := f.svc.Status()
	assert.Equal(t, uint64(1), st.Gestures.Accepted)
	assert.Equal(t, gesture.Accepted, st.Gestures.LastOutcome)
	assert.Equal(t, uint64(1), st.Synthetic)
}

func TestHeldFingersRewriteClick(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	f.pad.Send(input.Frame{Contacts: startPose, Fingers: 3})

	down, ok := f.backend.Press(input.ButtonEvent{Button: input.ButtonLeft, Action: input.Down})
	require.True(t, ok)
	assert.Equal(t, input.ButtonEvent{Button: input.ButtonMiddle, Action: input.Down}, down)

	up, _ := f.backend.Press(input.ButtonEvent{Button: input.ButtonLeft, Action: input.Up})
	assert.Equal(t, input.ButtonEvent{Button: input.ButtonMiddle, Action: input.Up}, up)

	plain, _ := f.backend.Press(input.ButtonEvent{Button: input.ButtonRight, Action: input.Down})
	assert.Equal(t, input.ButtonEvent{Button: input.ButtonRight, Action: input.Down}, plain)

	assert.Equal(t, uint64(1), f.svc.Status().Rewrites)
}

func TestIgnoredAppPassesThrough(t *testing.T) {
	f := newFixture(t)
	f.backend.SetFocus("org.gimp.GIMP")
	f.start(t)

	app, ignored, err := f.svc.ToggleIgnoreFocused()
	require.NoError(t, err)
	assert.Equal(t, "org.gimp.GIMP", app)
	assert.True(t, ignored)
	assert.Equal(t, []string{"org.gimp.GIMP"}, f.store.Current().IgnoredApps)

	f.pad.Send(input.Frame{Contacts: startPose, Fingers: 3})
	ev, _ := f.backend.Press(input.ButtonEvent{Button: input.ButtonLeft, Action: input.Down})
	assert.Equal(t, input.ButtonEvent{Button: input.ButtonLeft, Action: input.Down}, ev)

	f.tap(3)
	st := f.svc.Status()
	assert.True(t, st.FocusIgnored)
	assert.Zero(t, st.Gestures.Accepted+st.Gestures.Rejected)
	assert.Empty(t, f.backend.Posted())

	_, ignored, err = f.svc.ToggleIgnoreFocused()
	require.NoError(t, err)
	assert.False(t, ignored)
	assert.Empty(t, f.store.Current().IgnoredApps)
}

func TestToggleIgnoreWithoutFocus(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.svc.ToggleIgnoreFocused()
	assert.ErrorIs(t, err, ErrNoFocusedApp)
}

func TestTapToClickDisablesGestures(t *testing.T) {
	f := newFixture(t)
	f.start(t)
	require.True(t, f.svc.GestureEnabled())

	on, err := f.svc.ToggleTapToClick()
	require.NoError(t, err)
	assert.True(t, on)
	assert.False(t, f.svc.GestureEnabled())

	f.tap(3)
	st := f.svc.Status()
	assert.False(t, st.GestureEnabled)
	assert.Zero(t, st.Gestures.Accepted)
	assert.Empty(t, f.backend.Posted())

	require.NoError(t, f.svc.ResetTapToClick())
	assert.True(t, f.svc.GestureEnabled())
}

func TestSettingsChangesApplyLive(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	require.NoError(t, f.store.Update(func(s *config.Settings) { s.MinimumFingers = 2 }))
	f.tap(2)

	assert.Eventually(t, func() bool { return len(f.backend.Posted()) == 2 }, time.Second, 5*time.Millisecond)
}

func TestRestartNowReinstallsHooks(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	require.NoError(t, f.svc.RestartNow())
	require.NoError(t, f.svc.RestartNow())

	assert.Eventually(t, func() bool { return f.svc.Status().Supervisor.Restarts == 2 }, time.Second, 5*time.Millisecond)
	assert.True(t, f.backend.Hooked())
	assert.Equal(t, 3, f.backend.Installs())
	assert.Equal(t, 1, f.pad.Subscribers())
}

func TestMissingPermissionIsDegraded(t *testing.T) {
	f := newFixture(t)
	f.backend.SetInstallError(
		errors.Join(platform.ErrHookUnavailable, errors.New("permission denied")),
		platform.Capability{ErrorMessage: "cannot open /dev/uinput", Instructions: "add yourself to the input group"},
	)
	f.start(t)

	st := f.svc.Status()
	assert.True(t, st.Running)
	assert.True(t, st.Supervisor.Degraded)
	assert.False(t, st.Supervisor.Hooked)
	assert.Equal(t, "cannot open /dev/uinput", st.Supervisor.Capability.ErrorMessage)
	assert.Equal(t, supervisor.ReasonHookRetry, st.Supervisor.PendingReason)
}

func TestWakeSchedulesRestart(t *testing.T) {
	f := newFixture(t)
	f.svc.opts.Delays = supervisor.NewDelays(false, true)
	f.start(t)

	f.backend.Wake()

	assert.Eventually(t, func() bool { return f.svc.Status().Supervisor.Restarts == 1 }, time.Second, 5*time.Millisecond)
	assert.True(t, f.backend.Hooked())
}

func TestStatusWhenStopped(t *testing.T) {
	f := newFixture(t)
	f.backend.SetFocus("firefox")

	st := f.svc.Status()
	assert.False(t, st.Running)
	assert.Equal(t, "fake", st.Backend)
	assert.Equal(t, "firefox", st.FocusedApp)
	assert.True(t, st.FocusKnown)
	assert.True(t, st.GestureEnabled)
}
