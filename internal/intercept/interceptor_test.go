package intercept

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stigoleg/middleclick/internal/gesture"
	"github.com/stigoleg/middleclick/internal/input"
	"github.com/stigoleg/middleclick/internal/runloop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type posted struct {
	button input.Button
	action input.Action
}

type fakePoster struct {
	events []posted
	failOn int
}

func (p *fakePoster) Post(b input.Button, a input.Action) error {
	p.events = append(p.events, posted{b, a})
	if p.failOn > 0 && len(p.events) == p.failOn {
		return errors.New("post failed")
	}
	return nil
}

var (
	now        = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	leftDown   = input.ButtonEvent{Button: input.ButtonLeft, Action: input.Down}
	leftUp     = input.ButtonEvent{Button: input.ButtonLeft, Action: input.Up}
	rightDown  = input.ButtonEvent{Button: input.ButtonRight, Action: input.Down}
	rightUp    = input.ButtonEvent{Button: input.ButtonRight, Action: input.Up}
	middleDown = input.ButtonEvent{Button: input.ButtonMiddle, Action: input.Down}
	middleUp   = input.ButtonEvent{Button: input.ButtonMiddle, Action: input.Up}
)

func newInterceptor(focus string, ignored ...string) (*Interceptor, *gesture.State, *fakePoster) {
	state := gesture.NewState()
	filter := gesture.NewIgnoreFilter(ignored, func() (string, bool) { return focus, focus != "" })
	poster := &fakePoster{}
	return New(state, filter, poster, WithClock(func() time.Time { return now })), state, poster
}

func TestHandlePassesThroughWhenNotHeld(t *testing.T) {
	i, state, _ := newInterceptor("")

	for _, ev := range []input.ButtonEvent{leftDown, leftUp, rightDown, rightUp} {
		assert.Equal(t, ev, i.Handle(ev))
	}
	assert.False(t, state.SyntheticPressInFlight)
	_, ok := state.LastNaturalMiddleClick()
	assert.False(t, ok)
}

func TestHandleRewritesDownAndMatchingUp(t *testing.T) {
	tests := []struct {
		name string
		down input.ButtonEvent
		up   input.ButtonEvent
	}{
		{"left", leftDown, leftUp},
		{"right", rightDown, rightUp},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			i, state, poster := newInterceptor("")
			state.QualifyingFingersHeld = true

			assert.Equal(t, middleDown, i.Handle(tt.down))
			assert.True(t, state.SyntheticPressInFlight)
			assert.False(t, state.QualifyingFingersHeld)
			last, ok := state.LastNaturalMiddleClick()
			require.True(t, ok)
			assert.Equal(t, now, last)

			assert.Equal(t, middleUp, i.Handle(tt.up))
			assert.False(t, state.SyntheticPressInFlight)

			// The next press is not rewritten.
			assert.Equal(t, tt.down, i.Handle(tt.down))
			assert.Empty(t, poster.events, "rewriting never posts new events")

			rewrites, _ := i.Counts()
			assert.Equal(t, uint64(1), rewrites)
		})
	}
}

func TestHandleIgnoresMiddleButton(t *testing.T) {
	i, state, _ := newInterceptor("")
	state.QualifyingFingersHeld = true

	assert.Equal(t, middleDown, i.Handle(middleDown))
	assert.True(t, state.QualifyingFingersHeld)
	assert.False(t, state.SyntheticPressInFlight)
}

func TestHandlePassesThroughForIgnoredApp(t *testing.T) {
	i, state, _ := newInterceptor("org.blender.Blender", "org.blender.Blender")
	state.QualifyingFingersHeld = true

	assert.Equal(t, leftDown, i.Handle(leftDown))
	assert.True(t, state.QualifyingFingersHeld)
	assert.False(t, state.SyntheticPressInFlight)
}

func TestPostSyntheticClick(t *testing.T) {
	i, state, poster := newInterceptor("")
	state.QualifyingFingersHeld = true

	require.NoError(t, i.PostSyntheticClick())
	assert.Equal(t, []posted{
		{input.ButtonMiddle, input.Down},
		{input.ButtonMiddle, input.Up},
	}, poster.events)
	assert.True(t, state.QualifyingFingersHeld)
	assert.False(t, state.SyntheticPressInFlight)
	_, synthetic := i.Counts()
	assert.Equal(t, uint64(1), synthetic)
}

func TestPostSyntheticClickError(t *testing.T) {
	i, _, poster := newInterceptor("")
	poster.failOn = 1

	err := i.PostSyntheticClick()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "middle down")
	assert.Len(t, poster.events, 1, "up is not posted after a failed down")

	none := New(gesture.NewState(), nil, nil)
	assert.Error(t, none.PostSyntheticClick())
}

func TestOnLoop(t *testing.T) {
	l := runloop.New()
	l.Start(context.Background())
	defer func() {
		l.Stop()
		l.Wait()
	}()

	i, state, _ := newInterceptor("")
	filter := i.OnLoop(l, time.Second)

	require.NoError(t, l.Do(context.Background(), func() { state.QualifyingFingersHeld = true }))
	assert.Equal(t, middleDown, filter(leftDown))
	assert.Equal(t, middleUp, filter(leftUp))
}

func TestOnLoopTimeoutPassesThrough(t *testing.T) {
	l := runloop.New()
	l.Start(context.Background())
	release := make(chan struct{})
	defer func() {
		close(release)
		l.Stop()
		l.Wait()
	}()

	i, state, _ := newInterceptor("")
	require.NoError(t, l.Do(context.Background(), func() { state.QualifyingFingersHeld = true }))
	l.Post(func() { <-release })

	filter := i.OnLoop(l, 10*time.Millisecond)
	assert.Equal(t, leftDown, filter(leftDown))
}
