package ui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stigoleg/middleclick/internal/config"
	"github.com/stigoleg/middleclick/internal/platform"
	"github.com/stigoleg/middleclick/internal/service"
	"github.com/stigoleg/middleclick/internal/supervisor"
)

type fakeController struct {
	status     service.Status
	restarts   int
	restartErr error
	tapToClick bool
	ignored    bool
	subscribed int
	cancelled  int
}

func (c *fakeController) Status() service.Status {
	st := c.status
	st.Settings.TapToClick = c.tapToClick
	st.GestureEnabled = !c.tapToClick
	st.FocusIgnored = c.ignored
	return st
}

func (c *fakeController) RestartNow() error {
	if c.restartErr != nil {
		return c.restartErr
	}
	c.restarts++
	return nil
}

func (c *fakeController) ToggleTapToClick() (bool, error) {
	c.tapToClick = !c.tapToClick
	return c.tapToClick, nil
}

func (c *fakeController) ToggleIgnoreFocused() (string, bool, error) {
	if !c.status.FocusKnown {
		return "", false, service.ErrNoFocusedApp
	}
	c.ignored = !c.ignored
	return c.status.FocusedApp, c.ignored, nil
}

func (c *fakeController) Subscribe(func(config.Settings)) func() {
	c.subscribed++
	return func() { c.cancelled++ }
}

func newController() *fakeController {
	return &fakeController{status: service.Status{
		Running:    true,
		Backend:    "linux-evdev",
		Settings:   config.Default(),
		FocusedApp: "firefox",
		FocusKnown: true,
		Supervisor: supervisor.Status{Started: true, Hooked: true, Devices: 1},
	}}
}

func press(m Model, keys ...string) Model {
	for _, k := range keys {
		var msg tea.KeyMsg
		switch k {
		case "up":
			msg = tea.KeyMsg{Type: tea.KeyUp}
		case "down":
			msg = tea.KeyMsg{Type: tea.KeyDown}
		case "enter":
			msg = tea.KeyMsg{Type: tea.KeyEnter}
		case "esc":
			msg = tea.KeyMsg{Type: tea.KeyEsc}
		default:
			msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
		}
		m, _ = Update(msg, m)
	}
	return m
}

func TestNewModel(t *testing.T) {
	ctrl := newController()
	m := NewModel(ctrl)
	if m.State != stateMenu {
		t.Error("expected initial state to be stateMenu")
	}
	if m.Selected != 0 {
		t.Error("expected initial selected to be 0")
	}
	if ctrl.subscribed != 1 {
		t.Errorf("expected one settings subscription, got %d", ctrl.subscribed)
	}
	m.Close()
	if ctrl.cancelled != 1 {
		t.Error("expected Close to cancel the subscription")
	}
}

func TestMenuView(t *testing.T) {
	m := NewModel(newController())
	view := View(m)

	for _, want := range []string{
		"Listening",
		"Click with 3 Fingers",
		"Restart listeners",
		"Tap to click: off",
		"Ignore firefox",
		"Quit",
	} {
		if !strings.Contains(view, want) {
			t.Errorf("expected view to contain %q", want)
		}
	}

	foundCursor := false
	for _, line := range strings.Split(view, "\n") {
		if strings.Contains(line, "> Restart listeners") {
			foundCursor = true
			break
		}
	}
	if !foundCursor {
		t.Error("expected cursor to be at first option")
	}
}

func TestNavigation(t *testing.T) {
	tests := []struct {
		name  string
		keys  []string
		want  int
		state state
	}{
		{"up at top stays at top", []string{"up"}, 0, stateMenu},
		{"down moves selection", []string{"down"}, 1, stateMenu},
		{"down stops at bottom", []string{"down", "down", "down", "down", "down"}, itemCount - 1, stateMenu},
		{"j and k navigate", []string{"j", "j", "k"}, 1, stateMenu},
		{"h opens help", []string{"h"}, 0, stateHelp},
		{"esc closes help", []string{"?", "esc"}, 0, stateMenu},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := press(NewModel(newController()), tt.keys...)
			if m.Selected != tt.want {
				t.Errorf("Selected = %d, want %d", m.Selected, tt.want)
			}
			if m.State != tt.state {
				t.Errorf("State = %v, want %v", m.State, tt.state)
			}
		})
	}
}

func TestRestartShortcut(t *testing.T) {
	ctrl := newController()
	m := press(NewModel(ctrl), "r")
	if ctrl.restarts != 1 {
		t.Errorf("expected one restart, got %d", ctrl.restarts)
	}
	if m.Notice == "" {
		t.Error("expected a notice after restart")
	}

	ctrl.restartErr = service.ErrNotRunning
	m = press(m, "enter")
	if m.ErrorMessage != service.ErrNotRunning.Error() {
		t.Errorf("ErrorMessage = %q", m.ErrorMessage)
	}
}

func TestTapToClickToggle(t *testing.T) {
	ctrl := newController()
	m := press(NewModel(ctrl), "down", "enter")
	if !ctrl.tapToClick {
		t.Fatal("expected tap to click to be enabled")
	}
	view := View(m)
	if !strings.Contains(view, "Tap to click: on") {
		t.Error("expected menu to show tap to click on")
	}
	if !strings.Contains(view, "Click or Tap with 3 Fingers") {
		t.Error("expected mode summary to mention tap")
	}

	press(m, "t")
	if ctrl.tapToClick {
		t.Error("expected t to toggle tap to click off")
	}
}

func TestIgnoreFocused(t *testing.T) {
	ctrl := newController()
	m := press(NewModel(ctrl), "i")
	if !ctrl.ignored {
		t.Fatal("expected focused app to be ignored")
	}
	if !strings.Contains(View(m), "Stop ignoring firefox") {
		t.Error("expected menu to offer to stop ignoring")
	}

	ctrl.status.FocusKnown = false
	m = press(m, "i")
	if m.ErrorMessage != service.ErrNoFocusedApp.Error() {
		t.Errorf("ErrorMessage = %q", m.ErrorMessage)
	}
}

func TestDegradedView(t *testing.T) {
	ctrl := newController()
	ctrl.status.Supervisor = supervisor.Status{
		Started:  true,
		Degraded: true,
		Capability: platform.Capability{
			ErrorMessage: "cannot open /dev/uinput",
			Instructions: "sudo usermod -aG input $USER",
		},
		Pending:       true,
		PendingReason: supervisor.ReasonHookRetry,
	}
	view := View(NewModel(ctrl))

	for _, want := range []string{"Missing input permissions", "cannot open /dev/uinput", "usermod"} {
		if !strings.Contains(view, want) {
			t.Errorf("expected view to contain %q", want)
		}
	}
}

func TestErrorDisplay(t *testing.T) {
	m := NewModel(newController())
	m.ErrorMessage = "test error"
	if !strings.Contains(View(m), "test error") {
		t.Error("expected view to show error message")
	}
}

func TestSettingsMessageRefreshesStatus(t *testing.T) {
	ctrl := newController()
	m := NewModel(ctrl)
	s := config.Default()
	s.MinimumFingers = 4
	s.AllowMoreFingers = true

	m, cmd := Update(settingsMsg(s), m)
	if cmd == nil {
		t.Error("expected to keep waiting for settings")
	}
	if got := ModeSummary(m.Status.Settings); got != "Click with 4+ Fingers" {
		t.Errorf("ModeSummary = %q", got)
	}
}

func TestQuit(t *testing.T) {
	for _, k := range []string{"q", "ctrl+c"} {
		var msg tea.KeyMsg
		if k == "ctrl+c" {
			msg = tea.KeyMsg{Type: tea.KeyCtrlC}
		} else {
			msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
		}
		_, cmd := Update(msg, NewModel(newController()))
		if cmd == nil {
			t.Fatalf("%s: expected quit command", k)
		}
		if _, ok := cmd().(tea.QuitMsg); !ok {
			t.Errorf("%s: expected tea.QuitMsg", k)
		}
	}
}

func TestStoppedStatus(t *testing.T) {
	ctrl := newController()
	ctrl.status.Running = false
	if !strings.Contains(View(NewModel(ctrl)), "Stopped") {
		t.Error("expected stopped status")
	}
}
