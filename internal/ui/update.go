package ui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stigoleg/middleclick/internal/config"
)

const refreshInterval = time.Second

// tickMsg is sent when the status should be refreshed
type tickMsg time.Time

// settingsMsg carries a settings change pushed by the store.
type settingsMsg config.Settings

// Update handles messages and updates the model accordingly.
func Update(msg tea.Msg, m Model) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		m.Status = m.Controller.Status()
		return m, tick()

	case settingsMsg:
		m.Status = m.Controller.Status()
		m.Status.Settings = config.Settings(msg)
		m.Status.GestureEnabled = config.Settings(msg).GestureEnabled()
		return m, waitForSettings(m.settings)

	case tea.WindowSizeMsg:
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Quit) {
			return m, tea.Quit
		}
		if m.State == stateHelp {
			if key.Matches(msg, m.keys.Back, m.keys.ToggleHelp) {
				m.State = stateMenu
			}
			return m, nil
		}
		return updateMenu(msg, m)
	}

	return m, nil
}

func updateMenu(msg tea.KeyMsg, m Model) (Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.ToggleHelp):
		m.State = stateHelp
	case key.Matches(msg, m.keys.Up):
		if m.Selected > 0 {
			m.Selected--
		}
	case key.Matches(msg, m.keys.Down):
		if m.Selected < itemCount-1 {
			m.Selected++
		}
	case key.Matches(msg, m.keys.Select):
		return activate(m, m.Selected)
	case key.Matches(msg, m.keys.Restart):
		return activate(m, itemRestart)
	case key.Matches(msg, m.keys.TapToClick):
		return activate(m, itemTapToClick)
	case key.Matches(msg, m.keys.Ignore):
		return activate(m, itemIgnore)
	}
	return m, nil
}

func activate(m Model, item int) (Model, tea.Cmd) {
	m.ErrorMessage = ""
	m.Notice = ""

	switch item {
	case itemRestart:
		if err := m.Controller.RestartNow(); err != nil {
			m.ErrorMessage = err.Error()
			return m, nil
		}
		m.Notice = "Restarting listeners"
	case itemTapToClick:
		on, err := m.Controller.ToggleTapToClick()
		if err != nil {
			m.ErrorMessage = err.Error()
			return m, nil
		}
		if on {
			m.Notice = "Tap to click enabled, gesture off"
		} else {
			m.Notice = "Tap to click disabled, gesture on"
		}
	case itemIgnore:
		app, ignored, err := m.Controller.ToggleIgnoreFocused()
		if err != nil {
			m.ErrorMessage = err.Error()
			return m, nil
		}
		if ignored {
			m.Notice = fmt.Sprintf("Ignoring %s", app)
		} else {
			m.Notice = fmt.Sprintf("No longer ignoring %s", app)
		}
	case itemQuit:
		return m, tea.Quit
	default:
		m.ErrorMessage = "unknown menu item"
		return m, nil
	}
	m.Status = m.Controller.Status()
	return m, nil
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func waitForSettings(ch <-chan config.Settings) tea.Cmd {
	return func() tea.Msg {
		s, ok := <-ch
		if !ok {
			return nil
		}
		return settingsMsg(s)
	}
}
