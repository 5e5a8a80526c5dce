package ui

import (
	"github.com/charmbracelet/bubbles/help"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stigoleg/middleclick/internal/config"
	"github.com/stigoleg/middleclick/internal/service"
)

// state represents the different states of the TUI.
type state int

const (
	stateMenu state = iota
	stateHelp
)

// Menu entries in display order.
const (
	itemRestart = iota
	itemTapToClick
	itemIgnore
	itemQuit
	itemCount
)

// Controller is the part of the service the UI drives.
type Controller interface {
	Status() service.Status
	RestartNow() error
	ToggleTapToClick() (bool, error)
	ToggleIgnoreFocused() (string, bool, error)
	Subscribe(fn func(config.Settings)) (cancel func())
}

// Model holds the current state of the UI.
type Model struct {
	State        state
	Selected     int
	Controller   Controller
	Status       service.Status
	ErrorMessage string
	Notice       string

	keys        KeyMap
	help        help.Model
	settings    chan config.Settings
	unsubscribe func()
}

// NewModel returns the initial model for ctrl. Settings changes made
// anywhere are pushed to the model while it is alive.
func NewModel(ctrl Controller) Model {
	ch := make(chan config.Settings, 8)
	cancel := ctrl.Subscribe(func(s config.Settings) {
		select {
		case ch <- s:
		default:
		}
	})
	return Model{
		State:       stateMenu,
		Controller:  ctrl,
		Status:      ctrl.Status(),
		keys:        DefaultKeys(),
		help:        NewHelpModel(),
		settings:    ch,
		unsubscribe: cancel,
	}
}

// Close stops the settings subscription.
func (m Model) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
}

// Init implements tea.Model
func (m Model) Init() tea.Cmd {
	return tea.Batch(tick(), waitForSettings(m.settings))
}

// Update implements tea.Model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	newModel, cmd := Update(msg, m)
	return newModel, cmd
}

// View implements tea.Model
func (m Model) View() string {
	return View(m)
}
