// Package ui provides the terminal status interface for the middle click daemon.
package ui

import "github.com/charmbracelet/lipgloss"

// Colors defines the color scheme used throughout the application
type Colors struct {
	Subtle    lipgloss.AdaptiveColor
	Highlight lipgloss.AdaptiveColor
	Special   lipgloss.AdaptiveColor
	Warning   lipgloss.AdaptiveColor
	Error     lipgloss.AdaptiveColor
}

var defaultColors = Colors{
	Subtle:    lipgloss.AdaptiveColor{Light: "#666666", Dark: "#999999"},
	Highlight: lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"},
	Special:   lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"},
	Warning:   lipgloss.AdaptiveColor{Light: "#C28A00", Dark: "#F5C542"},
	Error:     lipgloss.AdaptiveColor{Light: "#FF0000", Dark: "#FF4040"},
}

// Style represents a collection of styles used in the application
type Style struct {
	Title          lipgloss.Style
	ActiveStatus   lipgloss.Style
	InactiveStatus lipgloss.Style
	DegradedStatus lipgloss.Style
	Selected       lipgloss.Style
	Unselected     lipgloss.Style
	Label          lipgloss.Style
	Value          lipgloss.Style
	Instructions   lipgloss.Style
	Help           lipgloss.Style
	Notice         lipgloss.Style
	Error          lipgloss.Style
}

// DefaultStyle returns the default style configuration
func DefaultStyle() Style {
	base := lipgloss.NewStyle().
		PaddingLeft(1).
		PaddingRight(1)

	return Style{
		Title: base.Bold(true).
			Foreground(defaultColors.Highlight),

		ActiveStatus: base.Bold(true).
			Foreground(defaultColors.Special),

		InactiveStatus: base.Foreground(defaultColors.Subtle),

		DegradedStatus: base.Bold(true).
			Foreground(defaultColors.Error),

		Selected: base.Bold(true).
			Foreground(defaultColors.Highlight),

		Unselected: base,

		Label: base.Foreground(defaultColors.Subtle).
			Width(16),

		Value: lipgloss.NewStyle(),

		Instructions: base.Border(lipgloss.RoundedBorder()).
			BorderForeground(defaultColors.Error).
			Padding(0, 1),

		Help: base.Foreground(defaultColors.Subtle),

		Notice: base.Foreground(defaultColors.Warning),

		Error: base.Foreground(defaultColors.Error),
	}
}

// Current holds the current style configuration
var Current = DefaultStyle()
