package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/stigoleg/middleclick/internal/config"
	"github.com/stigoleg/middleclick/internal/service"
)

// View renders the current state of the model to a string.
func View(m Model) string {
	if m.State == stateHelp {
		return helpView(m)
	}
	return menuView(m)
}

// ModeSummary describes how a middle click is produced.
func ModeSummary(s config.Settings) string {
	mode := "Click"
	if s.TapToClick {
		mode = "Click or Tap"
	}
	more := ""
	if s.AllowMoreFingers {
		more = "+"
	}
	return fmt.Sprintf("%s with %d%s Fingers", mode, s.MinimumFingers, more)
}

func row(label, value string) string {
	return Current.Label.Render(label) + Current.Value.Render(value) + "\n"
}

func statusLine(st service.Status) string {
	switch {
	case !st.Running:
		return Current.InactiveStatus.Render("Stopped")
	case st.Supervisor.Degraded:
		return Current.DegradedStatus.Render("Missing input permissions")
	case st.Supervisor.Pending:
		return Current.ActiveStatus.Render("Listening (restart pending)")
	default:
		return Current.ActiveStatus.Render("Listening")
	}
}

func focusLine(st service.Status) string {
	if !st.FocusKnown {
		return "unknown"
	}
	if st.FocusIgnored {
		return st.FocusedApp + " (ignored)"
	}
	return st.FocusedApp
}

func menuLabels(st service.Status) []string {
	tap := "off"
	if st.Settings.TapToClick {
		tap = "on"
	}
	ignore := "Ignore focused app"
	if st.FocusKnown {
		if st.FocusIgnored {
			ignore = "Stop ignoring " + st.FocusedApp
		} else {
			ignore = "Ignore " + st.FocusedApp
		}
	}
	return []string{
		"Restart listeners",
		"Tap to click: " + tap,
		ignore,
		"Quit",
	}
}

func menuView(m Model) string {
	st := m.Status
	var b strings.Builder

	b.WriteString(Current.Title.Render("MiddleClick"))
	b.WriteString("\n\n")
	b.WriteString(statusLine(st))
	b.WriteString("\n\n")

	b.WriteString(row("Mode", ModeSummary(st.Settings)))
	b.WriteString(row("Backend", st.Backend))
	b.WriteString(row("Devices", fmt.Sprintf("%d", st.Supervisor.Devices)))
	b.WriteString(row("Focused app", focusLine(st)))
	b.WriteString(row("Gestures", fmt.Sprintf("%d accepted, %d rejected", st.Gestures.Accepted, st.Gestures.Rejected)))
	b.WriteString(row("Clicks", fmt.Sprintf("%d rewritten, %d synthesized", st.Rewrites, st.Synthetic)))
	if st.Supervisor.Restarts > 0 {
		b.WriteString(row("Restarts", fmt.Sprintf("%d, last %s", st.Supervisor.Restarts, st.Supervisor.LastRestart.Format(time.TimeOnly))))
	}
	if st.Supervisor.Pending {
		b.WriteString(row("Pending", fmt.Sprintf("%s at %s", st.Supervisor.PendingReason, st.Supervisor.PendingAt.Format(time.TimeOnly))))
	}

	if st.Supervisor.Degraded {
		b.WriteString("\n")
		msg := st.Supervisor.Capability.ErrorMessage
		if msg == "" {
			msg = st.Supervisor.LastError
		}
		b.WriteString(Current.Error.Render(msg))
		if st.Supervisor.Capability.Instructions != "" {
			b.WriteString("\n")
			b.WriteString(Current.Instructions.Render(st.Supervisor.Capability.Instructions))
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	for i, label := range menuLabels(st) {
		if i == m.Selected {
			b.WriteString(Current.Selected.Render("> " + label))
		} else {
			b.WriteString(Current.Unselected.Render("  " + label))
		}
		b.WriteString("\n")
	}

	if m.Notice != "" {
		b.WriteString("\n" + Current.Notice.Render(m.Notice))
	}
	if m.ErrorMessage != "" {
		b.WriteString("\n" + Current.Error.Render(m.ErrorMessage))
	}

	b.WriteString("\n\n" + m.help.View(m.keys.ForState(stateMenu)))
	return b.String()
}

func helpView(m Model) string {
	help := `MiddleClick Help

Rest the configured number of fingers on the touchpad and click, or tap
and lift them without moving, to produce a middle click.

Usage:
  middleclick [flags]
  middleclick config
  middleclick ignore add|remove <app-id>

Flags:
  -c, --config string       Settings file
      --headless            Run without this interface
  -d, --daemon              Detach and run in the background
      --fingers int         Number of fingers in the gesture
      --tap-to-click        Rely on the touchpad's tap-to-click instead
      --fast-restart        Restart listeners 2s after wake
  -v, --verbose             Debug logging

Keys:
  ↑/k, ↓/j  : Navigate menu
  Enter      : Select option
  r          : Restart listeners
  t          : Toggle tap to click
  i          : Ignore the focused app
  h/?        : Show this help
  q          : Quit`

	h := m.help
	h.ShowAll = true
	return Current.Help.Render(help) + "\n\n" + h.View(m.keys.ForState(stateHelp))
}
