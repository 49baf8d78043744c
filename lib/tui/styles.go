package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/go-wlan/go-wlan/lib/session"
	"github.com/go-wlan/go-wlan/lib/wlan"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#5A56E0")).
			Padding(0, 1)

	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#8A8A8A"))
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFFFFF")).Background(lipgloss.Color("#3C3C3C"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#6C6C6C"))
	okStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575"))
	warnStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#E5C07B"))
	errStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#E06C75"))

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#5A56E0")).
			Padding(0, 1)
)

func resultStyle(r wlan.Result) lipgloss.Style {
	switch {
	case r.Succeeded():
		return okStyle
	case r == wlan.ResultCancelled || r == wlan.ResultAborted:
		return warnStyle
	default:
		return errStyle
	}
}

func stateStyle(k session.Kind) lipgloss.Style {
	switch k {
	case session.KindJoined:
		return okStyle
	case session.KindJoining:
		return warnStyle
	case session.KindStopped:
		return dimStyle
	default:
		return lipgloss.NewStyle()
	}
}
