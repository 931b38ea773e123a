// Package tui renders the live registry status view for `slate top`.
package tui

import "github.com/charmbracelet/lipgloss"

// Adaptive palette so the view works on light and dark terminals.
var (
	colorActive   = lipgloss.AdaptiveColor{Light: "#2e7d32", Dark: "#66bb6a"}
	colorDegraded = lipgloss.AdaptiveColor{Light: "#e65100", Dark: "#ffa726"}
	colorError    = lipgloss.AdaptiveColor{Light: "#c62828", Dark: "#ef5350"}
	colorMuted    = lipgloss.AdaptiveColor{Light: "#757575", Dark: "#9e9e9e"}
	colorAccent   = lipgloss.AdaptiveColor{Light: "#1565c0", Dark: "#42a5f5"}
	colorBorder   = lipgloss.AdaptiveColor{Light: "#bdbdbd", Dark: "#616161"}
)

var (
	styleTitle    = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	styleHeader   = lipgloss.NewStyle().Bold(true).Foreground(colorMuted)
	styleActive   = lipgloss.NewStyle().Foreground(colorActive).Bold(true)
	styleDegraded = lipgloss.NewStyle().Foreground(colorDegraded).Bold(true)
	styleError    = lipgloss.NewStyle().Foreground(colorError).Bold(true)
	styleMuted    = lipgloss.NewStyle().Foreground(colorMuted)
	styleDim      = lipgloss.NewStyle().Faint(true)

	stylePane = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1)
)
