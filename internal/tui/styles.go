package tui

import "github.com/charmbracelet/lipgloss"

// Dracula palette.
const (
	colorForeground = "#F8F8F2"
	colorCyan       = "#8BE9FD"
	colorGreen      = "#50FA7B"
	colorOrange     = "#FFB86C"
	colorPink       = "#FF79C6"
	colorPurple     = "#BD93F9"
	colorRed        = "#FF5555"
	colorComment    = "#6272A4"
)

type styles struct {
	title, live, offline, stale, label, muted, gain, loss, warn, help, panel, modal lipgloss.Style
}

func newStyles() styles {
	return styles{
		title:   lipgloss.NewStyle().Foreground(lipgloss.Color(colorPink)).Bold(true),
		live:    lipgloss.NewStyle().Foreground(lipgloss.Color(colorGreen)).Bold(true),
		offline: lipgloss.NewStyle().Foreground(lipgloss.Color(colorRed)).Bold(true),
		stale:   lipgloss.NewStyle().Foreground(lipgloss.Color(colorOrange)),
		label:   lipgloss.NewStyle().Foreground(lipgloss.Color(colorCyan)),
		muted:   lipgloss.NewStyle().Foreground(lipgloss.Color(colorComment)),
		gain:    lipgloss.NewStyle().Foreground(lipgloss.Color(colorGreen)),
		loss:    lipgloss.NewStyle().Foreground(lipgloss.Color(colorRed)),
		warn:    lipgloss.NewStyle().Foreground(lipgloss.Color(colorOrange)).Bold(true),
		help:    lipgloss.NewStyle().Foreground(lipgloss.Color(colorComment)),
		panel: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(colorPurple)).
			Foreground(lipgloss.Color(colorForeground)).
			Padding(0, 1),
		modal: lipgloss.NewStyle().
			Border(lipgloss.DoubleBorder()).
			BorderForeground(lipgloss.Color(colorCyan)).
			Padding(0, 1),
	}
}
