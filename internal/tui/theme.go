package tui

import "github.com/charmbracelet/lipgloss"

type uiTheme struct {
	title      lipgloss.Style
	section    lipgloss.Style
	label      lipgloss.Style
	focused    lipgloss.Style
	output     lipgloss.Style
	toast      lipgloss.Style
	toastError lipgloss.Style
	prompt     lipgloss.Style
	live       lipgloss.Style
	muted      lipgloss.Style
}

func newTheme() uiTheme {
	accent := lipgloss.Color("#01cdfe")
	ok := lipgloss.Color("#05ffa1")
	bad := lipgloss.Color("#ff5f87")
	text := lipgloss.Color("#f3f3ff")
	muted := lipgloss.Color("#9ca3d8")

	return uiTheme{
		title: lipgloss.NewStyle().
			Foreground(text).
			Background(lipgloss.Color("#1b0f35")).
			Bold(true).
			Padding(0, 1),
		section: lipgloss.NewStyle().Foreground(accent).Bold(true).MarginTop(1),
		label:   lipgloss.NewStyle().Foreground(muted).Width(11),
		focused: lipgloss.NewStyle().Foreground(accent).Bold(true).Width(11),
		output: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(accent).
			Padding(0, 1),
		toast: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#000000")).
			Background(ok).
			Padding(0, 1),
		toastError: lipgloss.NewStyle().
			Foreground(text).
			Background(bad).
			Padding(0, 1),
		prompt: lipgloss.NewStyle().
			BorderStyle(lipgloss.DoubleBorder()).
			BorderForeground(bad).
			Padding(0, 2),
		live:  lipgloss.NewStyle().Foreground(ok),
		muted: lipgloss.NewStyle().Foreground(muted),
	}
}
