package tui

import "github.com/charmbracelet/lipgloss"

type theme struct {
	header      lipgloss.Style
	panel       lipgloss.Style
	user        lipgloss.Style
	bot         lipgloss.Style
	system      lipgloss.Style
	suggestion  lipgloss.Style
	status      lipgloss.Style
	errorStatus lipgloss.Style
	dialog      lipgloss.Style
	launcher    lipgloss.Style
	help        lipgloss.Style
}

func newTheme() theme {
	accent := lipgloss.Color("#4f46e5")
	mint := lipgloss.Color("#10b981")
	rose := lipgloss.Color("#f43f5e")
	muted := lipgloss.Color("#9ca3af")
	text := lipgloss.Color("#f9fafb")

	return theme{
		header: lipgloss.NewStyle().
			Foreground(text).
			Background(accent).
			Bold(true).
			Padding(0, 1),
		panel: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(accent).
			Padding(0, 1),
		user:   lipgloss.NewStyle().Foreground(mint).Bold(true),
		bot:    lipgloss.NewStyle().Foreground(accent).Bold(true),
		system: lipgloss.NewStyle().Foreground(muted).Italic(true),
		suggestion: lipgloss.NewStyle().
			Foreground(text).
			Background(lipgloss.Color("#312e81")).
			Padding(0, 1).
			MarginRight(1),
		status:      lipgloss.NewStyle().Foreground(mint),
		errorStatus: lipgloss.NewStyle().Foreground(rose).Bold(true),
		dialog: lipgloss.NewStyle().
			BorderStyle(lipgloss.ThickBorder()).
			BorderForeground(rose).
			Padding(0, 2),
		launcher: lipgloss.NewStyle().
			Foreground(text).
			Background(accent).
			Bold(true).
			Padding(0, 2),
		help: lipgloss.NewStyle().Foreground(muted),
	}
}
