package cmd

import "github.com/charmbracelet/lipgloss"

var (
	colorOK    = lipgloss.Color("#10B981")
	colorWarn  = lipgloss.Color("#F59E0B")
	colorError = lipgloss.Color("#EF4444")
	colorMuted = lipgloss.Color("#6B7280")

	titleStyle = lipgloss.NewStyle().Bold(true)
	okStyle    = lipgloss.NewStyle().Foreground(colorOK).Bold(true)
	warnStyle  = lipgloss.NewStyle().Foreground(colorWarn).Bold(true)
	errorStyle = lipgloss.NewStyle().Foreground(colorError).Bold(true)
	mutedStyle = lipgloss.NewStyle().Foreground(colorMuted)
)
