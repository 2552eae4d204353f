package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/hazyhaar/chanlight/highlight"
)

var (
	colorPrimary = lipgloss.Color("#7C3AED")
	colorMuted   = lipgloss.Color("#9CA3AF")
	colorError   = lipgloss.Color("#EF4444")
	colorSuccess = lipgloss.Color("#10B981")
	colorDark    = lipgloss.Color("#1E293B")
	colorLight   = lipgloss.Color("#F8FAFC")
)

var (
	plainStyle   = lipgloss.NewStyle()
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorPrimary)
	headerStyle  = lipgloss.NewStyle().Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(colorMuted)
	italicStyle  = lipgloss.NewStyle().Foreground(colorMuted).Italic(true)
	cursorStyle  = lipgloss.NewStyle().Foreground(colorPrimary).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(colorError)
	successStyle = lipgloss.NewStyle().Foreground(colorSuccess)
	buttonStyle  = lipgloss.NewStyle().Padding(0, 1).Border(lipgloss.RoundedBorder()).BorderForeground(colorPrimary)
)

// swatch renders a color block.
func swatch(color string) string {
	return lipgloss.NewStyle().Background(lipgloss.Color(color)).Render("    ")
}

// pill renders name on its highlight color, with dark text on light
// colors and light text on dark ones.
func pill(name, color string) string {
	fg := colorLight
	if highlight.IsLight(color) {
		fg = colorDark
	}
	return lipgloss.NewStyle().
		Background(lipgloss.Color(color)).
		Foreground(fg).
		Padding(0, 1).
		Render(name)
}
