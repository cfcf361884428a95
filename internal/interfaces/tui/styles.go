package tui

import "github.com/charmbracelet/lipgloss"

var (
	cText    = lipgloss.Color("#E6E6E6")
	cMuted   = lipgloss.Color("#8A8F98")
	cAccent  = lipgloss.Color("#9F7AEA")
	cSuccess = lipgloss.Color("#48BB78")
	cError   = lipgloss.Color("#F56565")
	cWarn    = lipgloss.Color("#ECC94B")

	appStyle     = lipgloss.NewStyle().Padding(1, 2)
	barStyle     = lipgloss.NewStyle().Foreground(cText).Bold(true)
	addressStyle = lipgloss.NewStyle().Foreground(cAccent).Bold(true)
	headingStyle = lipgloss.NewStyle().Foreground(cText).Bold(true).MarginTop(1)
	mutedStyle   = lipgloss.NewStyle().Foreground(cMuted)
	warnStyle    = lipgloss.NewStyle().
			Foreground(cWarn).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(cWarn).
			Padding(0, 1)
	errorLineStyle = lipgloss.NewStyle().Foreground(cError)
	successToast   = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), false, false, false, true).
			BorderForeground(cSuccess).
			PaddingLeft(1)
	errorToast = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), false, false, false, true).
			BorderForeground(cError).
			PaddingLeft(1)
	focusedLabel = lipgloss.NewStyle().Foreground(cAccent).Bold(true)
	hotkeyStyle  = lipgloss.NewStyle().Foreground(cMuted)
	hotkeyKey    = lipgloss.NewStyle().Foreground(cAccent).Bold(true)
)
