// Package tui provides the Bubble Tea surfaces of the punchlist CLI: the
// interactive pop-out checklist window and the history browser.
//
// Models never talk to the store or the relay directly. The pop-out
// drives a surface coordinator through the Controller interface and
// receives repaints through an Events bridge; the history browser is a
// read-only view over entries the caller already loaded.
package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/shiggityshwah/punchlist/surface"
)

// Color palette.
var (
	primaryColor = lipgloss.Color("#7C3AED") // Purple
	successColor = lipgloss.Color("#10B981") // Green
	warningColor = lipgloss.Color("#F59E0B") // Amber
	errorColor   = lipgloss.Color("#EF4444") // Red
	mutedColor   = lipgloss.Color("#6B7280") // Gray
)

// Styles for TUI components.
var (
	// TitleStyle for headers and titles.
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor)

	// LabelStyle for field labels.
	LabelStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	// ValueStyle for field values.
	ValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF"))

	// SuccessStyle for confirmed steps and healthy connections.
	SuccessStyle = lipgloss.NewStyle().
			Foreground(successColor)

	// WarningStyle for skipped steps and degraded connections.
	WarningStyle = lipgloss.NewStyle().
			Foreground(warningColor)

	// ErrorStyle for lost connections.
	ErrorStyle = lipgloss.NewStyle().
			Foreground(errorColor)

	// MutedStyle for untouched steps and secondary text.
	MutedStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	// CursorStyle for the selected row in full view.
	CursorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor)

	// BoxStyle for bordered containers such as the suggestion panel.
	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(mutedColor).
			Padding(0, 1)

	// NoticeStyle for transient notices.
	NoticeStyle = lipgloss.NewStyle().
			Foreground(warningColor).
			Italic(true)

	// HelpStyle for help text.
	HelpStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			MarginTop(1)
)

// ConnStyle returns the style for a connection state badge.
func ConnStyle(state surface.ConnState) lipgloss.Style {
	switch state {
	case surface.StateConnected:
		return SuccessStyle
	case surface.StateReconnecting, surface.StatePolling:
		return WarningStyle
	default:
		return ErrorStyle
	}
}
