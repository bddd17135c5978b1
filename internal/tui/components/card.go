// Package components provides the widgets the usage panel is built from.
package components

import (
	"github.com/lugia19/claude-counter/internal/tui/theme"

	"github.com/charmbracelet/lipgloss"
)

// Panel renders the bordered usage panel. innerWidth is the text width
// inside border and padding; active highlights the border while the
// panel is hovered or dragged.
func Panel(body string, innerWidth int, active bool) string {
	t := theme.Active

	if innerWidth < 10 {
		innerWidth = 10
	}

	border := t.Border
	if active {
		border = t.BorderAccent
	}

	style := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(border).
		Background(t.Surface).
		Width(innerWidth+2).
		Padding(0, 1)

	return style.Render(body)
}

// Tooltip renders the single-line hover hint shown next to the panel.
func Tooltip(text string) string {
	t := theme.Active
	return lipgloss.NewStyle().
		Foreground(t.TextPrimary).
		Background(t.SurfaceBright).
		Padding(0, 1).
		Render(text)
}
