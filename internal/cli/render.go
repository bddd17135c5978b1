package cli

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	colorBorder  = lipgloss.Color("#282726")
	colorTextDim = lipgloss.Color("#575653")
	colorText    = lipgloss.Color("#FFFCF0")
	colorAccent  = lipgloss.Color("#3AA99F")
	colorRed     = lipgloss.Color("#D14D41")
	colorBlue    = lipgloss.Color("#4385BE")

	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(colorText)
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	cellStyle   = lipgloss.NewStyle().Foreground(colorText)
	tokenStyle  = lipgloss.NewStyle().Foreground(colorBlue)
	warnStyle   = lipgloss.NewStyle().Foreground(colorRed)
	dimStyle    = lipgloss.NewStyle().Foreground(colorTextDim)
)

// Table is a bordered text table. The first column is left-aligned and the
// rest are right-aligned, since they hold numbers.
type Table struct {
	Headers []string
	Rows    [][]string
}

// RenderTitle renders a centered title in a rounded box.
func RenderTitle(title string) string {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colorBorder).
		Width(55).
		Align(lipgloss.Center).
		Padding(0, 1).
		Render(titleStyle.Render(title))
}

// RenderTable renders t with a header row, or "" when t has no content.
func RenderTable(t Table) string {
	cols := len(t.Headers)
	for _, row := range t.Rows {
		cols = max(cols, len(row))
	}
	if cols == 0 {
		return ""
	}

	widths := make([]int, cols)
	for _, row := range append([][]string{t.Headers}, t.Rows...) {
		for i, cell := range row {
			widths[i] = max(widths[i], lipgloss.Width(cell))
		}
	}

	var b strings.Builder
	rule := func(left, mid, right string) {
		parts := make([]string, cols)
		for i, w := range widths {
			parts[i] = strings.Repeat("─", w+2)
		}
		b.WriteString(dimStyle.Render(left + strings.Join(parts, mid) + right))
		b.WriteByte('\n')
	}
	line := func(row []string, style lipgloss.Style) {
		bar := dimStyle.Render("│")
		b.WriteString(bar)
		for i, w := range widths {
			cell := ""
			if i < len(row) {
				cell = row[i]
			}
			pad := strings.Repeat(" ", w-lipgloss.Width(cell))
			if i == 0 {
				cell += pad
			} else {
				cell = pad + cell
			}
			b.WriteString(style.Render(" " + cell + " "))
			b.WriteString(bar)
		}
		b.WriteByte('\n')
	}

	rule("╭", "┬", "╮")
	if len(t.Headers) > 0 {
		line(t.Headers, headerStyle)
		rule("├", "┼", "┤")
	}
	for _, row := range t.Rows {
		line(row, cellStyle)
	}
	rule("╰", "┴", "╯")
	return b.String()
}

// RenderUsageBar renders a window's fill as a text bar: blue while under
// the warning threshold, red once it is reached.
func RenderUsageBar(percent float64, warning bool, width int) string {
	if width <= 0 {
		return ""
	}
	filled := int(min(max(percent/100, 0), 1) * float64(width))
	style := tokenStyle
	if warning {
		style = warnStyle
	}
	return style.Render(strings.Repeat("█", filled)) + dimStyle.Render(strings.Repeat("░", width-filled))
}
