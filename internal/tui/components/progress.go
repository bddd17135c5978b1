package components

import (
	"github.com/lugia19/claude-counter/internal/tui/theme"

	"github.com/charmbracelet/bubbles/progress"
)

// UsageBar renders a window's fill. It is blue below the warning
// threshold and red from it on; percent is clamped to 0..100.
func UsageBar(percent float64, warning bool, width int) string {
	t := theme.Active

	frac := percent / 100
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}

	color := t.Blue
	if warning {
		color = t.Red
	}

	bar := progress.New(
		progress.WithSolidFill(string(color)),
		progress.WithWidth(width),
		progress.WithoutPercentage(),
	)
	bar.EmptyColor = string(t.SurfaceBright)

	return bar.ViewAs(frac)
}
