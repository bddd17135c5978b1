// Package tui provides the Bubble Tea usage panel: a small draggable box
// showing the last counting pass and the active window's fill.
package tui

import (
	"strings"
	"time"

	"github.com/lugia19/claude-counter/internal/cli"
	"github.com/lugia19/claude-counter/internal/estimator"
	"github.com/lugia19/claude-counter/internal/tui/components"
	"github.com/lugia19/claude-counter/internal/tui/theme"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// SnapshotMsg carries a published estimator snapshot.
type SnapshotMsg struct {
	Snapshot estimator.Snapshot
}

// ThemeMsg switches the active theme, e.g. after a config reload.
type ThemeMsg struct {
	Name string
}

// ErrMsg reports a background failure in the status bar.
type ErrMsg struct {
	Err error
}

type snapshotsClosedMsg struct{}

type tickMsg struct{}

const (
	panelInner = 30 // text columns inside the panel
	edgeMargin = 2  // initial distance from the bottom-right corner
)

// App is the root Bubble Tea model.
type App struct {
	snap  estimator.Snapshot
	snaps <-chan estimator.Snapshot
	now   func() time.Time

	width  int
	height int

	// Panel placement, top-left corner in cells.
	x, y   int
	placed bool

	dragging     bool
	grabX, grabY int
	hover        bool

	status string
}

// NewApp returns a panel showing initial and following snaps.
func NewApp(initial estimator.Snapshot, snaps <-chan estimator.Snapshot) App {
	return App{snap: initial, snaps: snaps, now: time.Now}
}

// Init implements tea.Model.
func (a App) Init() tea.Cmd {
	return tea.Batch(waitForSnapshot(a.snaps), tickCmd())
}

// Update implements tea.Model.
func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		if !a.placed {
			a.placeDefault()
		}
		a.clamp()
		return a, nil

	case tea.MouseMsg:
		return a.updateMouse(msg), nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return a, tea.Quit
		case "r":
			a.placeDefault()
		}
		return a, nil

	case SnapshotMsg:
		a.snap = msg.Snapshot
		a.status = ""
		return a, waitForSnapshot(a.snaps)

	case snapshotsClosedMsg:
		a.status = "estimator stopped"
		return a, nil

	case ThemeMsg:
		theme.SetActive(msg.Name)
		return a, nil

	case ErrMsg:
		if msg.Err != nil {
			a.status = msg.Err.Error()
		}
		return a, nil

	case tickMsg:
		// Re-render so the reset countdown stays current.
		return a, tickCmd()
	}

	return a, nil
}

func (a App) updateMouse(msg tea.MouseMsg) App {
	switch msg.Action {
	case tea.MouseActionPress:
		if msg.Button == tea.MouseButtonLeft && a.inside(msg.X, msg.Y) {
			a.dragging = true
			a.grabX = msg.X - a.x
			a.grabY = msg.Y - a.y
		}
	case tea.MouseActionMotion:
		if a.dragging {
			a.x = msg.X - a.grabX
			a.y = msg.Y - a.grabY
			a.clamp()
		}
		a.hover = a.inside(msg.X, msg.Y)
	case tea.MouseActionRelease:
		a.dragging = false
		a.hover = a.inside(msg.X, msg.Y)
	}
	return a
}

// panelSize returns the rendered panel's width and height in cells.
func (a App) panelSize() (int, int) {
	p := a.renderPanel()
	return lipgloss.Width(p), lipgloss.Height(p)
}

func (a App) inside(x, y int) bool {
	w, h := a.panelSize()
	return x >= a.x && x < a.x+w && y >= a.y && y < a.y+h
}

// canvasHeight excludes the status bar row.
func (a App) canvasHeight() int {
	if a.height < 1 {
		return 0
	}
	return a.height - 1
}

func (a *App) placeDefault() {
	w, h := a.panelSize()
	a.x = a.width - w - edgeMargin
	a.y = a.canvasHeight() - h - edgeMargin/2
	a.placed = true
	a.clamp()
}

// clamp keeps the panel fully on screen when the screen is large enough.
func (a *App) clamp() {
	w, h := a.panelSize()
	maxX := a.width - w
	maxY := a.canvasHeight() - h
	a.x = min(max(0, a.x), max(0, maxX))
	a.y = min(max(0, a.y), max(0, maxY))
}

// Position returns the panel's top-left cell.
func (a App) Position() (int, int) {
	return a.x, a.y
}

func (a App) renderPanel() string {
	t := theme.Active
	s := a.snap

	lastStyle := lipgloss.NewStyle().Foreground(t.TextPrimary).Background(t.Surface)
	metaStyle := lipgloss.NewStyle().Foreground(t.TextMuted).Background(t.Surface)

	meta := truncate(s.Model+" · resets in "+cli.FormatCountdown(s.ResetAt, a.clock()), panelInner)
	body := lastStyle.Render(cli.FormatLast(s.Last)) + "\n" +
		components.UsageBar(s.Percent, s.Warning, panelInner) + "\n" +
		metaStyle.Render(meta)

	return components.Panel(body, panelInner, a.hover || a.dragging)
}

func (a App) clock() time.Time {
	if a.now == nil {
		return time.Now()
	}
	return a.now()
}

// Tooltip returns the hover text for the current snapshot.
func (a App) Tooltip() string {
	return cli.FormatUsage(a.snap.Total, a.snap.Limit, a.snap.Percent)
}

// View implements tea.Model.
func (a App) View() string {
	if a.width == 0 || a.height == 0 {
		return ""
	}

	rows := make([]string, a.canvasHeight())
	panel := strings.Split(a.renderPanel(), "\n")
	for i, line := range panel {
		if r := a.y + i; r >= 0 && r < len(rows) {
			rows[r] = strings.Repeat(" ", a.x) + line
		}
	}

	if a.hover || a.dragging {
		tip := components.Tooltip(a.Tooltip())
		tw := lipgloss.Width(tip)
		pw := lipgloss.Width(panel[0])
		tx := min(max(0, a.x+(pw-tw)/2), max(0, a.width-tw))
		ty := a.y - 1
		if ty < 0 {
			ty = a.y + len(panel)
		}
		if ty >= 0 && ty < len(rows) {
			rows[ty] = strings.Repeat(" ", tx) + tip
		}
	}

	right := a.status
	if right == "" {
		right = a.snap.Model
	}
	return strings.Join(rows, "\n") + "\n" + components.RenderStatusBar(a.width, right)
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	if limit <= 1 {
		return string(r[:limit])
	}
	return string(r[:limit-1]) + "…"
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(time.Time) tea.Msg {
		return tickMsg{}
	})
}

// waitForSnapshot blocks until the estimator publishes again.
func waitForSnapshot(snaps <-chan estimator.Snapshot) tea.Cmd {
	if snaps == nil {
		return nil
	}
	return func() tea.Msg {
		s, ok := <-snaps
		if !ok {
			return snapshotsClosedMsg{}
		}
		return SnapshotMsg{Snapshot: s}
	}
}
