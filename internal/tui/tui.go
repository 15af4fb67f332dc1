// Package tui renders the flight board as a full-screen terminal table.
//
// Layout:
//
//	+-----------------------------------------------------------+
//	| flight-display  51.470, -0.450  r=100 km                  |
//	|  CALLSIGN  AIRLINE  A/C  ROUTE  ALT ft  SPD kt  HDG  DIST |
//	|  ...                                                      |
//	| Updated: 14:05:09 | Flights: 23 | Connected               |
//	+-----------------------------------------------------------+
package tui

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/unklstewy/flight-display/internal/display"
	"github.com/unklstewy/flight-display/internal/poller"
)

// DrainInterval is how often the UI pulls results from the poller.
const DrainInterval = 100 * time.Millisecond

// Drainer delivers queued poll results to handlers.
type Drainer interface {
	Drain(h poller.Handlers) int
}

// Theme holds the TUI colors.
type Theme struct {
	Primary   lipgloss.AdaptiveColor
	Secondary lipgloss.AdaptiveColor
	Highlight lipgloss.AdaptiveColor
	Border    lipgloss.AdaptiveColor
	Green     lipgloss.AdaptiveColor
	Red       lipgloss.AdaptiveColor
}

// Color is the default theme.
var Color = Theme{
	Primary:   lipgloss.AdaptiveColor{Light: "#000000", Dark: "#FFFFFF"},
	Secondary: lipgloss.AdaptiveColor{Light: "#969B86", Dark: "#696969"},
	Highlight: lipgloss.AdaptiveColor{Light: "#1f6feb", Dark: "#58a6ff"},
	Border:    lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"},
	Green:     lipgloss.AdaptiveColor{Light: "#1a7f37", Dark: "#3fb950"},
	Red:       lipgloss.AdaptiveColor{Light: "#cf222e", Dark: "#f85149"},
}

var columnWidths = []int{10, 8, 6, 16, 9, 7, 5, 8}

type drainMsg time.Time

func drainTick() tea.Cmd {
	return tea.Tick(DrainInterval, func(t time.Time) tea.Msg {
		return drainMsg(t)
	})
}

// Model implements tea.Model over a board fed by a poller.
type Model struct {
	source Drainer
	board  *display.Board
	title  string
	rows   int

	width  int
	height int
	table  table.Model
	styles table.Styles
}

// New creates the TUI model. title is shown above the table.
func New(source Drainer, board *display.Board, title string) *Model {
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(Color.Border).
		BorderBottom(true).
		Bold(true)
	styles.Selected = lipgloss.NewStyle()

	columns := make([]table.Column, len(display.Columns))
	for i, title := range display.Columns {
		columns[i] = table.Column{Title: title, Width: columnWidths[i]}
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithRows([]table.Row{}),
		table.WithFocused(false),
		table.WithHeight(20),
		table.WithStyles(styles),
	)

	return &Model{
		source: source,
		board:  board,
		title:  title,
		table:  t,
		styles: styles,
	}
}

// Init starts the drain ticker.
func (m *Model) Init() tea.Cmd {
	return drainTick()
}

// Update handles window, key and drain messages.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) { //nolint:ireturn // required by interface
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		// title, header border and status line
		m.table.SetHeight(max(3, msg.Height-5))

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "esc":
			if m.table.Focused() {
				m.styles.Selected = lipgloss.NewStyle()
				m.table.SetStyles(m.styles)
				m.table.Blur()
			} else {
				m.styles.Selected = lipgloss.NewStyle().Background(Color.Highlight)
				m.table.SetStyles(m.styles)
				m.table.Focus()
			}
		case "up", "k":
			m.table.MoveUp(1)
		case "down", "j":
			m.table.MoveDown(1)
		}

	case drainMsg:
		if m.source.Drain(m.board.Handlers()) > 0 {
			m.refresh()
		}
		return m, drainTick()
	}

	return m, nil
}

// refresh copies the board into the table.
func (m *Model) refresh() {
	snap := m.board.Snapshot()
	rows := make([]table.Row, len(snap.Flights))
	for i, f := range snap.Flights {
		rows[i] = table.Row(display.Row(f))
	}
	m.table.SetRows(rows)
	m.rows = len(rows)
}

// View renders title, table and status line.
func (m *Model) View() string {
	snap := m.board.Snapshot()

	title := lipgloss.NewStyle().Bold(true).Foreground(Color.Primary).Render(m.title)

	statusColor := Color.Red
	if snap.Connected {
		statusColor = Color.Green
	}
	status := lipgloss.NewStyle().Foreground(statusColor).Render(display.StatusLine(snap))

	return lipgloss.JoinVertical(lipgloss.Left,
		title,
		m.table.View(),
		status,
	)
}

// Rows returns the number of table rows currently shown.
func (m *Model) Rows() int {
	return m.rows
}

// Run shows the TUI until the user quits or ctx is done.
func Run(ctx context.Context, source Drainer, board *display.Board, title string) error {
	p := tea.NewProgram(New(source, board, title), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}
