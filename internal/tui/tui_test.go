package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unklstewy/flight-display/internal/display"
	"github.com/unklstewy/flight-display/internal/poller"
	"github.com/unklstewy/flight-display/pkg/flight"
)

func newQueueBoard() (*poller.Queue, *display.Board) {
	return poller.NewQueue(), display.NewBoard(display.Options{SortBy: "distance", Ascending: true})
}

func TestModel(t *testing.T) {
	t.Run("Init schedules a drain", func(t *testing.T) {
		q, b := newQueueBoard()
		m := New(q, b, "test")
		assert.NotNil(t, m.Init())
	})

	t.Run("Drain tick fills the table", func(t *testing.T) {
		q, b := newQueueBoard()
		m := New(q, b, "test")

		q.Push(poller.Result{Flights: []flight.Record{
			flight.Finalize(flight.Record{Callsign: "BAW1", DistanceKm: 9}),
			flight.Finalize(flight.Record{Callsign: "EZY2", DistanceKm: 3}),
		}})

		_, cmd := m.Update(drainMsg{})
		assert.NotNil(t, cmd, "drain reschedules itself")
		assert.Equal(t, 2, m.Rows())
		assert.Equal(t, 0, q.Len())

		view := m.View()
		assert.Contains(t, view, "EZY2")
		assert.Contains(t, view, "Flights: 2")
		assert.Contains(t, view, "Connected")
	})

	t.Run("Error keeps rows", func(t *testing.T) {
		q, b := newQueueBoard()
		m := New(q, b, "test")

		q.Push(poller.Result{Flights: []flight.Record{flight.Finalize(flight.Record{Callsign: "BAW1"})}})
		m.Update(drainMsg{})
		q.Push(poller.Result{Err: "Invalid API key"})
		m.Update(drainMsg{})

		assert.Equal(t, 1, m.Rows())
		assert.Contains(t, m.View(), "Invalid API key")
	})

	t.Run("Empty drain leaves the table alone", func(t *testing.T) {
		q, b := newQueueBoard()
		m := New(q, b, "test")
		m.Update(drainMsg{})
		assert.Equal(t, 0, m.Rows())
		assert.True(t, strings.Contains(m.View(), "Initializing..."))
	})

	t.Run("q quits", func(t *testing.T) {
		q, b := newQueueBoard()
		m := New(q, b, "test")

		_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
		require.NotNil(t, cmd)
		assert.IsType(t, tea.QuitMsg{}, cmd())
	})

	t.Run("Window size shrinks the table", func(t *testing.T) {
		q, b := newQueueBoard()
		m := New(q, b, "test")
		m.Update(tea.WindowSizeMsg{Width: 80, Height: 12})
		assert.Equal(t, 7, lipgloss.Height(m.table.View()), "header and rows fill the space left by title and status")
		rows := m.table.Height()

		m.Update(tea.WindowSizeMsg{Width: 80, Height: 22})
		assert.Equal(t, 17, lipgloss.Height(m.table.View()))
		assert.Equal(t, rows+10, m.table.Height())
	})
}
