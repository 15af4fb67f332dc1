// Package kiosk renders the flight board full screen with tview, for
// unattended wall displays.
package kiosk

import (
	"context"
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/unklstewy/flight-display/internal/display"
	"github.com/unklstewy/flight-display/internal/poller"
	"github.com/unklstewy/flight-display/pkg/logger"
)

// DrainInterval is how often the kiosk pulls results from the poller.
const DrainInterval = 100 * time.Millisecond

// Drainer delivers queued poll results to handlers.
type Drainer interface {
	Drain(h poller.Handlers) int
}

// rightAligned columns hold numbers.
var rightAligned = map[int]bool{4: true, 5: true, 6: true, 7: true}

// App is the kiosk application.
type App struct {
	source Drainer
	board  *display.Board
	log    logger.Logger

	tviewApp *tview.Application
	table    *tview.Table
	status   *tview.TextView
	root     *tview.Flex
}

// New creates the kiosk UI. title is shown in the table border.
func New(source Drainer, board *display.Board, title string, log logger.Logger) *App {
	if log == nil {
		log = logger.Nop()
	}

	a := &App{
		source:   source,
		board:    board,
		log:      log,
		tviewApp: tview.NewApplication(),
	}

	a.table = tview.NewTable().
		SetFixed(1, 0).
		SetSelectable(false, false)
	a.table.SetBorder(true).SetTitle(fmt.Sprintf(" %s ", title))

	a.status = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(false)

	a.root = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.table, 0, 1, false).
		AddItem(a.status, 1, 0, false)

	a.tviewApp.SetRoot(a.root, true)
	a.tviewApp.SetInputCapture(a.handleKeyboard)

	a.render()
	return a
}

// render copies the board into the table and status line.
// Must run on the tview goroutine once the application is running.
func (a *App) render() {
	snap := a.board.Snapshot()

	a.table.Clear()
	for col, title := range display.Columns {
		a.table.SetCell(0, col, a.cell(col, title).
			SetTextColor(tcell.ColorYellow).
			SetSelectable(false))
	}

	for i, f := range snap.Flights {
		for col, text := range display.Row(f) {
			a.table.SetCell(i+1, col, a.cell(col, text))
		}
	}

	color := "red"
	if snap.Connected {
		color = "green"
	}
	a.status.SetText(fmt.Sprintf("[%s]%s[-]", color, tview.Escape(display.StatusLine(snap))))
}

func (a *App) cell(col int, text string) *tview.TableCell {
	c := tview.NewTableCell(text).SetExpansion(1)
	if rightAligned[col] {
		c.SetAlign(tview.AlignRight)
	}
	return c
}

// handleKeyboard quits on q or Esc.
func (a *App) handleKeyboard(event *tcell.EventKey) *tcell.EventKey {
	if event.Key() == tcell.KeyEscape || event.Rune() == 'q' {
		a.tviewApp.Stop()
		return nil
	}
	return event
}

// drainLoop pulls results every DrainInterval and redraws on change.
func (a *App) drainLoop(ctx context.Context) {
	ticker := time.NewTicker(DrainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.tviewApp.Stop()
			return
		case <-ticker.C:
			if a.source.Drain(a.board.Handlers()) > 0 {
				a.tviewApp.QueueUpdateDraw(a.render)
			}
		}
	}
}

// Run shows the kiosk until the user quits or ctx is done.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go a.drainLoop(ctx)

	a.log.Info("Kiosk started")
	if err := a.tviewApp.Run(); err != nil {
		return fmt.Errorf("kiosk: %w", err)
	}
	return nil
}
