// Package ticker runs the display headless: every update is written to an
// io.Writer as plain text, so the output can be piped into other programs.
// This is in contrast to the TUI and kiosk, which redraw a table in place.
package ticker

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/unklstewy/flight-display/internal/display"
	"github.com/unklstewy/flight-display/internal/poller"
	"github.com/unklstewy/flight-display/pkg/flight"
	"github.com/unklstewy/flight-display/pkg/logger"
)

// DrainInterval is the fallback polling period when no push signal arrives.
const DrainInterval = 100 * time.Millisecond

// Source is a result queue the ticker can wait on.
type Source interface {
	Drain(h poller.Handlers) int
	Ready() <-chan struct{}
}

// Ticker prints board updates line by line.
type Ticker struct {
	source Source
	board  *display.Board
	out    io.Writer
	log    logger.Logger

	// Top is the number of nearest flights printed after each status line
	Top int
}

// New creates a ticker writing to out.
func New(source Source, board *display.Board, out io.Writer, log logger.Logger) *Ticker {
	if log == nil {
		log = logger.Nop()
	}
	return &Ticker{
		source: source,
		board:  board,
		out:    out,
		log:    log,
		Top:    5,
	}
}

// Run drains results until ctx is done.
func (t *Ticker) Run(ctx context.Context) error {
	fallback := time.NewTicker(DrainInterval)
	defer fallback.Stop()

	for {
		select {
		case <-ctx.Done():
			t.drain()
			return nil
		case <-t.source.Ready():
		case <-fallback.C:
		}
		t.drain()
	}
}

// drain processes queued results in order, printing each one.
func (t *Ticker) drain() int {
	base := t.board.Handlers()
	return t.source.Drain(poller.Handlers{
		OnUpdate: func(flights []flight.Record) {
			base.OnUpdate(flights)
			t.printUpdate()
		},
		OnError: func(msg string) {
			base.OnError(msg)
			t.log.Warn("Poll failed", "error", msg)
			t.println(display.StatusLine(t.board.Snapshot()))
		},
	})
}

func (t *Ticker) printUpdate() {
	snap := t.board.Snapshot()
	t.println(display.StatusLine(snap))

	for i, f := range snap.Flights {
		if i >= t.Top {
			break
		}
		row := display.Row(f)
		t.println(fmt.Sprintf("  %-8s %-4s %-13s %7s ft %4s kt %6s km",
			row[0], row[2], row[3], row[4], row[5], row[7]))
	}
}

func (t *Ticker) println(line string) {
	if _, err := fmt.Fprintln(t.out, line); err != nil {
		t.log.Debug("Ticker write failed", "error", err)
	}
}
