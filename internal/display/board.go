// Package display holds the consumer-side flight board: the sorted,
// truncated flight list plus connection status that every front end renders.
package display

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/unklstewy/flight-display/internal/poller"
	"github.com/unklstewy/flight-display/pkg/flight"
	"github.com/unklstewy/flight-display/pkg/logger"
)

// maxStatusLen is the longest error message shown in the status line.
const maxStatusLen = 30

// StatusInitializing is shown before the first cycle completes.
const StatusInitializing = "Initializing..."

// StatusConnected is shown after a successful cycle.
const StatusConnected = "Connected"

// Options controls ordering and size of the board.
type Options struct {
	// SortBy is "distance", "altitude", "callsign" or "speed"
	SortBy string

	// Ascending sorts smallest first
	Ascending bool

	// MaxFlights truncates the sorted list
	MaxFlights int
}

// Snapshot is a copy of the board state.
type Snapshot struct {
	Flights    []flight.Record `json:"flights"`
	Count      int             `json:"count"`
	LastUpdate time.Time       `json:"last_update"`
	Connected  bool            `json:"connected"`
	Status     string          `json:"status"`
	Updates    int             `json:"updates"`
	Errors     int             `json:"errors"`
}

// Board is the consumer state updated from drained poll results.
// All methods are safe for concurrent use so a web handler can read while
// the UI goroutine drains.
type Board struct {
	mu   sync.RWMutex
	opts Options
	now  func() time.Time
	log  logger.Logger
	wrap func(poller.Handlers) poller.Handlers

	flights    []flight.Record
	count      int
	lastUpdate time.Time
	connected  bool
	status     string
	updates    int
	errors     int
}

// Option configures a Board.
type Option func(*Board)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(b *Board) {
		b.now = now
	}
}

// WithLogger sets the board logger.
func WithLogger(l logger.Logger) Option {
	return func(b *Board) {
		b.log = l
	}
}

// WithWrapper decorates the handlers returned by Handlers, so side effects
// such as notifications run for every front end draining into the board.
func WithWrapper(wrap func(poller.Handlers) poller.Handlers) Option {
	return func(b *Board) {
		b.wrap = wrap
	}
}

// NewBoard creates an empty board.
func NewBoard(opts Options, options ...Option) *Board {
	b := &Board{
		opts:   opts,
		now:    time.Now,
		log:    logger.Nop(),
		status: StatusInitializing,
	}
	for _, o := range options {
		o(b)
	}
	return b
}

// OnUpdate replaces the flight list with a sorted, truncated copy.
func (b *Board) OnUpdate(flights []flight.Record) {
	sorted := Sort(flights, b.opts.SortBy, b.opts.Ascending)
	if b.opts.MaxFlights > 0 && len(sorted) > b.opts.MaxFlights {
		sorted = sorted[:b.opts.MaxFlights]
	}

	b.mu.Lock()
	b.flights = sorted
	b.count = len(sorted)
	b.lastUpdate = b.now()
	b.connected = true
	b.status = StatusConnected
	b.updates++
	b.mu.Unlock()

	b.log.Debug("Board updated", "flights", len(sorted))
}

// OnError keeps the previous flights and records the failure.
func (b *Board) OnError(msg string) {
	b.mu.Lock()
	b.lastUpdate = b.now()
	b.connected = false
	b.status = StatusMessage(msg)
	b.errors++
	b.mu.Unlock()

	b.log.Warn("Update error", "error", msg)
}

// Handlers returns poller handlers bound to this board.
func (b *Board) Handlers() poller.Handlers {
	h := poller.Handlers{
		OnUpdate: b.OnUpdate,
		OnError:  b.OnError,
	}
	if b.wrap != nil {
		h = b.wrap(h)
	}
	return h
}

// Snapshot returns a copy of the current state.
func (b *Board) Snapshot() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return Snapshot{
		Flights:    slices.Clone(b.flights),
		Count:      b.count,
		LastUpdate: b.lastUpdate,
		Connected:  b.connected,
		Status:     b.status,
		Updates:    b.updates,
		Errors:     b.errors,
	}
}

// StatusMessage shortens an error message for the status line.
func StatusMessage(msg string) string {
	if runes := []rune(msg); len(runes) > maxStatusLen {
		return "Error: " + string(runes[:maxStatusLen]) + "..."
	}
	return msg
}

// Sort returns a stably sorted copy of flights. Unknown keys sort by distance.
func Sort(flights []flight.Record, key string, ascending bool) []flight.Record {
	out := slices.Clone(flights)

	var compare func(a, b flight.Record) int
	switch key {
	case "altitude":
		compare = func(a, b flight.Record) int { return cmp.Compare(a.Altitude, b.Altitude) }
	case "callsign":
		compare = func(a, b flight.Record) int { return strings.Compare(a.Callsign, b.Callsign) }
	case "speed":
		compare = func(a, b flight.Record) int { return cmp.Compare(a.GroundSpeed, b.GroundSpeed) }
	default:
		compare = func(a, b flight.Record) int { return cmp.Compare(a.DistanceKm, b.DistanceKm) }
	}

	if ascending {
		slices.SortStableFunc(out, compare)
	} else {
		slices.SortStableFunc(out, func(a, b flight.Record) int { return compare(b, a) })
	}
	return out
}

// Columns are the table headings shared by every front end.
var Columns = []string{"CALLSIGN", "AIRLINE", "A/C", "ROUTE", "ALT ft", "SPD kt", "HDG", "DIST km"}

// Row formats a record into cells matching Columns.
func Row(r flight.Record) []string {
	return []string{
		r.Callsign,
		r.Airline,
		r.AircraftType,
		r.Route(),
		orDash(r.Altitude, thousands),
		orDash(r.GroundSpeed, func(v int) string { return fmt.Sprintf("%d", v) }),
		orDash(r.Heading, func(v int) string { return fmt.Sprintf("%03d", v) }),
		fmt.Sprintf("%.1f", r.DistanceKm),
	}
}

// StatusLine renders the one-line status bar.
func StatusLine(s Snapshot) string {
	updated := "--:--:--"
	if !s.LastUpdate.IsZero() {
		updated = s.LastUpdate.Format("15:04:05")
	}
	return fmt.Sprintf("Updated: %s | Flights: %d | %s", updated, s.Count, s.Status)
}

func orDash(v int, format func(int) string) string {
	if v == 0 {
		return flight.UnknownAirport
	}
	return format(v)
}

// thousands formats v with comma separators.
func thousands(v int) string {
	s := fmt.Sprintf("%d", v)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}

	var b strings.Builder
	for i, c := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}

	if neg {
		return "-" + b.String()
	}
	return b.String()
}
