package display

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unklstewy/flight-display/internal/poller"
	"github.com/unklstewy/flight-display/pkg/flight"
)

func sample() []flight.Record {
	return []flight.Record{
		{Callsign: "BAW1", Altitude: 30000, GroundSpeed: 450, DistanceKm: 42.0},
		{Callsign: "AFR2", Altitude: 5000, GroundSpeed: 220, DistanceKm: 7.5},
		{Callsign: "EZY3", Altitude: 12000, GroundSpeed: 310, DistanceKm: 19.1},
	}
}

func callsigns(flights []flight.Record) []string {
	out := make([]string, len(flights))
	for i, f := range flights {
		out[i] = f.Callsign
	}
	return out
}

func TestSort(t *testing.T) {
	tests := []struct {
		key       string
		ascending bool
		want      []string
	}{
		{"distance", true, []string{"AFR2", "EZY3", "BAW1"}},
		{"distance", false, []string{"BAW1", "EZY3", "AFR2"}},
		{"altitude", true, []string{"AFR2", "EZY3", "BAW1"}},
		{"callsign", true, []string{"AFR2", "BAW1", "EZY3"}},
		{"speed", false, []string{"BAW1", "EZY3", "AFR2"}},
		{"unknown", true, []string{"AFR2", "EZY3", "BAW1"}},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			in := sample()
			got := Sort(in, tt.key, tt.ascending)
			assert.Equal(t, tt.want, callsigns(got))
			assert.Equal(t, []string{"BAW1", "AFR2", "EZY3"}, callsigns(in), "input untouched")
		})
	}

	t.Run("Stable for equal keys", func(t *testing.T) {
		in := []flight.Record{{Callsign: "A"}, {Callsign: "B"}, {Callsign: "C"}}
		assert.Equal(t, []string{"A", "B", "C"}, callsigns(Sort(in, "altitude", false)))
	})
}

func TestBoard(t *testing.T) {
	now := time.Date(2026, 3, 1, 14, 5, 9, 0, time.UTC)
	clock := func() time.Time { return now }

	t.Run("Starts initializing", func(t *testing.T) {
		b := NewBoard(Options{})
		s := b.Snapshot()
		assert.False(t, s.Connected)
		assert.Equal(t, StatusInitializing, s.Status)
		assert.Equal(t, "Updated: --:--:-- | Flights: 0 | Initializing...", StatusLine(s))
	})

	t.Run("Update sorts and truncates", func(t *testing.T) {
		b := NewBoard(Options{SortBy: "distance", Ascending: true, MaxFlights: 2}, WithClock(clock))
		b.OnUpdate(sample())

		s := b.Snapshot()
		assert.True(t, s.Connected)
		assert.Equal(t, []string{"AFR2", "EZY3"}, callsigns(s.Flights))
		assert.Equal(t, 2, s.Count)
		assert.Equal(t, 1, s.Updates)
		assert.Equal(t, "Updated: 14:05:09 | Flights: 2 | Connected", StatusLine(s))
	})

	t.Run("Error keeps previous flights", func(t *testing.T) {
		b := NewBoard(Options{SortBy: "callsign", Ascending: true}, WithClock(clock))
		b.OnUpdate(sample())
		b.OnError("Request timed out: context deadline exceeded")

		s := b.Snapshot()
		assert.False(t, s.Connected)
		assert.Len(t, s.Flights, 3)
		assert.Equal(t, 1, s.Errors)
		assert.Equal(t, "Error: Request timed out: context dea...", s.Status)
	})

	t.Run("Recovery restores connected", func(t *testing.T) {
		b := NewBoard(Options{})
		b.OnError("Invalid API key")
		assert.Equal(t, "Invalid API key", b.Snapshot().Status)

		b.OnUpdate(nil)
		s := b.Snapshot()
		assert.True(t, s.Connected)
		assert.Equal(t, StatusConnected, s.Status)
		assert.Empty(t, s.Flights)
	})

	t.Run("Snapshot is a copy", func(t *testing.T) {
		b := NewBoard(Options{})
		b.OnUpdate(sample())

		s := b.Snapshot()
		s.Flights[0].Callsign = "XXX"
		assert.NotEqual(t, "XXX", b.Snapshot().Flights[0].Callsign)
	})

	t.Run("Handlers drain into board in order", func(t *testing.T) {
		b := NewBoard(Options{})
		q := poller.NewQueue()
		q.Push(poller.Result{Flights: sample()})
		q.Push(poller.Result{Err: "Connection error: refused"})

		n := q.Drain(b.Handlers())
		require.Equal(t, 2, n)

		s := b.Snapshot()
		assert.Equal(t, 1, s.Updates)
		assert.Equal(t, 1, s.Errors)
		assert.False(t, s.Connected)
		assert.Len(t, s.Flights, 3)
	})

	t.Run("Wrapper sees every result", func(t *testing.T) {
		var seen []string
		b := NewBoard(Options{}, WithWrapper(func(h poller.Handlers) poller.Handlers {
			return poller.Handlers{
				OnUpdate: func(f []flight.Record) { h.OnUpdate(f); seen = append(seen, "update") },
				OnError:  func(msg string) { h.OnError(msg); seen = append(seen, msg) },
			}
		}))
		q := poller.NewQueue()
		q.Push(poller.Result{Err: "Invalid API key"})
		q.Push(poller.Result{Flights: sample()})

		q.Drain(b.Handlers())

		assert.Equal(t, []string{"Invalid API key", "update"}, seen)
		assert.Equal(t, 1, b.Snapshot().Errors)
		assert.True(t, b.Snapshot().Connected)
	})
}

func TestStatusMessage(t *testing.T) {
	assert.Equal(t, "Rate limit exceeded", StatusMessage("Rate limit exceeded"))

	exact := "123456789012345678901234567890"
	assert.Equal(t, exact, StatusMessage(exact))
	assert.Equal(t, "Error: "+exact+"...", StatusMessage(exact+"X"))

	// Length counts characters, not bytes.
	accented := strings.Repeat("é", 30)
	assert.Equal(t, accented, StatusMessage(accented))

	got := StatusMessage(accented + "ü")
	assert.Equal(t, "Error: "+accented+"...", got)
	assert.True(t, utf8.ValidString(got))
}

func TestRow(t *testing.T) {
	t.Run("Full record", func(t *testing.T) {
		r := flight.Record{
			Callsign: "BAW123", Airline: "BAW", AircraftType: "A320",
			Origin: "LHR", Destination: "EDI",
			Altitude: 36000, GroundSpeed: 450, Heading: 5, DistanceKm: 12.345,
		}
		assert.Equal(t,
			[]string{"BAW123", "BAW", "A320", "LHR -> EDI", "36,000", "450", "005", "12.3"},
			Row(r))
	})

	t.Run("Zero values render dashes", func(t *testing.T) {
		r := flight.Finalize(flight.Record{Callsign: "GABCD"})
		row := Row(r)
		assert.Equal(t, "---", row[3])
		assert.Equal(t, "---", row[4])
		assert.Equal(t, "---", row[5])
		assert.Equal(t, "---", row[6])
		assert.Equal(t, "0.0", row[7])
	})

	assert.Len(t, Row(flight.Record{}), len(Columns))
}

func TestThousands(t *testing.T) {
	assert.Equal(t, "0", thousands(0))
	assert.Equal(t, "999", thousands(999))
	assert.Equal(t, "1,000", thousands(1000))
	assert.Equal(t, "1,234,567", thousands(1234567))
	assert.Equal(t, "-12,500", thousands(-12500))
}
