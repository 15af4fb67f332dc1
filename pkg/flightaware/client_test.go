package flightaware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unklstewy/flight-display/pkg/flight"
	"github.com/unklstewy/flight-display/pkg/geo"
)

type fakePositions struct {
	details []flight.Record
	err     error
	closed  bool
}

func (f *fakePositions) FetchLight(ctx context.Context, bounds geo.Bounds, limit int) ([]flight.Record, error) {
	return []flight.Record{{ID: "a1", Callsign: "BAW1"}}, nil
}

func (f *fakePositions) FetchFullDetails(ctx context.Context, callsigns []string) ([]flight.Record, error) {
	return f.details, f.err
}

func (f *fakePositions) Close() error {
	f.closed = true
	return nil
}

const baw1 = `{"flights":[
  {"ident":"BAW1","operator":"BAW","aircraft_type":"A35K","registration":"G-XWBA",
   "origin":{"code_icao":"EGLL","code_iata":"LHR"},"destination":{"code_icao":"KJFK","code_iata":"JFK"},
   "actual_off":null,"actual_on":null},
  {"ident":"BAW1","operator":"BAW","aircraft_type":"A35K",
   "origin":{"code_icao":"EGLL","code_iata":"LHR"},"destination":{"code_icao":"KBOS"},
   "actual_off":"2026-10-17T09:00:00Z","actual_on":null}
]}`

func newServer(t *testing.T, calls *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		assert.Equal(t, "secret", r.Header.Get("x-apikey"))

		switch strings.TrimPrefix(r.URL.Path, "/flights/") {
		case "BAW1":
			w.Write([]byte(baw1))
		case "GHOST":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.Write([]byte(`{"flights":[]}`))
		}
	}))
}

func TestEnricher(t *testing.T) {
	ctx := context.Background()

	t.Run("Fills route from the airborne flight", func(t *testing.T) {
		var calls int32
		srv := newServer(t, &calls)
		defer srv.Close()

		pos := &fakePositions{details: []flight.Record{{ID: "a1", Callsign: "BAW1", AircraftType: "A359"}}}
		e := NewEnricher(pos, Config{APIKey: "secret", BaseURL: srv.URL})

		got, err := e.FetchFullDetails(ctx, []string{"BAW1", "GHOST"})
		require.NoError(t, err)
		require.Len(t, got, 2)

		assert.Equal(t, "a1", got[0].ID)
		assert.Equal(t, "A359", got[0].AircraftType, "wrapped source wins")
		assert.Equal(t, "BAW", got[0].Airline)
		assert.Equal(t, "LHR", got[0].Origin)
		assert.Equal(t, "KBOS", got[0].Destination)
		assert.Empty(t, got[0].Registration, "taken from the airborne flight only")

		assert.Equal(t, flight.Record{Callsign: "GHOST"}, got[1])
		assert.EqualValues(t, 2, calls)
	})

	t.Run("Budget defers the rest", func(t *testing.T) {
		var calls int32
		srv := newServer(t, &calls)
		defer srv.Close()

		e := NewEnricher(&fakePositions{}, Config{APIKey: "secret", BaseURL: srv.URL, RequestsPerMinute: 1})

		got, err := e.FetchFullDetails(ctx, []string{"BAW1", "EZY2", "RYR3"})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "BAW1", got[0].Callsign)
		assert.EqualValues(t, 1, calls)
	})

	t.Run("API failure stops lookups without failing", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer srv.Close()

		e := NewEnricher(&fakePositions{}, Config{APIKey: "bad", BaseURL: srv.URL})
		got, err := e.FetchFullDetails(ctx, []string{"BAW1", "EZY2"})
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("Wrapped source errors propagate", func(t *testing.T) {
		boom := flight.ConnectionError(errors.New("refused"))
		e := NewEnricher(&fakePositions{err: boom}, Config{BaseURL: "http://127.0.0.1:1"})

		_, err := e.FetchFullDetails(ctx, []string{"BAW1"})
		assert.ErrorIs(t, err, boom)
	})

	t.Run("Delegates light fetch and close", func(t *testing.T) {
		pos := &fakePositions{}
		e := NewEnricher(pos, Config{})

		light, err := e.FetchLight(ctx, geo.Bounds{}, 10)
		require.NoError(t, err)
		assert.Len(t, light, 1)

		got, err := e.FetchFullDetails(ctx, nil)
		assert.NoError(t, err)
		assert.Nil(t, got)

		assert.NoError(t, e.Close())
		assert.True(t, pos.closed)
	})
}

func TestCurrent(t *testing.T) {
	assert.Nil(t, current(nil))

	flights := []FlightInfo{{Ident: "first"}, {Ident: "second"}}
	assert.Equal(t, "first", current(flights).Ident)

	var nilAirport *Airport
	assert.Empty(t, nilAirport.Code())
	assert.Equal(t, "EGLL", (&Airport{ICAO: "EGLL"}).Code())
}
