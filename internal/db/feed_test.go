package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/lib/pq"

	"github.com/unklstewy/flight-display/pkg/flight"
	"github.com/unklstewy/flight-display/pkg/geo"
)

// stalledDriver answers every query only when its context ends, like a
// PostgreSQL connection that stopped responding.
type stalledDriver struct{}

func (stalledDriver) Open(string) (driver.Conn, error) { return stalledConn{}, nil }

type stalledConn struct{}

func (stalledConn) Prepare(string) (driver.Stmt, error) { return nil, errors.New("not supported") }
func (stalledConn) Close() error { return nil }
func (stalledConn) Begin() (driver.Tx, error) { return nil, errors.New("not supported") }

func (stalledConn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func init() {
	sql.Register("stalled", stalledDriver{})
}

// TestFeedRowRecord tests conversion of scanned rows into flight records.
func TestFeedRowRecord(t *testing.T) {
	t.Run("Light row leaves plan fields empty", func(t *testing.T) {
		row := feedRow{
			ICAO:        "4ca87c",
			Callsign:    sql.NullString{String: "BAW123  ", Valid: true},
			Latitude:    sql.NullFloat64{Float64: 51.47, Valid: true},
			Longitude:   sql.NullFloat64{Float64: -0.46, Valid: true},
			AltitudeFt:  sql.NullFloat64{Float64: 3499.6, Valid: true},
			SpeedKts:    sql.NullFloat64{Float64: 180.2, Valid: true},
			TrackDeg:    sql.NullFloat64{Float64: 359.7, Valid: true},
			VerticalFpm: sql.NullFloat64{Float64: -640, Valid: true},
		}

		r := row.record()
		if r.ID != "4ca87c" {
			t.Errorf("Expected id 4ca87c, got %s", r.ID)
		}
		if r.Callsign != "BAW123" {
			t.Errorf("Expected trimmed callsign, got %q", r.Callsign)
		}
		if r.Altitude != 3500 {
			t.Errorf("Expected rounded altitude 3500, got %d", r.Altitude)
		}
		if r.GroundSpeed != 180 {
			t.Errorf("Expected speed 180, got %d", r.GroundSpeed)
		}
		if r.Heading != 0 {
			t.Errorf("Expected heading 360 wrapped to 0, got %d", r.Heading)
		}
		if r.VerticalSpeed == nil || *r.VerticalSpeed != -640 {
			t.Errorf("Expected vertical speed -640, got %v", r.VerticalSpeed)
		}
		if r.Origin != "" || r.Destination != "" || r.AircraftType != "" || r.Airline != "" {
			t.Errorf("Expected empty plan fields, got %+v", r)
		}
	})

	t.Run("Joined row carries plan", func(t *testing.T) {
		row := feedRow{
			ICAO:         "a1b2c3",
			Callsign:     sql.NullString{String: "DAL45", Valid: true},
			Registration: sql.NullString{String: "N123DL", Valid: true},
			Operator:     sql.NullString{String: "DAL", Valid: true},
			Departure:    sql.NullString{String: "KATL", Valid: true},
			Arrival:      sql.NullString{String: "KJFK", Valid: true},
			AircraftType: sql.NullString{String: "B739", Valid: true},
		}

		r := row.record()
		if r.Route() != "KATL -> KJFK" {
			t.Errorf("Expected route KATL -> KJFK, got %s", r.Route())
		}
		if r.AircraftType != "B739" || r.Airline != "DAL" || r.Registration != "N123DL" {
			t.Errorf("Unexpected plan fields: %+v", r)
		}
		if r.VerticalSpeed != nil {
			t.Errorf("Expected nil vertical speed for NULL column")
		}
	})
}

// TestClassify tests mapping of database errors onto flight error kinds.
func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want flight.Kind
	}{
		{"Deadline", fmt.Errorf("query: %w", context.DeadlineExceeded), flight.KindTimeout},
		{"Invalid password", &pq.Error{Code: "28P01", Message: "password authentication failed"}, flight.KindAuth},
		{"Invalid authorization", &pq.Error{Code: "28000"}, flight.KindAuth},
		{"Connection failure", &pq.Error{Code: "08006"}, flight.KindConnection},
		{"Statement timeout", &pq.Error{Code: "57014"}, flight.KindTimeout},
		{"Undefined table", &pq.Error{Code: "42P01", Message: "relation does not exist"}, flight.KindRequest},
		{"Bad connection", driver.ErrBadConn, flight.KindConnection},
		{"Connection done", sql.ErrConnDone, flight.KindConnection},
		{"Dial refused", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, flight.KindConnection},
		{"Other", errors.New("boom"), flight.KindRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := flight.KindOf(classify(tt.err))
			if !ok {
				t.Fatalf("Expected classified error for %v", tt.err)
			}
			if got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}

	if classify(nil) != nil {
		t.Error("Expected nil for nil error")
	}
}

// TestNewFeedSourceDefaults verifies the stale window default.
func TestNewFeedSourceDefaults(t *testing.T) {
	s := NewFeedSource(&DB{}, FeedConfig{}, nil)
	if s.staleAfter != DefaultStaleAfter {
		t.Errorf("Expected %v, got %v", DefaultStaleAfter, s.staleAfter)
	}
	if s.queryTimeout != DefaultQueryTimeout {
		t.Errorf("Expected %v, got %v", DefaultQueryTimeout, s.queryTimeout)
	}

	s = NewFeedSource(&DB{}, FeedConfig{StaleAfter: 2 * time.Minute}, nil)
	if s.staleAfter != 2*time.Minute {
		t.Errorf("Expected 2m, got %v", s.staleAfter)
	}

	records, err := s.FetchFullDetails(context.Background(), nil)
	if err != nil || records != nil {
		t.Errorf("Expected no query for empty callsigns, got %v, %v", records, err)
	}
}

// TestFeedQueriesTimeOut verifies a stalled database fails the fetch instead
// of blocking the caller.
func TestFeedQueriesTimeOut(t *testing.T) {
	sqlDB, err := sql.Open("stalled", "")
	if err != nil {
		t.Fatalf("Failed to open stalled driver: %v", err)
	}
	defer sqlDB.Close()

	s := NewFeedSource(&DB{DB: sqlDB}, FeedConfig{QueryTimeout: 20 * time.Millisecond}, nil)
	ctx := context.Background()

	fetches := map[string]func() error{
		"light": func() error {
			_, err := s.FetchLight(ctx, geo.BoundsAround(51.47, -0.45, 50), 10)
			return err
		},
		"full": func() error {
			_, err := s.FetchFullDetails(ctx, []string{"BAW1"})
			return err
		},
	}

	for name, fetch := range fetches {
		t.Run(name, func(t *testing.T) {
			start := time.Now()
			err := fetch()
			if elapsed := time.Since(start); elapsed > time.Second {
				t.Errorf("Query blocked for %v", elapsed)
			}
			if kind, ok := flight.KindOf(err); !ok || kind != flight.KindTimeout {
				t.Errorf("Expected timeout error, got %v", err)
			}
		})
	}
}
