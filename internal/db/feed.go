package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"math"
	"net"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/unklstewy/flight-display/pkg/flight"
	"github.com/unklstewy/flight-display/pkg/geo"
	"github.com/unklstewy/flight-display/pkg/logger"
)

const (
	// DefaultStaleAfter hides aircraft the collector has not refreshed recently.
	DefaultStaleAfter = 60 * time.Second

	// DefaultQueryTimeout bounds each feed query.
	DefaultQueryTimeout = 30 * time.Second
)

// FeedConfig tunes a FeedSource.
type FeedConfig struct {
	StaleAfter   time.Duration
	QueryTimeout time.Duration
}

// FeedSource implements flight.DataSource over a collector-populated
// PostgreSQL database. Positions come from the aircraft table; route and
// type details come from flight_plans, matched by callsign.
type FeedSource struct {
	db           *DB
	staleAfter   time.Duration
	queryTimeout time.Duration
	now          func() time.Time
	log          logger.Logger
}

var _ flight.DataSource = (*FeedSource)(nil)

// NewFeedSource creates a feed source over an open database.
func NewFeedSource(db *DB, cfg FeedConfig, log logger.Logger) *FeedSource {
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultStaleAfter
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = DefaultQueryTimeout
	}
	if log == nil {
		log = logger.Nop()
	}
	return &FeedSource{
		db:           db,
		staleAfter:   cfg.StaleAfter,
		queryTimeout: cfg.QueryTimeout,
		now:          time.Now,
		log:          log,
	}
}

// feedRow is one scanned aircraft row, optionally joined with its plan.
type feedRow struct {
	ICAO         string
	Callsign     sql.NullString
	Registration sql.NullString
	Latitude     sql.NullFloat64
	Longitude    sql.NullFloat64
	AltitudeFt   sql.NullFloat64
	SpeedKts     sql.NullFloat64
	TrackDeg     sql.NullFloat64
	VerticalFpm  sql.NullFloat64

	// plan columns, NULL for light queries and unmatched joins
	Operator     sql.NullString
	Departure    sql.NullString
	Arrival      sql.NullString
	AircraftType sql.NullString
}

// record converts the row into a flight.Record. Missing plan fields stay
// empty so the poller can fill them from its cache.
func (r feedRow) record() flight.Record {
	rec := flight.Record{
		ID:           r.ICAO,
		Callsign:     strings.TrimSpace(r.Callsign.String),
		Registration: strings.TrimSpace(r.Registration.String),
		Latitude:     r.Latitude.Float64,
		Longitude:    r.Longitude.Float64,
		Altitude:     int(math.Round(r.AltitudeFt.Float64)),
		GroundSpeed:  int(math.Round(r.SpeedKts.Float64)),
		Heading:      flight.NormalizeHeading(int(math.Round(r.TrackDeg.Float64))),
		Airline:      strings.TrimSpace(r.Operator.String),
		Origin:       strings.TrimSpace(r.Departure.String),
		Destination:  strings.TrimSpace(r.Arrival.String),
		AircraftType: strings.TrimSpace(r.AircraftType.String),
	}
	if r.VerticalFpm.Valid {
		vs := int(math.Round(r.VerticalFpm.Float64))
		rec.VerticalSpeed = &vs
	}
	return rec
}

// FetchLight returns visible, recently seen aircraft inside bounds.
func (s *FeedSource) FetchLight(ctx context.Context, bounds geo.Bounds, limit int) ([]flight.Record, error) {
	cutoff := s.now().UTC().Add(-s.staleAfter)

	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		`SELECT icao, callsign, registration, latitude, longitude, altitude_ft,
		        ground_speed_kts, track_deg, vertical_rate_fpm
		 FROM aircraft
		 WHERE is_visible = TRUE AND last_seen >= $1
		   AND latitude BETWEEN $2 AND $3
		   AND longitude BETWEEN $4 AND $5
		 ORDER BY last_seen DESC
		 LIMIT $6`,
		cutoff, bounds.South, bounds.North, bounds.West, bounds.East, limit,
	)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []flight.Record
	for rows.Next() {
		var r feedRow
		if err := rows.Scan(
			&r.ICAO, &r.Callsign, &r.Registration,
			&r.Latitude, &r.Longitude, &r.AltitudeFt,
			&r.SpeedKts, &r.TrackDeg, &r.VerticalFpm,
		); err != nil {
			s.log.Warn("Skipping unreadable aircraft row", "error", err)
			continue
		}
		out = append(out, r.record())
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}

	return out, nil
}

// FetchFullDetails returns aircraft joined with their flight plans for the
// given callsigns. Callsigns without a visible aircraft are ignored.
func (s *FeedSource) FetchFullDetails(ctx context.Context, callsigns []string) ([]flight.Record, error) {
	if len(callsigns) == 0 {
		return nil, nil
	}
	if len(callsigns) > flight.MaxDetailCallsigns {
		callsigns = callsigns[:flight.MaxDetailCallsigns]
	}

	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		`SELECT a.icao, a.callsign, a.registration, a.latitude, a.longitude,
		        a.altitude_ft, a.ground_speed_kts, a.track_deg, a.vertical_rate_fpm,
		        fp.operator, fp.departure_icao, fp.arrival_icao, fp.aircraft_type
		 FROM aircraft a
		 LEFT JOIN flight_plans fp ON fp.icao = a.icao
		 WHERE a.is_visible = TRUE AND TRIM(a.callsign) = ANY($1)`,
		pq.Array(callsigns),
	)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []flight.Record
	for rows.Next() {
		var r feedRow
		if err := rows.Scan(
			&r.ICAO, &r.Callsign, &r.Registration,
			&r.Latitude, &r.Longitude, &r.AltitudeFt,
			&r.SpeedKts, &r.TrackDeg, &r.VerticalFpm,
			&r.Operator, &r.Departure, &r.Arrival, &r.AircraftType,
		); err != nil {
			s.log.Warn("Skipping unreadable flight plan row", "error", err)
			continue
		}
		out = append(out, r.record())
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}

	return out, nil
}

// Close closes the underlying connection pool.
func (s *FeedSource) Close() error {
	return s.db.Close()
}

// classify maps database failures onto flight.Error kinds.
func classify(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return flight.TimeoutError(err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code == "28000" || pqErr.Code == "28P01":
			return &flight.Error{Kind: flight.KindAuth, Msg: "Database authentication failed", Err: err}
		case pqErr.Code.Class() == "08":
			return flight.ConnectionError(err)
		case pqErr.Code == "57014":
			// query_canceled, raised by statement_timeout
			return flight.TimeoutError(err)
		}
		return flight.RequestError(err)
	}

	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return flight.ConnectionError(err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return flight.TimeoutError(err)
		}
		return flight.ConnectionError(err)
	}

	return flight.RequestError(err)
}
