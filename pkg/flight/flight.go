// Package flight defines the flight record exchanged between data sources,
// the poller and consumers, together with the DataSource contract that every
// position provider implements.
package flight

import (
	"context"
	"fmt"

	"github.com/unklstewy/flight-display/pkg/geo"
)

// Display sentinels for attributes a provider did not report.
const (
	UnknownCallsign = "N/A"
	UnknownAirline  = "N/A"
	UnknownType     = "N/A"
	UnknownAirport  = "---"
)

// MaxDetailCallsigns is the largest callsign batch the full-detail endpoint accepts.
const MaxDetailCallsigns = 15

// Record represents one observed aircraft at one point in time.
// Records are built fresh on every fetch cycle and never mutated after
// they have been handed to a consumer.
type Record struct {
	// ID is the provider-assigned flight identifier (may be empty)
	ID string `json:"id"`

	// Callsign is the flight number or ATC callsign
	Callsign string `json:"callsign"`

	// Airline is the ICAO or IATA operator code
	Airline string `json:"airline"`

	// AircraftType is the ICAO type designator (e.g., "A320")
	AircraftType string `json:"aircraft_type"`

	// Origin and Destination are airport codes (IATA preferred)
	Origin      string `json:"origin"`
	Destination string `json:"destination"`

	// Latitude in decimal degrees (-90 to +90)
	Latitude float64 `json:"latitude"`

	// Longitude in decimal degrees (-180 to +180)
	Longitude float64 `json:"longitude"`

	// Altitude in feet, zero for ground traffic
	Altitude int `json:"altitude"`

	// GroundSpeed in knots
	GroundSpeed int `json:"ground_speed"`

	// Heading is the ground track in degrees (0-359)
	Heading int `json:"heading"`

	// VerticalSpeed in feet per minute, nil when unreported
	VerticalSpeed *int `json:"vertical_speed,omitempty"`

	// Registration is the tail number, empty when unknown
	Registration string `json:"registration,omitempty"`

	// DistanceKm is the distance from the monitored center.
	// Always computed locally, never taken from the provider.
	DistanceKm float64 `json:"distance_km"`
}

// Route renders "ORIGIN -> DEST" for display, or the unknown marker when
// neither end is known.
func (r Record) Route() string {
	if r.Origin == UnknownAirport && r.Destination == UnknownAirport {
		return UnknownAirport
	}
	return fmt.Sprintf("%s -> %s", r.Origin, r.Destination)
}

// Mode selects how much detail the poller requests each cycle.
type Mode string

const (
	// ModeLight fetches positions only
	ModeLight Mode = "light"

	// ModeFull fetches positions plus details for newly observed aircraft
	ModeFull Mode = "full"
)

// ParseMode converts a configuration string into a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeLight, ModeFull:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("invalid endpoint type %q (must be light or full)", s)
	}
}

// DataSource is the interface that all flight position providers must implement.
// This abstraction allows switching between the FlightRadar24 API, the shared
// collector database and the synthetic demo generator.
type DataSource interface {
	// FetchLight returns cheap position-only records inside bounds.
	// limit caps the number of records returned.
	FetchLight(ctx context.Context, bounds geo.Bounds, limit int) ([]Record, error)

	// FetchFullDetails returns full records for the given callsigns.
	// Callers pass at most MaxDetailCallsigns entries.
	FetchFullDetails(ctx context.Context, callsigns []string) ([]Record, error)

	// Close cleanly shuts down the data source connection.
	Close() error
}
