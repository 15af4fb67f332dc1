package adsb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"

	"github.com/unklstewy/flight-display/pkg/flight"
)

// point queries the /point/{lat}/{lon}/{radius} endpoint.
func (c *Client) point(ctx context.Context, lat, lon, radius float64) ([]airplanesLiveAircraft, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, flight.RequestError(fmt.Errorf("rate limiter: %w", err))
	}

	endpoint := c.baseURL + pointPath(lat, lon, radius)
	c.log.Debug("Fetching aircraft", "url", endpoint)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, flight.RequestError(err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		ferr := flight.ClassifyTransport(err)
		c.log.Error("Feed request failed", "error", ferr.Msg)
		return nil, ferr
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		rle := flight.NewRateLimitError(resp)
		c.log.Warn("Rate limit hit", "retry_after", rle.RetryAfter)
		return nil, flight.Throttled(rle)

	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		c.log.Error("Feed returned error status", "status", resp.StatusCode)
		return nil, flight.HTTPError(resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var apiResp airplanesLiveResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		if flight.IsTimeout(err) {
			return nil, flight.TimeoutError(err)
		}
		return nil, flight.RequestError(fmt.Errorf("failed to parse API response: %w", err))
	}

	return apiResp.Aircraft, nil
}

// airplanesLiveResponse represents the JSON response from airplanes.live API.
type airplanesLiveResponse struct {
	// Aircraft is the array of aircraft data
	Aircraft []airplanesLiveAircraft `json:"ac"`

	// Total number of aircraft
	Total int `json:"total"`

	// Now is the server time in milliseconds
	Now float64 `json:"now"`
}

// airplanesLiveAircraft represents a single aircraft in the airplanes.live API response.
// Field documentation: https://airplanes.live/adsb-field-explanations/
type airplanesLiveAircraft struct {
	// Hex is the ICAO Mode S hex code (e.g., "a12345")
	Hex string `json:"hex"`

	// Flight is the callsign, space padded to 8 characters
	Flight *string `json:"flight"`

	// Registration is the tail number ("r")
	Registration string `json:"r"`

	// Type is the ICAO type designator ("t")
	Type string `json:"t"`

	Lat *float64 `json:"lat"`
	Lon *float64 `json:"lon"`

	// AltBaro is barometric altitude in feet, or the string "ground"
	AltBaro interface{} `json:"alt_baro"`

	// AltGeom is geometric (GPS) altitude in feet
	AltGeom interface{} `json:"alt_geom"`

	// Gs is ground speed in knots
	Gs *float64 `json:"gs"`

	// Track is ground track in degrees (0-360)
	Track *float64 `json:"track"`

	// BaroRate is barometric vertical rate in feet/minute
	BaroRate *float64 `json:"baro_rate"`
}

// light converts the position fields into a record.
func (ac airplanesLiveAircraft) light() flight.Record {
	r := flight.Record{
		ID:       ac.Hex,
		Callsign: ac.callsign(),
	}
	if ac.Lat != nil {
		r.Latitude = *ac.Lat
	}
	if ac.Lon != nil {
		r.Longitude = *ac.Lon
	}

	// Barometric altitude matches what other providers report
	if alt, ok := parseAltitude(ac.AltBaro); ok {
		r.Altitude = alt
	} else if alt, ok := parseAltitude(ac.AltGeom); ok {
		r.Altitude = alt
	}

	if ac.Gs != nil {
		r.GroundSpeed = int(math.Round(*ac.Gs))
	}
	if ac.Track != nil {
		r.Heading = flight.NormalizeHeading(int(math.Round(*ac.Track)))
	}
	if ac.BaroRate != nil {
		vs := int(math.Round(*ac.BaroRate))
		r.VerticalSpeed = &vs
	}
	return r
}

// detail carries the fields the feed knows beyond position.
func (ac airplanesLiveAircraft) detail() flight.Record {
	r := ac.light()
	r.AircraftType = strings.TrimSpace(ac.Type)
	r.Registration = strings.TrimSpace(ac.Registration)
	return r
}

func (ac airplanesLiveAircraft) callsign() string {
	if ac.Flight == nil {
		return ""
	}
	return strings.TrimSpace(*ac.Flight)
}

// parseAltitude extracts altitude from a number or the string "ground".
func parseAltitude(val interface{}) (int, bool) {
	switch v := val.(type) {
	case float64:
		return int(math.Round(v)), true
	case string:
		if v == "ground" {
			return 0, true
		}
	}
	return 0, false
}
