// Package flightaware enriches another data source with route and operator
// details from the FlightAware AeroAPI v4.
//
// Positions always come from the wrapped source. Detail requests go to the
// wrapped source first and then to AeroAPI for each callsign, within the
// configured request budget. Callsigns that do not fit the budget are left
// out of the result so the poller asks for them again next cycle.
//
// API Documentation: https://www.flightaware.com/aeroapi/portal/documentation
package flightaware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/unklstewy/flight-display/pkg/flight"
	"github.com/unklstewy/flight-display/pkg/geo"
	"github.com/unklstewy/flight-display/pkg/logger"
)

const (
	// BaseURL is the FlightAware AeroAPI v4 base URL
	BaseURL = "https://aeroapi.flightaware.com/aeroapi"

	// DefaultTimeout for API requests
	DefaultTimeout = 10 * time.Second

	// DefaultRequestsPerMinute fits the personal tier
	DefaultRequestsPerMinute = 10
)

// errNotFound marks a callsign AeroAPI has no flight for.
var errNotFound = errors.New("no flight found")

// Config contains configuration for the FlightAware client.
type Config struct {
	APIKey            string
	BaseURL           string
	RequestsPerMinute int
	Timeout           time.Duration
	Logger            logger.Logger

	// HTTPClient overrides the default client, mainly for tests
	HTTPClient *http.Client
}

// Enricher wraps a flight.DataSource and adds AeroAPI details.
type Enricher struct {
	positions   flight.DataSource
	apiKey      string
	baseURL     string
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	log         logger.Logger
}

var _ flight.DataSource = (*Enricher)(nil)

// NewEnricher creates an enricher around positions.
func NewEnricher(positions flight.DataSource, cfg Config) *Enricher {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RequestsPerMinute == 0 {
		cfg.RequestsPerMinute = DefaultRequestsPerMinute
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = BaseURL
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	// Burst equal to the per-minute budget lets a full batch of newcomers
	// through at startup, then refills steadily.
	limiter := rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), cfg.RequestsPerMinute)

	return &Enricher{
		positions:   positions,
		apiKey:      cfg.APIKey,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		httpClient:  httpClient,
		rateLimiter: limiter,
		log:         cfg.Logger.With("component", "flightaware"),
	}
}

// FetchLight delegates to the wrapped source.
func (e *Enricher) FetchLight(ctx context.Context, bounds geo.Bounds, limit int) ([]flight.Record, error) {
	return e.positions.FetchLight(ctx, bounds, limit)
}

// FetchFullDetails merges wrapped-source details with AeroAPI flight data.
// AeroAPI failures end the lookups for this call without failing it.
func (e *Enricher) FetchFullDetails(ctx context.Context, callsigns []string) ([]flight.Record, error) {
	if len(callsigns) == 0 {
		return nil, nil
	}
	if len(callsigns) > flight.MaxDetailCallsigns {
		callsigns = callsigns[:flight.MaxDetailCallsigns]
	}

	base, err := e.positions.FetchFullDetails(ctx, callsigns)
	if err != nil {
		return nil, err
	}
	byCallsign := make(map[string]flight.Record, len(base))
	for _, r := range base {
		byCallsign[r.Callsign] = r
	}

	var records []flight.Record
	for _, cs := range callsigns {
		if !e.rateLimiter.Allow() {
			e.log.Debug("Request budget spent, deferring lookups", "remaining", len(callsigns)-len(records))
			break
		}

		info, err := e.flight(ctx, cs)
		if err != nil && !errors.Is(err, errNotFound) {
			e.log.Warn("AeroAPI lookup failed", "callsign", cs, "error", err)
			break
		}

		r, ok := byCallsign[cs]
		if !ok {
			r = flight.Record{Callsign: cs}
		}
		if info != nil {
			r = info.apply(r)
		}
		records = append(records, r)
	}

	return records, nil
}

// Close closes the wrapped source.
func (e *Enricher) Close() error {
	e.httpClient.CloseIdleConnections()
	return e.positions.Close()
}

// flight fetches the current flight for a callsign.
func (e *Enricher) flight(ctx context.Context, callsign string) (*FlightInfo, error) {
	endpoint := fmt.Sprintf("%s/flights/%s", e.baseURL, url.PathEscape(callsign))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, flight.RequestError(err)
	}
	req.Header.Set("x-apikey", e.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, flight.ClassifyTransport(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, errNotFound
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, flight.AuthError(fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, flight.Throttled(flight.NewRateLimitError(resp))
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return nil, flight.HTTPError(resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var response struct {
		Flights []FlightInfo `json:"flights"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, flight.RequestError(fmt.Errorf("parse response: %w", err))
	}

	info := current(response.Flights)
	if info == nil {
		return nil, errNotFound
	}
	return info, nil
}

// Airport is one end of a flight.
type Airport struct {
	ICAO string `json:"code_icao"`
	IATA string `json:"code_iata"`
}

// Code prefers the IATA code.
func (a *Airport) Code() string {
	if a == nil {
		return ""
	}
	if a.IATA != "" {
		return a.IATA
	}
	return a.ICAO
}

// FlightInfo is one flight from the /flights/{ident} response.
type FlightInfo struct {
	Ident        string     `json:"ident"`
	FAFlightID   string     `json:"fa_flight_id"`
	Operator     string     `json:"operator"`
	Registration string     `json:"registration"`
	AircraftType string     `json:"aircraft_type"`
	Origin       *Airport   `json:"origin"`
	Destination  *Airport   `json:"destination"`
	ActualOff    *time.Time `json:"actual_off"`
	ActualOn     *time.Time `json:"actual_on"`
	Status       string     `json:"status"`
}

// airborne reports whether the flight has departed and not landed.
func (f *FlightInfo) airborne() bool {
	return f.ActualOff != nil && f.ActualOn == nil
}

// apply fills the empty detail fields of r.
func (f *FlightInfo) apply(r flight.Record) flight.Record {
	if r.Airline == "" {
		r.Airline = f.Operator
	}
	if r.AircraftType == "" {
		r.AircraftType = f.AircraftType
	}
	if r.Registration == "" {
		r.Registration = f.Registration
	}
	if r.Origin == "" {
		r.Origin = f.Origin.Code()
	}
	if r.Destination == "" {
		r.Destination = f.Destination.Code()
	}
	return r
}

// current picks the airborne flight, or the first listed when none is.
func current(flights []FlightInfo) *FlightInfo {
	for i := range flights {
		if flights[i].airborne() {
			return &flights[i]
		}
	}
	if len(flights) > 0 {
		return &flights[0]
	}
	return nil
}
