// Package adsb reads the airplanes.live community ADS-B feed.
//
// The feed has no route data and no separate detail endpoint. Each point
// query already carries the aircraft type and registration, so the client
// keeps those from the latest light fetch and serves FetchFullDetails from
// that snapshot without another request.
//
// API Documentation: https://airplanes.live/api-guide/
package adsb

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/unklstewy/flight-display/pkg/flight"
	"github.com/unklstewy/flight-display/pkg/geo"
	"github.com/unklstewy/flight-display/pkg/logger"
)

const (
	// BaseURL is the airplanes.live API root
	BaseURL = "https://api.airplanes.live/v2"

	// DefaultTimeout for API requests
	DefaultTimeout = 10 * time.Second

	// MaxRadiusNM is the largest radius the point endpoint accepts
	MaxRadiusNM = 250.0

	kmPerNM = 1.852
)

// Config contains configuration for the airplanes.live client.
type Config struct {
	BaseURL string
	Timeout time.Duration
	Logger  logger.Logger

	// HTTPClient overrides the default client, mainly for tests
	HTTPClient *http.Client
}

// Client implements flight.DataSource against airplanes.live.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	log         logger.Logger

	mu      sync.Mutex
	details map[string]flight.Record
}

var _ flight.DataSource = (*Client)(nil)

// NewClient creates a new airplanes.live client.
// Requests are paced at one per second as the API asks.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = BaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		httpClient:  httpClient,
		rateLimiter: rate.NewLimiter(rate.Every(time.Second), 1),
		log:         cfg.Logger.With("component", "adsb"),
		details:     make(map[string]flight.Record),
	}
}

// FetchLight returns position-only records inside bounds. The point query
// covers a circle, so aircraft outside the box are dropped.
func (c *Client) FetchLight(ctx context.Context, bounds geo.Bounds, limit int) ([]flight.Record, error) {
	centerLat := (bounds.North + bounds.South) / 2
	centerLon := (bounds.East + bounds.West) / 2

	aircraft, err := c.point(ctx, centerLat, centerLon, radiusNM(bounds))
	if err != nil {
		return nil, err
	}

	records := make([]flight.Record, 0, len(aircraft))
	details := make(map[string]flight.Record, len(aircraft))
	for _, ac := range aircraft {
		if ac.Lat == nil || ac.Lon == nil || !bounds.Contains(*ac.Lat, *ac.Lon) {
			continue
		}
		r := ac.light()
		records = append(records, r)
		if r.Callsign != "" {
			details[r.Callsign] = ac.detail()
		}
	}

	c.mu.Lock()
	c.details = details
	c.mu.Unlock()

	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}

	c.log.Debug("Parsed aircraft from feed", "count", len(records), "items", len(aircraft))
	return records, nil
}

// FetchFullDetails returns type and registration for callsigns seen in the
// latest light fetch. Callsigns not in that fetch are left out.
func (c *Client) FetchFullDetails(ctx context.Context, callsigns []string) ([]flight.Record, error) {
	if len(callsigns) == 0 {
		return nil, nil
	}
	if len(callsigns) > flight.MaxDetailCallsigns {
		callsigns = callsigns[:flight.MaxDetailCallsigns]
	}
	if err := ctx.Err(); err != nil {
		return nil, flight.TimeoutError(err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var records []flight.Record
	for _, cs := range callsigns {
		if r, ok := c.details[cs]; ok {
			records = append(records, r)
		}
	}
	return records, nil
}

// Close cleanly shuts down the client.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// radiusNM is the circle around the box center that covers its corners,
// capped at the API maximum.
func radiusNM(b geo.Bounds) float64 {
	centerLat := (b.North + b.South) / 2
	centerLon := (b.East + b.West) / 2
	km := geo.DistanceKm(centerLat, centerLon, b.North, b.East)

	nm := math.Ceil(km / kmPerNM)
	if nm > MaxRadiusNM {
		return MaxRadiusNM
	}
	if nm < 1 {
		return 1
	}
	return nm
}

func pointPath(lat, lon, radius float64) string {
	return fmt.Sprintf("/point/%.4f/%.4f/%.0f", lat, lon, radius)
}
