// Package fr24 provides a client for the FlightRadar24 live flight positions API.
//
// The light endpoint returns position and kinematic fields only and is cheap
// to call every cycle. The full endpoint adds aircraft type, route, airline
// and registration and accepts at most 15 callsigns per request.
//
// API Documentation: https://fr24api.flightradar24.com/docs
package fr24

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/unklstewy/flight-display/pkg/flight"
	"github.com/unklstewy/flight-display/pkg/geo"
	"github.com/unklstewy/flight-display/pkg/logger"
)

const (
	// BaseURL is the FlightRadar24 API base URL
	BaseURL = "https://fr24api.flightradar24.com/api"

	// APIVersion is sent in the Accept-Version header
	APIVersion = "v1"

	// DefaultTimeout for API requests
	DefaultTimeout = 30 * time.Second

	// DefaultRequestsPerMinute keeps light+full polling at a 10s cadence inside plan limits
	DefaultRequestsPerMinute = 30
)

// Config contains configuration for the FlightRadar24 client.
type Config struct {
	APIKey            string
	BaseURL           string
	Timeout           time.Duration
	RequestsPerMinute int
	Logger            logger.Logger

	// HTTPClient overrides the default client, mainly for tests
	HTTPClient *http.Client
}

// Client implements flight.DataSource against the FlightRadar24 API.
type Client struct {
	apiKey      string
	baseURL     string
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	details     *gobreaker.CircuitBreaker
	log         logger.Logger
}

var _ flight.DataSource = (*Client)(nil)

// NewClient creates a new FlightRadar24 API client.
//
// The client includes:
// - Rate limiting to stay inside the plan's request quota
// - A circuit breaker around the full-detail endpoint
// - Failure classification into flight.Error kinds
func NewClient(cfg Config) *Client {
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

	log := cfg.Logger.With("component", "fr24")

	// Burst of 2 lets one light and one full request go out back to back.
	limiter := rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), 2)

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "fr24-full",
		MaxRequests: 1,
		Interval:    5 * time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("Circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	return &Client{
		apiKey:      cfg.APIKey,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		httpClient:  httpClient,
		rateLimiter: limiter,
		details:     breaker,
		log:         log,
	}
}

// FetchLight returns position-only records inside bounds.
func (c *Client) FetchLight(ctx context.Context, bounds geo.Bounds, limit int) ([]flight.Record, error) {
	params := url.Values{}
	params.Set("bounds", bounds.String())
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	return c.fetch(ctx, flight.ModeLight, params)
}

// FetchFullDetails returns full records for up to MaxDetailCallsigns callsigns.
// When the detail endpoint keeps failing the circuit opens and calls fail
// fast with a request error until it half-opens again.
func (c *Client) FetchFullDetails(ctx context.Context, callsigns []string) ([]flight.Record, error) {
	if len(callsigns) == 0 {
		return nil, nil
	}
	if len(callsigns) > flight.MaxDetailCallsigns {
		callsigns = callsigns[:flight.MaxDetailCallsigns]
	}

	params := url.Values{}
	params.Set("callsigns", strings.Join(callsigns, ","))
	params.Set("limit", strconv.Itoa(len(callsigns)))

	result, err := c.details.Execute(func() (interface{}, error) {
		return c.fetch(ctx, flight.ModeFull, params)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, flight.RequestError(fmt.Errorf("detail endpoint: %w", err))
		}
		return nil, err
	}
	return result.([]flight.Record), nil
}

// Close cleanly shuts down the client.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// fetch performs one GET against the live flight positions endpoint.
func (c *Client) fetch(ctx context.Context, mode flight.Mode, params url.Values) ([]flight.Record, error) {
	// Wait for rate limiter
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, flight.RequestError(fmt.Errorf("rate limiter: %w", err))
	}

	endpoint := fmt.Sprintf("%s/live/flight-positions/%s?%s", c.baseURL, mode, params.Encode())
	c.log.Debug("Fetching flight positions", "endpoint", mode, "params", params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, flight.RequestError(err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Version", APIVersion)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		ferr := flight.ClassifyTransport(err)
		c.log.Error("API request failed", "endpoint", mode, "error", ferr.Msg)
		return nil, ferr
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		c.log.Error("API rejected credentials", "status", resp.StatusCode)
		return nil, flight.AuthError(fmt.Errorf("status %d", resp.StatusCode))

	case resp.StatusCode == http.StatusTooManyRequests:
		rle := flight.NewRateLimitError(resp)
		c.log.Warn("Rate limit hit",
			"retry_after", rle.RetryAfter,
			"remaining", rle.Headers.Remaining,
			"limit", rle.Headers.Limit)
		return nil, flight.Throttled(rle)

	case resp.StatusCode < 200 || resp.StatusCode > 299:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		c.log.Error("API returned error status", "status", resp.StatusCode)
		return nil, flight.HTTPError(resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var apiResp positionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		if flight.IsTimeout(err) {
			return nil, flight.TimeoutError(err)
		}
		return nil, flight.RequestError(fmt.Errorf("failed to parse API response: %w", err))
	}

	return c.parseItems(apiResp.Data), nil
}

// positionsResponse is the envelope shared by both endpoints.
type positionsResponse struct {
	Data []json.RawMessage `json:"data"`
}

// parseItems normalizes each item, skipping the ones that do not parse.
func (c *Client) parseItems(items []json.RawMessage) []flight.Record {
	records := make([]flight.Record, 0, len(items))
	for _, raw := range items {
		var item map[string]any
		if err := json.Unmarshal(raw, &item); err != nil {
			c.log.Warn("Skipping malformed flight item", "error", err)
			continue
		}

		r, err := flight.Normalize(item)
		if err != nil {
			c.log.Warn("Failed to parse flight data", "error", err, "id", item["fr24_id"])
			continue
		}
		records = append(records, r)
	}

	c.log.Debug("Parsed flights from API response", "count", len(records), "items", len(items))
	return records
}
