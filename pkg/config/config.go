package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"

	"github.com/unklstewy/flight-display/pkg/flight"
	"github.com/unklstewy/flight-display/pkg/geo"
)

// PlaceholderAPIKey is the key shipped in the example configuration.
const PlaceholderAPIKey = "your-fr24-api-key-here"

// Data source names.
const (
	SourceFR24 = "fr24"
	SourceDemo = "demo"
	SourceFeed = "feed"
	SourceADSB = "adsb"
)

// UI modes.
const (
	UITUI    = "tui"
	UIKiosk  = "kiosk"
	UITicker = "ticker"
)

// Sort keys accepted by display.sort_by.
const (
	SortDistance = "distance"
	SortAltitude = "altitude"
	SortCallsign = "callsign"
	SortSpeed    = "speed"
)

// Environment variables that override file settings.
const (
	EnvAPIKey         = "FR24_API_KEY"
	EnvDBPassword     = "FLIGHT_DISPLAY_DB_PASSWORD"
	EnvListen         = "FLIGHT_DISPLAY_LISTEN"
	EnvSource         = "FLIGHT_DISPLAY_SOURCE"
	EnvFlightAwareKey = "FLIGHTAWARE_API_KEY"
	EnvJWTSecret      = "FLIGHT_DISPLAY_JWT_SECRET"
)

// Config represents the complete application configuration.
type Config struct {
	// Source selects the flight data source: "fr24", "demo", "feed" or "adsb"
	Source string `json:"source"`

	API         APIConfig         `json:"api"`
	Location    LocationConfig    `json:"location"`
	Display     DisplayConfig     `json:"display"`
	Cache       CacheConfig       `json:"cache"`
	UI          UIConfig          `json:"ui"`
	Database    DatabaseConfig    `json:"database"`
	ADSB        ADSBConfig        `json:"adsb"`
	FlightAware FlightAwareConfig `json:"flightaware"`
	Server      ServerConfig      `json:"server"`
}

// APIConfig contains FlightRadar24 API settings.
type APIConfig struct {
	// Key is the bearer token (should be loaded from environment)
	Key string `json:"key"`

	// TimeoutSeconds bounds each HTTP request
	TimeoutSeconds int `json:"timeout_seconds"`

	// EndpointType is "light" (positions only) or "full" (positions plus details)
	EndpointType string `json:"endpoint_type"`

	// BaseURL overrides the API root, mainly for testing
	BaseURL string `json:"base_url,omitempty"`

	// RequestsPerMinute paces outgoing requests
	RequestsPerMinute int `json:"requests_per_minute"`
}

// LocationConfig is the monitored area.
type LocationConfig struct {
	// CenterLat in decimal degrees (-90 to +90)
	CenterLat float64 `json:"center_lat"`

	// CenterLon in decimal degrees (-180 to +180)
	CenterLon float64 `json:"center_lon"`

	// BoundingBoxKm is the half-width of the box around the center
	BoundingBoxKm float64 `json:"bounding_box_km"`
}

// DisplayConfig controls refresh cadence and the flight board.
type DisplayConfig struct {
	RefreshIntervalSeconds int `json:"refresh_interval_seconds"`

	// MaxFlights caps both the light fetch and the rows shown
	MaxFlights int `json:"max_flights"`

	SortBy        string `json:"sort_by"`
	SortAscending bool   `json:"sort_ascending"`
}

// CacheConfig controls the flight detail cache.
type CacheConfig struct {
	TTLSeconds int `json:"ttl_seconds"`
}

// UIConfig selects the presentation.
type UIConfig struct {
	// Mode is "tui", "kiosk" or "ticker"
	Mode string `json:"mode"`

	// Notify enables desktop notifications on connection loss and recovery
	Notify bool `json:"notify"`
}

// DatabaseConfig contains database connection settings for the shared feed.
type DatabaseConfig struct {
	// Driver is the database driver (postgres)
	Driver string `json:"driver"`

	// Host is the database server hostname
	Host string `json:"host"`

	// Port is the database server port
	Port int `json:"port"`

	// Database is the database name
	Database string `json:"database"`

	// Username for database authentication
	Username string `json:"username"`

	// Password for database authentication (should be loaded from environment)
	Password string `json:"password"`

	// SSLMode for PostgreSQL connections (disable, require, verify-ca, verify-full)
	SSLMode string `json:"ssl_mode"`

	// MaxOpenConns is the maximum number of open connections
	MaxOpenConns int `json:"max_open_conns"`

	// MaxIdleConns is the maximum number of idle connections
	MaxIdleConns int `json:"max_idle_conns"`

	// StaleSeconds hides aircraft not seen by the collector for this long
	StaleSeconds int `json:"stale_seconds"`
}

// ADSBConfig contains settings for the airplanes.live community feed.
type ADSBConfig struct {
	// BaseURL is the API root (default: https://api.airplanes.live/v2)
	BaseURL string `json:"base_url"`
}

// FlightAwareConfig contains AeroAPI settings used to add routes to
// sources that lack them. An empty key disables the lookups.
type FlightAwareConfig struct {
	// APIKey for AeroAPI (should be loaded from environment)
	APIKey string `json:"api_key"`

	// BaseURL overrides the API root, mainly for testing
	BaseURL string `json:"base_url,omitempty"`

	// RequestsPerMinute is the lookup budget
	RequestsPerMinute int `json:"requests_per_minute"`
}

// ServerConfig contains the status API settings.
type ServerConfig struct {
	// Listen is the bind address (e.g., ":8080"); empty disables the server
	Listen string `json:"listen"`

	// AllowedOrigins for CORS requests
	AllowedOrigins []string `json:"allowed_origins"`

	// JWTSecret enables bearer token checks on /api/v1 (should be loaded from environment)
	JWTSecret string `json:"jwt_secret"`

	// TokenTTLHours is the lifetime of issued tokens
	TokenTTLHours int `json:"token_ttl_hours"`
}

// SearchPaths returns the locations checked for config.json, in order.
func SearchPaths() []string {
	var paths []string
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "flight-display", "config.json"))
	}
	return append(paths,
		filepath.Join("/etc", "flight-display", "config.json"),
		filepath.Join("config", "config.json"),
	)
}

// Find returns the first existing file from SearchPaths, or "".
func Find() string {
	for _, p := range SearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Load reads configuration from a JSON file.
// A .env file in the working directory is loaded into the environment first.
// If the file doesn't exist, the defaults are used. Environment overrides are
// applied in both cases. Load does not validate; call Validate once
// command-line overrides are in place.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			// keep defaults
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := json.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	cfg.applyEnvironmentOverrides()

	return cfg, nil
}

// Save writes the configuration to a JSON file.
func (c *Config) Save(path string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// The file may hold the API key
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// DefaultConfig returns a configuration with sensible defaults.
// The center is London Heathrow.
func DefaultConfig() *Config {
	return &Config{
		Source: SourceFR24,
		API: APIConfig{
			Key:               PlaceholderAPIKey,
			TimeoutSeconds:    30,
			EndpointType:      string(flight.ModeLight),
			RequestsPerMinute: 10,
		},
		Location: LocationConfig{
			CenterLat:     51.47,
			CenterLon:     -0.45,
			BoundingBoxKm: 100,
		},
		Display: DisplayConfig{
			RefreshIntervalSeconds: 10,
			MaxFlights:             50,
			SortBy:                 SortDistance,
			SortAscending:          true,
		},
		Cache: CacheConfig{
			TTLSeconds: 3600,
		},
		UI: UIConfig{
			Mode: UITUI,
		},
		Database: DatabaseConfig{
			Driver:       "postgres",
			Host:         "localhost",
			Port:         5432,
			Database:     "adsbscope",
			Username:     "adsbscope",
			SSLMode:      "disable",
			MaxOpenConns: 5,
			MaxIdleConns: 2,
			StaleSeconds: 60,
		},
		ADSB: ADSBConfig{
			BaseURL: "https://api.airplanes.live/v2",
		},
		FlightAware: FlightAwareConfig{
			RequestsPerMinute: 10,
		},
		Server: ServerConfig{
			AllowedOrigins: []string{"*"},
			TokenTTLHours:  720,
		},
	}
}

// Validate checks that the configuration can drive a poller.
func (c *Config) Validate() error {
	switch c.Source {
	case SourceFR24:
		if c.API.Key == "" || c.API.Key == PlaceholderAPIKey {
			return fmt.Errorf("API key not configured: set %s or api.key in config.json", EnvAPIKey)
		}
	case SourceDemo, SourceFeed, SourceADSB:
	default:
		return fmt.Errorf("invalid source %q (must be fr24, demo, feed or adsb)", c.Source)
	}

	if _, err := flight.ParseMode(c.API.EndpointType); err != nil {
		return err
	}
	if c.API.TimeoutSeconds < 1 {
		return fmt.Errorf("api.timeout_seconds must be at least 1")
	}
	if c.API.RequestsPerMinute < 1 {
		return fmt.Errorf("api.requests_per_minute must be at least 1")
	}
	if c.FlightAware.APIKey != "" && c.FlightAware.RequestsPerMinute < 1 {
		return fmt.Errorf("flightaware.requests_per_minute must be at least 1")
	}

	if c.Location.CenterLat < -90 || c.Location.CenterLat > 90 {
		return fmt.Errorf("location.center_lat %.4f out of range [-90, 90]", c.Location.CenterLat)
	}
	if c.Location.CenterLon < -180 || c.Location.CenterLon > 180 {
		return fmt.Errorf("location.center_lon %.4f out of range [-180, 180]", c.Location.CenterLon)
	}
	if c.Location.BoundingBoxKm <= 0 {
		return fmt.Errorf("location.bounding_box_km must be positive")
	}

	if c.Display.RefreshIntervalSeconds < 1 {
		return fmt.Errorf("display.refresh_interval_seconds must be at least 1")
	}
	if c.Display.MaxFlights < 1 {
		return fmt.Errorf("display.max_flights must be at least 1")
	}
	switch c.Display.SortBy {
	case SortDistance, SortAltitude, SortCallsign, SortSpeed:
	default:
		return fmt.Errorf("invalid display.sort_by %q", c.Display.SortBy)
	}

	switch c.UI.Mode {
	case UITUI, UIKiosk, UITicker:
	default:
		return fmt.Errorf("invalid ui.mode %q (must be tui, kiosk or ticker)", c.UI.Mode)
	}

	return nil
}

// Bounds returns the box polled around the configured center.
func (c *Config) Bounds() geo.Bounds {
	return geo.BoundsAround(c.Location.CenterLat, c.Location.CenterLon, c.Location.BoundingBoxKm)
}

// Mode returns the parsed endpoint type, falling back to light.
func (c *Config) Mode() flight.Mode {
	m, err := flight.ParseMode(c.API.EndpointType)
	if err != nil {
		return flight.ModeLight
	}
	return m
}

// RefreshInterval returns the wait between poll cycles.
func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.Display.RefreshIntervalSeconds) * time.Second
}

// TokenTTL returns the lifetime of issued status API tokens.
func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.Server.TokenTTLHours) * time.Hour
}

// CacheTTL returns the detail cache time-to-live.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLSeconds) * time.Second
}

// Timeout returns the per-request API timeout.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.API.TimeoutSeconds) * time.Second
}

// applyEnvironmentOverrides applies environment variable overrides.
// Environment variables take precedence over file configuration.
func (c *Config) applyEnvironmentOverrides() {
	if key := os.Getenv(EnvAPIKey); key != "" {
		c.API.Key = key
	}
	if pw := os.Getenv(EnvDBPassword); pw != "" {
		c.Database.Password = pw
	}
	if listen := os.Getenv(EnvListen); listen != "" {
		c.Server.Listen = listen
	}
	if src := os.Getenv(EnvSource); src != "" {
		c.Source = src
	}
	if key := os.Getenv(EnvFlightAwareKey); key != "" {
		c.FlightAware.APIKey = key
	}
	if secret := os.Getenv(EnvJWTSecret); secret != "" {
		c.Server.JWTSecret = secret
	}
}
