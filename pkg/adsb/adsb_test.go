package adsb

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/unklstewy/flight-display/pkg/flight"
	"github.com/unklstewy/flight-display/pkg/geo"
)

func strPtr(s string) *string { return &s }

func floatPtr(f float64) *float64 { return &f }

func newTestClient(url string) *Client {
	return NewClient(Config{BaseURL: url})
}

// TestNewClient tests client construction defaults.
func TestNewClient(t *testing.T) {
	client := NewClient(Config{BaseURL: "https://api.test.com/"})

	if client.baseURL != "https://api.test.com" {
		t.Errorf("Expected trimmed baseURL, got %s", client.baseURL)
	}
	if client.httpClient.Timeout != DefaultTimeout {
		t.Errorf("Expected timeout %v, got %v", DefaultTimeout, client.httpClient.Timeout)
	}

	if NewClient(Config{}).baseURL != BaseURL {
		t.Error("Expected default base URL")
	}
}

// TestFetchLight tests the point query and conversion to records.
func TestFetchLight(t *testing.T) {
	bounds := geo.BoundsAround(35.0, -80.0, 100)

	t.Run("Successful request", func(t *testing.T) {
		var gotPath string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			json.NewEncoder(w).Encode(airplanesLiveResponse{
				Aircraft: []airplanesLiveAircraft{
					{
						Hex:          "a12345",
						Flight:       strPtr("UAL123  "),
						Registration: "N12345",
						Type:         "B738",
						Lat:          floatPtr(35.5),
						Lon:          floatPtr(-80.5),
						AltBaro:      30000.4,
						Gs:           floatPtr(450.6),
						Track:        floatPtr(360.0),
						BaroRate:     floatPtr(-640.0),
					},
					{
						// Inside the circle but outside the box
						Hex: "b00001", Flight: strPtr("DAL9"),
						Lat: floatPtr(36.5), Lon: floatPtr(-78.9),
					},
					{
						// No position
						Hex: "c00001", Flight: strPtr("AAL1"),
					},
					{
						Hex: "d00001", Flight: strPtr("N999AB"),
						Lat: floatPtr(35.1), Lon: floatPtr(-80.1), AltBaro: "ground",
					},
				},
				Total: 4,
			})
		}))
		defer server.Close()

		records, err := newTestClient(server.URL).FetchLight(context.Background(), bounds, 0)
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}

		if gotPath != "/point/35.0000/-80.0000/77" {
			t.Errorf("Unexpected request path %s", gotPath)
		}
		if len(records) != 2 {
			t.Fatalf("Expected 2 records, got %d", len(records))
		}

		r := records[0]
		if r.ID != "a12345" || r.Callsign != "UAL123" {
			t.Errorf("Unexpected identity %q %q", r.ID, r.Callsign)
		}
		if r.Altitude != 30000 || r.GroundSpeed != 451 || r.Heading != 0 {
			t.Errorf("Unexpected kinematics alt=%d gs=%d hdg=%d", r.Altitude, r.GroundSpeed, r.Heading)
		}
		if r.VerticalSpeed == nil || *r.VerticalSpeed != -640 {
			t.Errorf("Expected vertical speed -640, got %v", r.VerticalSpeed)
		}
		if r.AircraftType != "" || r.Registration != "" {
			t.Error("Light records should not carry detail fields")
		}
		if records[1].Altitude != 0 {
			t.Errorf("Expected ground altitude 0, got %d", records[1].Altitude)
		}
	})

	t.Run("Limit truncates", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(airplanesLiveResponse{Aircraft: []airplanesLiveAircraft{
				{Hex: "1", Lat: floatPtr(35), Lon: floatPtr(-80)},
				{Hex: "2", Lat: floatPtr(35), Lon: floatPtr(-80)},
			}})
		}))
		defer server.Close()

		records, err := newTestClient(server.URL).FetchLight(context.Background(), bounds, 1)
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if len(records) != 1 {
			t.Errorf("Expected 1 record, got %d", len(records))
		}
	})

	t.Run("Rate limited", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", "30")
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer server.Close()

		_, err := newTestClient(server.URL).FetchLight(context.Background(), bounds, 0)
		if kind, ok := flight.KindOf(err); !ok || kind != flight.KindRateLimit {
			t.Errorf("Expected rate limit error, got %v", err)
		}
	})

	t.Run("Server error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusBadGateway)
		}))
		defer server.Close()

		_, err := newTestClient(server.URL).FetchLight(context.Background(), bounds, 0)
		if kind, ok := flight.KindOf(err); !ok || kind != flight.KindRequest {
			t.Errorf("Expected request error, got %v", err)
		}
		if err != nil && !strings.Contains(err.Error(), "502") {
			t.Errorf("Expected status in message, got %q", err.Error())
		}
	})

	t.Run("Connection refused", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		url := server.URL
		server.Close()

		_, err := newTestClient(url).FetchLight(context.Background(), bounds, 0)
		if kind, ok := flight.KindOf(err); !ok || kind != flight.KindConnection {
			t.Errorf("Expected connection error, got %v", err)
		}
	})
}

// TestFetchFullDetails tests that details come from the latest light fetch.
func TestFetchFullDetails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(airplanesLiveResponse{Aircraft: []airplanesLiveAircraft{
			{Hex: "a1", Flight: strPtr("BAW1"), Type: "A320", Registration: "G-EUUA", Lat: floatPtr(51.4), Lon: floatPtr(-0.4)},
			{Hex: "a2", Flight: strPtr("EZY2"), Lat: floatPtr(51.5), Lon: floatPtr(-0.5)},
		}})
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	ctx := context.Background()

	details, err := client.FetchFullDetails(ctx, []string{"BAW1"})
	if err != nil || len(details) != 0 {
		t.Fatalf("Expected no details before a light fetch, got %v %v", details, err)
	}

	if _, err := client.FetchLight(ctx, geo.BoundsAround(51.47, -0.45, 50), 0); err != nil {
		t.Fatalf("FetchLight: %v", err)
	}

	details, err = client.FetchFullDetails(ctx, []string{"BAW1", "UNKNOWN", "EZY2"})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(details) != 2 {
		t.Fatalf("Expected 2 details, got %d", len(details))
	}
	if details[0].AircraftType != "A320" || details[0].Registration != "G-EUUA" {
		t.Errorf("Unexpected detail %+v", details[0])
	}

	if got, _ := client.FetchFullDetails(ctx, nil); got != nil {
		t.Error("Expected nil for empty input")
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := client.FetchFullDetails(cancelled, []string{"BAW1"}); err == nil {
		t.Error("Expected error for cancelled context")
	}
}

// TestRadiusNM tests the covering radius and its caps.
func TestRadiusNM(t *testing.T) {
	tests := []struct {
		name     string
		radiusKm float64
		want     float64
	}{
		{"Small box", 0.1, 1},
		{"Regional box", 100, 77},
		{"Capped", 1000, MaxRadiusNM},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := radiusNM(geo.BoundsAround(35.0, -80.0, tt.radiusKm))
			if got != tt.want {
				t.Errorf("radiusNM(%v km) = %v, want %v", tt.radiusKm, got, tt.want)
			}
		})
	}
}
