// Package demo provides a synthetic flight.DataSource that simulates traffic
// around a center point, for running the display without an API key.
package demo

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"

	"github.com/unklstewy/flight-display/pkg/flight"
	"github.com/unklstewy/flight-display/pkg/geo"
)

// DefaultFlights is the initial number of simulated aircraft.
const DefaultFlights = 25

const (
	minFlights = 15
	maxFlights = 35

	// tickSeconds is the simulated time that passes per light fetch
	tickSeconds = 10.0

	knotsToKmh = 1.852
)

var airlines = []string{
	"BAW", "RYR", "EZY", "VIR", "DLH", "AFR", "KLM", "UAE",
	"QTR", "SAS", "IBE", "ACA", "AAL", "UAL", "DAL",
}

var aircraftTypes = []string{
	"A320", "A321", "A319", "A380", "A350", "B738", "B739", "B77W",
	"B787", "B744", "E190", "E195", "CRJ9", "AT76", "DH8D",
}

var airports = []string{
	"LHR", "LGW", "STN", "LTN", "MAN", "BHX", "EDI", "GLA", "BRS", "NCL",
	"CDG", "AMS", "FRA", "MAD", "BCN", "FCO", "JFK", "LAX", "DXB", "SIN",
	"HKG", "DOH", "IST", "ZRH", "VIE", "CPH", "OSL", "ARN", "HEL", "DUB",
}

// Source generates moving synthetic flights.
type Source struct {
	mu sync.Mutex

	centerLat float64
	centerLon float64
	radiusKm  float64

	rng     *rand.Rand
	flights []flight.Record
	nextID  int
}

var _ flight.DataSource = (*Source)(nil)

// Option configures a Source.
type Option func(*sourceOptions)

type sourceOptions struct {
	seed    uint64
	seeded  bool
	flights int
}

// WithSeed makes the simulation deterministic.
func WithSeed(seed uint64) Option {
	return func(o *sourceOptions) {
		o.seed = seed
		o.seeded = true
	}
}

// WithFlights sets the initial number of aircraft.
func WithFlights(n int) Option {
	return func(o *sourceOptions) {
		o.flights = n
	}
}

// NewSource creates a simulation centered on lat/lon with aircraft spread
// up to radiusKm away.
func NewSource(lat, lon, radiusKm float64, opts ...Option) *Source {
	o := sourceOptions{flights: DefaultFlights}
	for _, opt := range opts {
		opt(&o)
	}

	var rng *rand.Rand
	if o.seeded {
		rng = rand.New(rand.NewPCG(o.seed, o.seed^0x9e3779b97f4a7c15))
	} else {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	s := &Source{
		centerLat: lat,
		centerLon: lon,
		radiusKm:  radiusKm,
		rng:       rng,
	}
	for i := 0; i < o.flights; i++ {
		s.flights = append(s.flights, s.spawn())
	}
	return s
}

// FetchLight advances the simulation by one tick and returns up to limit
// position-only records. Route, type, airline and registration are left
// blank, as on the real light endpoint.
func (s *Source) FetchLight(ctx context.Context, bounds geo.Bounds, limit int) ([]flight.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.advance()

	n := len(s.flights)
	if limit > 0 && limit < n {
		n = limit
	}

	out := make([]flight.Record, 0, n)
	for _, f := range s.flights[:n] {
		out = append(out, flight.Record{
			ID:          f.ID,
			Callsign:    f.Callsign,
			Latitude:    f.Latitude,
			Longitude:   f.Longitude,
			Altitude:    f.Altitude,
			GroundSpeed: f.GroundSpeed,
			Heading:     f.Heading,
		})
	}
	return out, nil
}

// FetchFullDetails returns complete records for the simulated aircraft
// matching callsigns. Unknown callsigns are ignored.
func (s *Source) FetchFullDetails(ctx context.Context, callsigns []string) ([]flight.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wanted := make(map[string]struct{}, len(callsigns))
	for _, cs := range callsigns {
		wanted[cs] = struct{}{}
	}

	var out []flight.Record
	for _, f := range s.flights {
		if _, ok := wanted[f.Callsign]; ok {
			out = append(out, f)
		}
	}
	return out, nil
}

// Close is a no-op.
func (s *Source) Close() error {
	return nil
}

// Len returns the number of simulated aircraft.
func (s *Source) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.flights)
}

// advance moves every aircraft along its heading, replaces the ones that
// drifted out of range and occasionally adds or removes one.
func (s *Source) advance() {
	for i, f := range s.flights {
		if f.GroundSpeed <= 0 {
			continue
		}

		movedKm := float64(f.GroundSpeed) * knotsToKmh * tickSeconds / 3600
		heading := float64(f.Heading) * geo.DegreesToRadians
		lat := f.Latitude + (movedKm/geo.KmPerDegreeLat)*math.Cos(heading)
		lon := f.Longitude + (movedKm/(geo.KmPerDegreeLat*math.Cos(f.Latitude*geo.DegreesToRadians)))*math.Sin(heading)

		if geo.DistanceKm(s.centerLat, s.centerLon, lat, lon) > s.radiusKm*1.5 {
			s.flights[i] = s.spawn()
			continue
		}

		f.Latitude = lat
		f.Longitude = lon
		if f.Altitude > 0 {
			f.Altitude = max(100, f.Altitude+s.between(-100, 100))
		}
		f.GroundSpeed = max(1, f.GroundSpeed+s.between(-5, 5))
		f.Heading = flight.NormalizeHeading(f.Heading + s.between(-2, 2))
		s.flights[i] = f
	}

	if s.rng.Float64() < 0.1 {
		if len(s.flights) > minFlights && s.rng.Float64() < 0.5 {
			i := s.rng.IntN(len(s.flights))
			s.flights = append(s.flights[:i], s.flights[i+1:]...)
		} else if len(s.flights) < maxFlights {
			s.flights = append(s.flights, s.spawn())
		}
	}
}

// spawn creates an aircraft with a new identifier.
func (s *Source) spawn() flight.Record {
	id := fmt.Sprintf("DEMO%04d", s.nextID)
	s.nextID++
	return s.aircraft(id)
}

// aircraft creates a random aircraft with the given identifier.
func (s *Source) aircraft(id string) flight.Record {
	angle := s.rng.Float64() * 2 * math.Pi
	dist := 5 + s.rng.Float64()*math.Max(s.radiusKm-5, 0)

	lat := s.centerLat + (dist/geo.KmPerDegreeLat)*math.Cos(angle)
	lon := s.centerLon + (dist/(geo.KmPerDegreeLat*math.Cos(s.centerLat*geo.DegreesToRadians)))*math.Sin(angle)

	airline := pick(s.rng, airlines)
	origin := pick(s.rng, airports)
	destination := origin
	for destination == origin {
		destination = pick(s.rng, airports)
	}

	var altitude, speed int
	switch s.rng.IntN(3) {
	case 0: // on ground
		speed = s.between(0, 30)
	case 1: // climbing or descending
		altitude = s.between(2000, 8000)
		speed = s.between(180, 280)
	default: // cruise
		altitude = s.between(28000, 41000)
		speed = s.between(380, 520)
	}

	return flight.Record{
		ID:           id,
		Callsign:     fmt.Sprintf("%s%d", airline, s.between(100, 9999)),
		Airline:      airline,
		AircraftType: pick(s.rng, aircraftTypes),
		Origin:       origin,
		Destination:  destination,
		Latitude:     lat,
		Longitude:    lon,
		Altitude:     altitude,
		GroundSpeed:  speed,
		Heading:      s.rng.IntN(360),
		Registration: s.registration(),
	}
}

func (s *Source) registration() string {
	b := []byte("G-")
	for i := 0; i < 4; i++ {
		b = append(b, byte('A'+s.rng.IntN(26)))
	}
	return string(b)
}

// between returns a uniform integer in [lo, hi].
func (s *Source) between(lo, hi int) int {
	return lo + s.rng.IntN(hi-lo+1)
}

func pick(rng *rand.Rand, options []string) string {
	return options[rng.IntN(len(options))]
}
