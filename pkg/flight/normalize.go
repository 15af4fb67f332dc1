package flight

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Accepted field names per attribute, in priority order. The light and full
// endpoints, and older API versions, disagree on naming.
var (
	idKeys          = []string{"fr24_id", "flightId", "id"}
	callsignKeys    = []string{"callsign"}
	latitudeKeys    = []string{"lat", "latitude"}
	longitudeKeys   = []string{"lon", "longitude"}
	altitudeKeys    = []string{"alt", "altitude"}
	speedKeys       = []string{"gspeed", "groundSpeed", "speed"}
	headingKeys     = []string{"track", "heading"}
	vspeedKeys      = []string{"vspeed", "verticalSpeed"}
	registrationKey = []string{"reg", "registration"}
	typeKeys        = []string{"type", "typecode", "aircraft_type"}
	airlineKeys     = []string{"painted_as", "operating_as"}
	originKeys      = []string{"orig_iata", "origin_iata", "orig_icao"}
	destinationKeys = []string{"dest_iata", "destination_iata", "dest_icao"}
)

// Normalize maps one raw provider item onto a Record.
//
// Enrichable fields that the item does not carry are left empty so that the
// poller can back-fill them from its cache; display defaults are applied
// later by Finalize. A present but malformed numeric field fails the item.
// DistanceKm is never read from the item.
func Normalize(item map[string]any) (Record, error) {
	var r Record
	var err error

	if r.ID, err = stringField(item, idKeys); err != nil {
		return Record{}, err
	}
	if r.Callsign, err = stringField(item, callsignKeys); err != nil {
		return Record{}, err
	}
	r.Callsign = strings.TrimSpace(r.Callsign)

	if r.Latitude, err = floatField(item, latitudeKeys); err != nil {
		return Record{}, err
	}
	if r.Longitude, err = floatField(item, longitudeKeys); err != nil {
		return Record{}, err
	}

	alt, err := floatField(item, altitudeKeys)
	if err != nil {
		return Record{}, err
	}
	r.Altitude = int(alt)

	speed, err := floatField(item, speedKeys)
	if err != nil {
		return Record{}, err
	}
	r.GroundSpeed = int(speed)

	heading, err := floatField(item, headingKeys)
	if err != nil {
		return Record{}, err
	}
	r.Heading = NormalizeHeading(int(heading))

	if raw, key := lookup(item, vspeedKeys); key != "" {
		vs, err := toFloat(raw)
		if err != nil {
			return Record{}, fmt.Errorf("field %s: %w", key, err)
		}
		v := int(vs)
		r.VerticalSpeed = &v
	}

	if r.Registration, err = stringField(item, registrationKey); err != nil {
		return Record{}, err
	}

	r.AircraftType = extractAircraftType(item)
	r.Airline = extractAirline(item)
	r.Origin = extractAirport(item, "origin", originKeys)
	r.Destination = extractAirport(item, "destination", destinationKeys)

	return r, nil
}

// Finalize applies display defaults to a merged record. It is the only place
// the airline code is derived from the callsign prefix, so a true airline
// code supplied by a provider or the cache always wins.
func Finalize(r Record) Record {
	if r.Airline == "" {
		if prefix := []rune(r.Callsign); len(prefix) >= 3 {
			r.Airline = string(prefix[:3])
		} else {
			r.Airline = UnknownAirline
		}
	}
	if r.Callsign == "" {
		r.Callsign = UnknownCallsign
	}
	if r.AircraftType == "" {
		r.AircraftType = UnknownType
	}
	if r.Origin == "" {
		r.Origin = UnknownAirport
	}
	if r.Destination == "" {
		r.Destination = UnknownAirport
	}
	return r
}

// NormalizeHeading folds any integer heading into 0-359.
func NormalizeHeading(h int) int {
	return ((h % 360) + 360) % 360
}

func extractAircraftType(item map[string]any) string {
	if aircraft, ok := item["aircraft"].(map[string]any); ok {
		switch model := aircraft["model"].(type) {
		case map[string]any:
			s, _ := model["code"].(string)
			return s
		case string:
			return model
		}
	}
	s, _ := stringField(item, typeKeys)
	return s
}

func extractAirline(item map[string]any) string {
	switch airline := item["airline"].(type) {
	case map[string]any:
		if s, _ := airline["icao"].(string); s != "" {
			return s
		}
		s, _ := airline["iata"].(string)
		return s
	case string:
		if airline != "" {
			return airline
		}
	}
	s, _ := stringField(item, airlineKeys)
	return s
}

func extractAirport(item map[string]any, field string, flat []string) string {
	if airport, ok := item[field].(map[string]any); ok {
		if s, _ := airport["iata"].(string); s != "" {
			return s
		}
		s, _ := airport["icao"].(string)
		return s
	}
	s, _ := stringField(item, flat)
	return s
}

// lookup returns the first present, non-null, non-empty value among keys.
func lookup(item map[string]any, keys []string) (any, string) {
	for _, k := range keys {
		v, ok := item[k]
		if !ok || v == nil {
			continue
		}
		if s, isStr := v.(string); isStr && s == "" {
			continue
		}
		return v, k
	}
	return nil, ""
}

func stringField(item map[string]any, keys []string) (string, error) {
	raw, key := lookup(item, keys)
	if key == "" {
		return "", nil
	}
	switch v := raw.(type) {
	case string:
		return v, nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case json.Number:
		return v.String(), nil
	case int:
		return strconv.Itoa(v), nil
	default:
		return "", fmt.Errorf("field %s: unexpected type %T", key, raw)
	}
}

func floatField(item map[string]any, keys []string) (float64, error) {
	raw, key := lookup(item, keys)
	if key == "" {
		return 0, nil
	}
	f, err := toFloat(raw)
	if err != nil {
		return 0, fmt.Errorf("field %s: %w", key, err)
	}
	return f, nil
}

func toFloat(raw any) (float64, error) {
	var f float64
	switch v := raw.(type) {
	case float64:
		f = v
	case int:
		f = float64(v)
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, err
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", v)
		}
		f = parsed
	default:
		return 0, fmt.Errorf("unexpected type %T", raw)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("not a finite number")
	}
	return f, nil
}
