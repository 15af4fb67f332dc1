// Package geo provides the great-circle helpers used to annotate flights
// with their distance from the monitored center point.
package geo

import (
	"fmt"
	"math"
)

// Constants for geographic calculations
const (
	// DegreesToRadians converts degrees to radians
	DegreesToRadians = math.Pi / 180.0

	// RadiansToDegrees converts radians to degrees
	RadiansToDegrees = 180.0 / math.Pi

	// EarthRadiusKm is the Earth's radius in kilometers (mean radius)
	EarthRadiusKm = 6371.0

	// KmPerDegreeLat is the approximate length of one degree of latitude
	KmPerDegreeLat = 111.0
)

// Bounds is a latitude/longitude bounding box in decimal degrees.
type Bounds struct {
	North float64
	South float64
	West  float64
	East  float64
}

// String renders the box in the "north,south,west,east" form the API expects.
func (b Bounds) String() string {
	return fmt.Sprintf("%.3f,%.3f,%.3f,%.3f", b.North, b.South, b.West, b.East)
}

// Contains reports whether a point lies inside the box (edges inclusive).
func (b Bounds) Contains(lat, lon float64) bool {
	return lat <= b.North && lat >= b.South && lon >= b.West && lon <= b.East
}

// BoundsAround approximates a square box extending radiusKm from the center
// in every direction. Longitude degrees are widened by 1/cos(lat) so the box
// stays roughly square away from the equator.
func BoundsAround(centerLat, centerLon, radiusKm float64) Bounds {
	kmPerDegreeLon := KmPerDegreeLat * math.Cos(centerLat*DegreesToRadians)

	latDelta := radiusKm / KmPerDegreeLat
	lonDelta := radiusKm / kmPerDegreeLon

	return Bounds{
		North: centerLat + latDelta,
		South: centerLat - latDelta,
		West:  centerLon - lonDelta,
		East:  centerLon + lonDelta,
	}
}

// DistanceKm calculates the great-circle distance between two points using
// the Haversine formula. Inputs are decimal degrees; the result is in
// kilometers rounded to one decimal place.
func DistanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	lat1Rad := lat1 * DegreesToRadians
	lon1Rad := lon1 * DegreesToRadians
	lat2Rad := lat2 * DegreesToRadians
	lon2Rad := lon2 * DegreesToRadians

	dLat := lat2Rad - lat1Rad
	dLon := lon2Rad - lon1Rad

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return math.Round(EarthRadiusKm*c*10) / 10
}

// Bearing calculates the initial bearing (forward azimuth) from one point to another.
// Returns bearing in degrees (0-360), where 0 = North, 90 = East, 180 = South, 270 = West.
func Bearing(lat1, lon1, lat2, lon2 float64) float64 {
	fLat := lat1 * DegreesToRadians
	tLat := lat2 * DegreesToRadians
	dLon := (lon2 - lon1) * DegreesToRadians

	y := math.Sin(dLon) * math.Cos(tLat)
	x := math.Cos(fLat)*math.Sin(tLat) - math.Sin(fLat)*math.Cos(tLat)*math.Cos(dLon)
	bearing := math.Atan2(y, x) * RadiansToDegrees

	return math.Mod(bearing+360, 360)
}

var compassPoints = [...]string{"N", "NE", "E", "SE", "S", "SW", "W", "NW"}

// Compass converts a heading in degrees to one of the eight principal compass points.
func Compass(heading int) string {
	h := ((heading % 360) + 360) % 360
	idx := int(math.Round(float64(h)/45)) % len(compassPoints)
	return compassPoints[idx]
}
