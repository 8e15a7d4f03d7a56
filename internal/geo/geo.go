// Package geo evaluates geofences around a configured center point.
package geo

import "math"

// earthRadiusMeters is the mean Earth radius used by the haversine formula.
const earthRadiusMeters = 6371000.0

// Point is a WGS84 coordinate in decimal degrees.
type Point struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Valid reports whether both coordinates are finite and within range.
func (p Point) Valid() bool {
	if math.IsNaN(p.Latitude) || math.IsInf(p.Latitude, 0) {
		return false
	}
	if math.IsNaN(p.Longitude) || math.IsInf(p.Longitude, 0) {
		return false
	}
	return p.Latitude >= -90 && p.Latitude <= 90 &&
		p.Longitude >= -180 && p.Longitude <= 180
}

// DistanceMeters returns the great-circle distance between two points.
// ok is false when either point is invalid.
func DistanceMeters(p1, p2 Point) (meters float64, ok bool) {
	if !p1.Valid() || !p2.Valid() {
		return 0, false
	}
	lat1 := radians(p1.Latitude)
	lat2 := radians(p2.Latitude)
	dLat := radians(p2.Latitude - p1.Latitude)
	dLon := radians(p2.Longitude - p1.Longitude)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	// rounding can push a slightly above 1 for antipodal points
	a = math.Min(1, math.Max(0, a))
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusMeters * c, true
}

// IsWithin reports whether observed lies inside the circle of radiusMeters
// around center. The boundary counts as inside. Invalid points are never inside.
func IsWithin(observed, center Point, radiusMeters float64) bool {
	d, ok := DistanceMeters(observed, center)
	if !ok || math.IsNaN(radiusMeters) || radiusMeters < 0 {
		return false
	}
	return d <= radiusMeters
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }
