package geo

import "math"

// earthRadiusMeters is the mean radius of the spherical-earth approximation.
const earthRadiusMeters = 6371000.0

// Point is a WGS84 coordinate pair.
type Point struct {
	Lat float64
	Lng float64
}

// DistanceMeters returns the great-circle distance between two points using
// the haversine formula.
func DistanceMeters(a, b Point) float64 {
	phi1 := toRadians(a.Lat)
	phi2 := toRadians(b.Lat)
	deltaPhi := toRadians(b.Lat - a.Lat)
	deltaLambda := toRadians(b.Lng - a.Lng)

	h := math.Sin(deltaPhi/2)*math.Sin(deltaPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*
			math.Sin(deltaLambda/2)*math.Sin(deltaLambda/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusMeters * c
}

// WithinRadius reports whether current lies inside the circular geofence
// centered on target, and returns the measured distance either way. The radius
// is supplied per call so the same check serves charger-level activation and
// merchant-level arrival with different thresholds.
func WithinRadius(current, target Point, radiusMeters float64) (bool, float64) {
	distance := DistanceMeters(current, target)
	return distance <= radiusMeters, distance
}

func toRadians(degrees float64) float64 {
	return degrees * math.Pi / 180
}
