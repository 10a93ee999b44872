// Package geometry provides the great-circle distance, bearing and time
// estimate primitives the route planner and matcher build on (spec §4.1).
package geometry

import (
	"math"

	"github.com/example/ride-pool-dispatch/internal/models"
)

// EarthRadiusKm is the mean Earth radius used by the haversine formula.
const EarthRadiusKm = 6371.0

// AverageSpeedKmh is the assumed average speed used to convert distance
// into a travel-time estimate.
const AverageSpeedKmh = 30.0

// DefaultDirectionThresholdDeg is the default θ for SameDirection.
const DefaultDirectionThresholdDeg = 45.0

func toRad(deg float64) float64 { return deg * math.Pi / 180.0 }
func toDeg(rad float64) float64 { return rad * 180.0 / math.Pi }

// Distance returns the great-circle distance between a and b in
// kilometres via the haversine formula.
func Distance(a, b models.Coord) float64 {
	dLat := toRad(b.Lat - a.Lat)
	dLng := toRad(b.Lng - a.Lng)
	lat1 := toRad(a.Lat)
	lat2 := toRad(b.Lat)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusKm * c
}

// Bearing returns the initial bearing from a to b in degrees, in [0, 360).
func Bearing(a, b models.Coord) float64 {
	lat1 := toRad(a.Lat)
	lat2 := toRad(b.Lat)
	dLng := toRad(b.Lng - a.Lng)

	y := math.Sin(dLng) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLng)
	brng := toDeg(math.Atan2(y, x))
	return math.Mod(brng+360.0, 360.0)
}

// TravelTime returns the estimated travel time in minutes for the given
// distance in kilometres, assuming AverageSpeedKmh.
func TravelTime(km float64) float64 {
	return km / AverageSpeedKmh * 60.0
}

// WithinRadius reports whether p lies within radiusKm of center.
func WithinRadius(p, center models.Coord, radiusKm float64) bool {
	return Distance(p, center) <= radiusKm
}

// circularDiff returns the minimum absolute circular difference between
// two bearings, in [0, 180].
func circularDiff(a, b float64) float64 {
	d := math.Mod(math.Abs(a-b), 360.0)
	if d > 180.0 {
		d = 360.0 - d
	}
	return d
}

// SameDirection reports whether the bearing from a1 to a2 and the bearing
// from b1 to b2 differ by no more than thresholdDeg. A thresholdDeg <= 0
// falls back to DefaultDirectionThresholdDeg.
func SameDirection(a1, a2, b1, b2 models.Coord, thresholdDeg float64) bool {
	if thresholdDeg <= 0 {
		thresholdDeg = DefaultDirectionThresholdDeg
	}
	brgA := Bearing(a1, a2)
	brgB := Bearing(b1, b2)
	return circularDiff(brgA, brgB) <= thresholdDeg
}

// Centroid returns the arithmetic mean coordinate of a non-empty set of
// points. Calling it with an empty slice is a programming error — the
// caller must never invoke the matcher with an empty cluster.
func Centroid(points []models.Coord) models.Coord {
	if len(points) == 0 {
		panic("geometry: centroid of empty point set")
	}
	var sumLat, sumLng float64
	for _, p := range points {
		sumLat += p.Lat
		sumLng += p.Lng
	}
	n := float64(len(points))
	return models.Coord{Lat: sumLat / n, Lng: sumLng / n}
}
