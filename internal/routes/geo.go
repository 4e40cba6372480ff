package routes

import (
	"math"

	"podwatch/internal/delivery"
)

const earthRadiusKm = 6371

// proximityLimitKm is the legacy two-point acceptance radius.
const proximityLimitKm = 0.5

// Haversine returns the great-circle distance between two points in km.
func Haversine(a, b delivery.LatLon) float64 {
	lat1 := a.Lat * math.Pi / 180
	lon1 := a.Lon * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	lon2 := b.Lon * math.Pi / 180

	dlat := lat2 - lat1
	dlon := lon2 - lon1

	h := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dlon/2)*math.Sin(dlon/2)

	return earthRadiusKm * 2 * math.Asin(math.Sqrt(h))
}

// ProximityValid is the legacy device-versus-vehicle check: two fixes are
// considered co-located under half a kilometre. Returns the distance and
// the verdict.
func ProximityValid(a, b delivery.LatLon) (float64, bool) {
	d := Haversine(a, b)
	return d, d < proximityLimitKm
}
