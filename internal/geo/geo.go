// Package geo computes great-circle distances between node positions.
package geo

import (
	"math"

	"github.com/umahmood/haversine"
)

// Between returns the haversine distance in kilometers between two
// coordinates. ok is false when either endpoint is exactly (0,0) — a
// zero coordinate pair means "no fix", so no distance is reported.
func Between(lat1, lon1, lat2, lon2 float64) (km float64, ok bool) {
	if (lat1 == 0 && lon1 == 0) || (lat2 == 0 && lon2 == 0) {
		return 0, false
	}
	_, km = haversine.Distance(
		haversine.Coord{Lat: lat1, Lon: lon1},
		haversine.Coord{Lat: lat2, Lon: lon2},
	)
	return km, true
}

// RoundKm rounds a distance to two decimal places for display.
func RoundKm(km float64) float64 {
	return math.Round(km*100) / 100
}
