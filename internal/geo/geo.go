// Package geo contains pure geographic helpers.
package geo

import (
	"math"

	"github.com/BearBump/CourierBox/internal/models"
)

const earthRadiusKm = 6371.0

// HaversineKm returns the great-circle distance in kilometres between two points.
func HaversineKm(a, b models.GeoPoint) float64 {
	dLat := degreesToRadians(b.Lat - a.Lat)
	dLon := degreesToRadians(b.Lon - a.Lon)

	rLat1 := degreesToRadians(a.Lat)
	rLat2 := degreesToRadians(b.Lat)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusKm * c
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}

// Within reports whether p lies no farther than radiusKm from center.
func Within(center, p models.GeoPoint, radiusKm float64) bool {
	return HaversineKm(center, p) <= radiusKm
}
