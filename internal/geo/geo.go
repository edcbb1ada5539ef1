package geo

import (
	"fmt"
	"math"
)

const earthRadiusKm = 6371.0

// DistanceKm returns the haversine great-circle distance between two
// lat/lng pairs in kilometers. No rounding is applied; callers compare
// the raw double against their radius.
func DistanceKm(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}

// ValidCoord reports whether a lat/lng pair is inside the WGS84 range.
func ValidCoord(lat, lng float64) bool {
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

// QuantizeKey builds the shared cache key for a proximity query. The
// center is rounded to three decimal places (~110 m) so nearby queries
// for almost-identical centers share one cache entry.
func QuantizeKey(lat, lng, radiusKm float64) string {
	return fmt.Sprintf("nearby:%.3f:%.3f:%g", lat, lng, radiusKm)
}
