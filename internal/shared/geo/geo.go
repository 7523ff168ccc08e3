package geo

import "math"

const earthRadiusM = 6371000.0

// HaversineKm returns the great-circle distance between two coordinates in
// kilometers. NaN inputs propagate; callers validate coordinates first.
func HaversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	return DistanceMeters(lat1, lng1, lat2, lng2) / 1000
}

// DistanceMeters returns the great-circle distance in meters.
func DistanceMeters(lat1, lng1, lat2, lng2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lng2 - lng1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusM * c
}

// ValidCoords reports whether lat/lng form a usable WGS84 coordinate.
func ValidCoords(lat, lng float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lng) {
		return false
	}
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}
