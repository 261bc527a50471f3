// Package geo holds the distance and location helpers behind the heatmap and
// hazard alerts.
package geo

import (
	"crypto/md5"
	"encoding/hex"
	"math"
	"strconv"
	"strings"
)

// EarthRadius is the mean Earth radius in metres.
const EarthRadius = 6371000.0

// Johannesburg anchors the pseudo-coordinates derived from free-text locations.
const (
	CenterLat = -26.2041
	CenterLng = 28.0473
)

// Provinces are the nine South African provinces, always offered as heatmap areas.
var Provinces = []string{
	"Eastern Cape",
	"Free State",
	"Gauteng",
	"KwaZulu-Natal",
	"Limpopo",
	"Mpumalanga",
	"North West",
	"Northern Cape",
	"Western Cape",
}

// PseudoCoordinates maps a location string to a stable point within about one
// degree of Johannesburg. It stands in for geocoding.
func PseudoCoordinates(location string) (lat, lng float64) {
	sum := md5.Sum([]byte(location))
	h := hex.EncodeToString(sum[:])
	a, _ := strconv.ParseUint(h[0:8], 16, 32)
	b, _ := strconv.ParseUint(h[8:16], 16, 32)
	lat = CenterLat + (float64(a)/0xffffffff-0.5)*2
	lng = CenterLng + (float64(b)/0xffffffff-0.5)*2
	return lat, lng
}

// Coordinates returns explicit coordinates when both are set and falls back
// to PseudoCoordinates otherwise.
func Coordinates(location string, lat, lng *float64) (float64, float64) {
	if lat != nil && lng != nil {
		return *lat, *lng
	}
	return PseudoCoordinates(location)
}

// Haversine returns the great-circle distance in metres.
func Haversine(lat1, lng1, lat2, lng2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lng2 - lng1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadius * c
}

// Level is how urgently a nearby hazard should be shown.
type Level string

const (
	LevelImmediate Level = "immediate"
	LevelWarning   Level = "warning"
	LevelInfo      Level = "info"
)

// AlertLevel grades a hazard by distance in metres.
func AlertLevel(distance float64) Level {
	switch {
	case distance <= 50:
		return LevelImmediate
	case distance <= 200:
		return LevelWarning
	default:
		return LevelInfo
	}
}

// Truncate shortens s to n runes and appends "..." when anything was cut.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// AreaName returns the part of a location before the first comma.
func AreaName(location string) string {
	area, _, _ := strings.Cut(location, ",")
	return strings.TrimSpace(area)
}

// ValidCoordinates reports whether lat and lng are within range.
func ValidCoordinates(lat, lng float64) bool {
	return !math.IsNaN(lat) && !math.IsNaN(lng) && lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}
