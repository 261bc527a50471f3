package geo

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPseudoCoordinatesStable(t *testing.T) {
	lat1, lng1 := PseudoCoordinates("Soweto, Gauteng")
	lat2, lng2 := PseudoCoordinates("Soweto, Gauteng")
	assert.Equal(t, lat1, lat2)
	assert.Equal(t, lng1, lng2)

	assert.InDelta(t, CenterLat, lat1, 1.0)
	assert.InDelta(t, CenterLng, lng1, 1.0)

	lat3, _ := PseudoCoordinates("Durban, KwaZulu-Natal")
	assert.NotEqual(t, lat1, lat3)
}

func TestPseudoCoordinatesKnownValue(t *testing.T) {
	// md5("") = d41d8cd98f00b204e9800998ecf8427e
	lat, lng := PseudoCoordinates("")
	wantLat := CenterLat + (float64(0xd41d8cd9)/0xffffffff-0.5)*2
	wantLng := CenterLng + (float64(0x8f00b204)/0xffffffff-0.5)*2
	assert.InDelta(t, wantLat, lat, 1e-12)
	assert.InDelta(t, wantLng, lng, 1e-12)
}

func TestCoordinatesPrefersExplicit(t *testing.T) {
	la, lo := -33.9249, 18.4241
	lat, lng := Coordinates("anything", &la, &lo)
	assert.Equal(t, la, lat)
	assert.Equal(t, lo, lng)

	lat, _ = Coordinates("anything", &la, nil)
	assert.NotEqual(t, la, lat)
}

func TestHaversine(t *testing.T) {
	assert.Equal(t, 0.0, Haversine(1, 1, 1, 1))

	// One degree of latitude is about 111.19 km.
	d := Haversine(0, 0, 1, 0)
	assert.InDelta(t, 111195, d, 10)

	// Johannesburg to Cape Town is roughly 1260 km.
	d = Haversine(-26.2041, 28.0473, -33.9249, 18.4241)
	assert.InDelta(t, 1_262_000, d, 10_000)
}

func TestAlertLevel(t *testing.T) {
	assert.Equal(t, LevelImmediate, AlertLevel(0))
	assert.Equal(t, LevelImmediate, AlertLevel(50))
	assert.Equal(t, LevelWarning, AlertLevel(50.1))
	assert.Equal(t, LevelWarning, AlertLevel(200))
	assert.Equal(t, LevelInfo, AlertLevel(201))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 100))
	long := strings.Repeat("x", 150)
	got := Truncate(long, 100)
	assert.Len(t, got, 103)
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.Equal(t, strings.Repeat("x", 100), Truncate(strings.Repeat("x", 100), 100))
}

func TestAreaName(t *testing.T) {
	assert.Equal(t, "Soweto", AreaName("Soweto, Gauteng"))
	assert.Equal(t, "Main Road", AreaName("  Main Road  "))
	assert.Equal(t, "", AreaName(", Gauteng"))
}

func TestValidCoordinates(t *testing.T) {
	assert.True(t, ValidCoordinates(-26, 28))
	assert.False(t, ValidCoordinates(91, 0))
	assert.False(t, ValidCoordinates(0, -181))
	assert.False(t, ValidCoordinates(math.NaN(), 0))
}
