package reporting

import (
	"math"
	"sort"
	"time"

	"github.com/patrickwarner/civicreport/internal/geo"
	"github.com/patrickwarner/civicreport/internal/models"
)

// DefaultAlertRadius is used when the client does not send a radius, in metres.
const DefaultAlertRadius = 1000.0

// Hazard is an active high-severity issue near the caller.
type Hazard struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Category    string    `json:"category"`
	Severity    string    `json:"severity"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	Distance    int       `json:"distance"` // Metres, rounded
	AlertLevel  geo.Level `json:"alert_level"`
	Lat         float64   `json:"lat"`
	Lng         float64   `json:"lng"`
	CreatedAt   string    `json:"created_at"`
}

// Point is a WGS84 coordinate.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// HazardResponse is the hazard alert feed.
type HazardResponse struct {
	Hazards      []Hazard  `json:"hazards"`
	UserLocation Point     `json:"user_location"`
	Radius       float64   `json:"radius"`
	Timestamp    time.Time `json:"timestamp"`
}

// AlertFilter selects the issues eligible for hazard alerts.
func AlertFilter() models.IssueFilter {
	return models.IssueFilter{
		ExcludeStatuses: []models.Status{models.StatusResolved, models.StatusClosed},
		Severities:      []models.Severity{models.SeverityHigh, models.SeverityCritical},
	}
}

func alertEligible(r models.IssueReport) bool {
	return r.Status.Active() && (r.Severity == models.SeverityHigh || r.Severity == models.SeverityCritical)
}

// HazardAlerts returns eligible issues within radius metres of (lat, lng),
// closest first.
func HazardAlerts(issues []models.IssueReport, lat, lng, radius float64, now time.Time) HazardResponse {
	hazards := make([]Hazard, 0)
	for _, r := range issues {
		if !alertEligible(r) {
			continue
		}
		ilat, ilng := geo.Coordinates(r.Location, r.Latitude, r.Longitude)
		d := geo.Haversine(lat, lng, ilat, ilng)
		if d > radius {
			continue
		}
		hazards = append(hazards, Hazard{
			ID:          r.ID,
			Title:       r.Title,
			Category:    r.Category.Display(),
			Severity:    r.Severity.Display(),
			Description: geo.Truncate(r.Description, DescriptionPreview),
			Location:    r.Location,
			Distance:    int(math.Round(d)),
			AlertLevel:  geo.AlertLevel(d),
			Lat:         ilat,
			Lng:         ilng,
			CreatedAt:   r.CreatedAt.UTC().Format(timestampLayout),
		})
	}
	sort.SliceStable(hazards, func(i, j int) bool { return hazards[i].Distance < hazards[j].Distance })

	return HazardResponse{
		Hazards:      hazards,
		UserLocation: Point{Lat: lat, Lng: lng},
		Radius:       radius,
		Timestamp:    now.UTC(),
	}
}
