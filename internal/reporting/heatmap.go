package reporting

import (
	"sort"

	"github.com/patrickwarner/civicreport/internal/geo"
	"github.com/patrickwarner/civicreport/internal/models"
)

// DescriptionPreview is how many characters of a description map popups show.
const DescriptionPreview = 100

// timestampLayout matches the minute precision used by map popups.
const timestampLayout = "2006-01-02 15:04"

// HeatmapPoint is one report plotted on the risk map.
type HeatmapPoint struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	Category    string  `json:"category"` // Display name
	Severity    string  `json:"severity"` // Display name
	Status      string  `json:"status"`   // Display name
	Location    string  `json:"location"`
	Description string  `json:"description"` // Truncated preview
	CreatedAt   string  `json:"created_at"`
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
	HasImage    bool    `json:"has_image"`
	HasVideo    bool    `json:"has_video"`
}

// HeatmapPoints converts filtered issues into map points.
func HeatmapPoints(issues []models.IssueReport) []HeatmapPoint {
	out := make([]HeatmapPoint, 0, len(issues))
	for _, r := range issues {
		lat, lng := geo.Coordinates(r.Location, r.Latitude, r.Longitude)
		out = append(out, HeatmapPoint{
			ID:          r.ID,
			Title:       r.Title,
			Category:    r.Category.Display(),
			Severity:    r.Severity.Display(),
			Status:      r.Status.Display(),
			Location:    r.Location,
			Description: geo.Truncate(r.Description, DescriptionPreview),
			CreatedAt:   r.CreatedAt.UTC().Format(timestampLayout),
			Lat:         lat,
			Lng:         lng,
			HasImage:    r.Image != nil,
			HasVideo:    r.Video != nil,
		})
	}
	return out
}

// HeatmapOptions lists the filter values offered next to the map.
type HeatmapOptions struct {
	Areas             []string        `json:"areas"`
	Categories        []models.Choice `json:"categories"`
	Severities        []models.Choice `json:"severities"`
	TotalReports      int             `json:"total_reports"`
	ReportsByCategory map[string]Stat `json:"reports_by_category"`
}

// BuildHeatmapOptions derives area names from report locations and merges
// them with the provinces.
func BuildHeatmapOptions(issues []models.IssueReport) HeatmapOptions {
	seen := make(map[string]bool)
	var areas []string
	add := func(a string) {
		if a != "" && !seen[a] {
			seen[a] = true
			areas = append(areas, a)
		}
	}
	for _, r := range issues {
		add(geo.AreaName(r.Location))
	}
	for _, p := range geo.Provinces {
		add(p)
	}
	sort.Strings(areas)

	return HeatmapOptions{
		Areas:             areas,
		Categories:        models.CategoryChoices,
		Severities:        models.SeverityChoices,
		TotalReports:      len(issues),
		ReportsByCategory: breakdown(models.CategoryChoices, issues, categoryKey),
	}
}

func sortedNewestFirst(issues []models.IssueReport) []models.IssueReport {
	out := make([]models.IssueReport, len(issues))
	copy(out, issues)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}
