// Package reporting aggregates issue reports into the dashboards, heatmap and
// hazard alert feeds served by the API. Functions here are pure: callers load
// the issues and pass the reference time.
package reporting

import (
	"math"
	"time"

	"github.com/patrickwarner/civicreport/internal/models"
)

// Stat is one bucket of a breakdown keyed by status or category.
type Stat struct {
	Name  string `json:"name"`  // Display name of the bucket
	Count int    `json:"count"` // Reports in the bucket
}

// ShareStat is a Stat with its share of all reports.
type ShareStat struct {
	Name       string  `json:"name"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"` // Rounded to one decimal, 0 when there are no reports
}

// DailyCount is one point of the seven day chart.
type DailyCount struct {
	Date  string `json:"date"`  // YYYY-MM-DD
	Day   string `json:"day"`   // Abbreviated weekday, e.g. Mon
	Count int    `json:"count"` // Reports created that day
}

// AdminSummary is the staff dashboard.
type AdminSummary struct {
	TotalReports     int                    `json:"total_reports"`
	StatusStats      map[string]ShareStat   `json:"status_stats"`
	CategoryStats    map[string]ShareStat   `json:"category_stats"`
	TodayReports     int                    `json:"today_reports"`      // Created on the current UTC day
	WeekReports      int                    `json:"week_reports"`       // Created in the last 7 days
	MonthReports     int                    `json:"month_reports"`      // Created in the last 30 days
	ReportsWithMedia int                    `json:"reports_with_media"` // Image or video attached
	RecentReports    []models.IssueReport   `json:"recent_reports"`     // Ten newest
	DailyReports     []DailyCount           `json:"daily_reports"`      // Oldest first
	TopReporters     []models.ReporterCount `json:"top_reporters"`
}

// CivilianSummary is a citizen's personal dashboard.
type CivilianSummary struct {
	TotalReports     int                  `json:"total_reports"`
	CategoryStats    map[string]Stat      `json:"category_stats"`
	StatusStats      map[string]Stat      `json:"status_stats"`
	RecentReports    int                  `json:"recent_reports"` // Created in the last 7 days
	ReportsWithMedia int                  `json:"reports_with_media"`
	LatestReports    []models.IssueReport `json:"latest_reports"` // Five newest
}

const (
	recentAdminLimit    = 10
	latestCivilianLimit = 5
	// TopReporterLimit is how many reporters the staff dashboard ranks.
	TopReporterLimit = 5
)

func percentage(count, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(count)/float64(total)*1000) / 10
}

func breakdown(choices []models.Choice, issues []models.IssueReport, key func(models.IssueReport) string) map[string]Stat {
	counts := make(map[string]int, len(choices))
	for _, r := range issues {
		counts[key(r)]++
	}
	out := make(map[string]Stat, len(choices))
	for _, c := range choices {
		out[c.Value] = Stat{Name: c.Label, Count: counts[c.Value]}
	}
	return out
}

func withShares(stats map[string]Stat, total int) map[string]ShareStat {
	out := make(map[string]ShareStat, len(stats))
	for k, s := range stats {
		out[k] = ShareStat{Name: s.Name, Count: s.Count, Percentage: percentage(s.Count, total)}
	}
	return out
}

func statusKey(r models.IssueReport) string   { return string(r.Status) }
func categoryKey(r models.IssueReport) string { return string(r.Category) }

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

func newest(issues []models.IssueReport, n int) []models.IssueReport {
	out := sortedNewestFirst(issues)
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// AdminDashboard summarises every report for staff. top is the reporter
// ranking loaded from the user store.
func AdminDashboard(issues []models.IssueReport, top []models.ReporterCount, now time.Time) AdminSummary {
	now = now.UTC()
	s := AdminSummary{
		TotalReports:  len(issues),
		StatusStats:   withShares(breakdown(models.StatusChoices, issues, statusKey), len(issues)),
		CategoryStats: withShares(breakdown(models.CategoryChoices, issues, categoryKey), len(issues)),
		RecentReports: newest(issues, recentAdminLimit),
		TopReporters:  top,
	}
	if s.TopReporters == nil {
		s.TopReporters = []models.ReporterCount{}
	}

	weekAgo := now.AddDate(0, 0, -7)
	monthAgo := now.AddDate(0, 0, -30)
	for _, r := range issues {
		if sameDay(r.CreatedAt, now) {
			s.TodayReports++
		}
		if !r.CreatedAt.Before(weekAgo) {
			s.WeekReports++
		}
		if !r.CreatedAt.Before(monthAgo) {
			s.MonthReports++
		}
		if r.HasMedia() {
			s.ReportsWithMedia++
		}
	}

	s.DailyReports = make([]DailyCount, 0, 7)
	for i := 6; i >= 0; i-- {
		day := now.AddDate(0, 0, -i)
		dc := DailyCount{Date: day.Format(models.DateLayout), Day: day.Format("Mon")}
		for _, r := range issues {
			if sameDay(r.CreatedAt, day) {
				dc.Count++
			}
		}
		s.DailyReports = append(s.DailyReports, dc)
	}
	return s
}

// CivilianDashboard summarises one citizen's own reports.
func CivilianDashboard(issues []models.IssueReport, now time.Time) CivilianSummary {
	s := CivilianSummary{
		TotalReports:  len(issues),
		CategoryStats: breakdown(models.CategoryChoices, issues, categoryKey),
		StatusStats:   breakdown(models.StatusChoices, issues, statusKey),
		LatestReports: newest(issues, latestCivilianLimit),
	}
	weekAgo := now.AddDate(0, 0, -7)
	for _, r := range issues {
		if !r.CreatedAt.Before(weekAgo) {
			s.RecentReports++
		}
		if r.HasMedia() {
			s.ReportsWithMedia++
		}
	}
	return s
}

// EmptyCivilianDashboard is shown to anonymous visitors.
func EmptyCivilianDashboard() CivilianSummary {
	return CivilianSummary{
		CategoryStats: map[string]Stat{},
		StatusStats:   map[string]Stat{},
		LatestReports: []models.IssueReport{},
	}
}
