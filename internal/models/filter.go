package models

import (
	"strings"
	"time"
)

// DefaultPerPage is the page size used by the staff issue listing.
const DefaultPerPage = 20

// DateLayout is the format accepted for date range filters.
const DateLayout = "2006-01-02"

// IssueFilter narrows an issue listing. Zero values match everything.
type IssueFilter struct {
	ReporterID      *int64
	Status          Status
	Category        Category
	Severity        Severity
	Severities      []Severity
	ExcludeStatuses []Status
	Search          string // title, description, location, reporter username or email
	Area            string // location substring
	DateFrom        *time.Time
	DateTo          *time.Time
	Page            int
	PerPage         int
}

// ParseDay parses a YYYY-MM-DD filter value. Unparsable input yields nil so
// the corresponding bound is ignored.
func ParseDay(v string) *time.Time {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	t, err := time.Parse(DateLayout, v)
	if err != nil {
		return nil
	}
	return &t
}

// Normalize clamps pagination values.
func (f IssueFilter) Normalize() IssueFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PerPage <= 0 {
		f.PerPage = DefaultPerPage
	}
	return f
}

// Offset returns the number of rows to skip for the current page.
func (f IssueFilter) Offset() int {
	n := f.Normalize()
	return (n.Page - 1) * n.PerPage
}

// Matches applies the filter to a single report. Date bounds compare
// calendar days in UTC and are inclusive.
func (f IssueFilter) Matches(r IssueReport) bool {
	if f.ReporterID != nil && (r.ReporterID == nil || *r.ReporterID != *f.ReporterID) {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if f.Category != "" && r.Category != f.Category {
		return false
	}
	if f.Severity != "" && r.Severity != f.Severity {
		return false
	}
	if len(f.Severities) > 0 && !containsSeverity(f.Severities, r.Severity) {
		return false
	}
	for _, s := range f.ExcludeStatuses {
		if r.Status == s {
			return false
		}
	}
	if f.Area != "" && !containsFold(r.Location, f.Area) {
		return false
	}
	if f.Search != "" {
		q := f.Search
		if !containsFold(r.Title, q) && !containsFold(r.Description, q) && !containsFold(r.Location, q) &&
			!containsFold(r.Reporter, q) && !containsFold(r.ReporterEmail, q) {
			return false
		}
	}
	day := truncateDay(r.CreatedAt)
	if f.DateFrom != nil && day.Before(truncateDay(*f.DateFrom)) {
		return false
	}
	if f.DateTo != nil && day.After(truncateDay(*f.DateTo)) {
		return false
	}
	return true
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

func containsSeverity(list []Severity, s Severity) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Page is one slice of a paginated listing.
type Page struct {
	Items       []IssueReport `json:"items"`
	Total       int           `json:"total"`
	Page        int           `json:"page"`
	PerPage     int           `json:"per_page"`
	TotalPages  int           `json:"total_pages"`
	HasPrevious bool          `json:"has_previous"`
	HasNext     bool          `json:"has_next"`
}

// NewPage fills the derived pagination fields.
func NewPage(items []IssueReport, total int, f IssueFilter) Page {
	f = f.Normalize()
	pages := (total + f.PerPage - 1) / f.PerPage
	if items == nil {
		items = []IssueReport{}
	}
	return Page{
		Items:       items,
		Total:       total,
		Page:        f.Page,
		PerPage:     f.PerPage,
		TotalPages:  pages,
		HasPrevious: f.Page > 1,
		HasNext:     f.Page < pages,
	}
}
