package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/patrickwarner/civicreport/internal/analytics"
	"github.com/patrickwarner/civicreport/internal/auth"
	"github.com/patrickwarner/civicreport/internal/db"
	"github.com/patrickwarner/civicreport/internal/models"
	"github.com/patrickwarner/civicreport/internal/reporting"
)

// AdminDashboardHandler returns the staff overview.
func (s *Server) AdminDashboardHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "admin_dashboard"
	const method = "GET"

	summary, err := cached(r.Context(), s, r, "admin_dashboard", func() (reporting.AdminSummary, error) {
		issues, err := s.Store.AllIssues(r.Context(), models.IssueFilter{})
		if err != nil {
			return reporting.AdminSummary{}, err
		}
		top, err := s.Store.TopReporters(r.Context(), reporting.TopReporterLimit)
		if err != nil {
			return reporting.AdminSummary{}, err
		}
		return reporting.AdminDashboard(issues, top, s.now()), nil
	})
	if err != nil {
		s.logger(r).Error("build admin dashboard", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		s.observe(endpoint, method, http.StatusInternalServerError, start)
		return
	}
	writeJSON(w, http.StatusOK, adminDashboardView{AdminSummary: summary, RecentReports: s.views(summary.RecentReports)})
	s.observe(endpoint, method, http.StatusOK, start)
}

// adminDashboardView renders the cached summary with media links signed
// per request.
type adminDashboardView struct {
	reporting.AdminSummary
	RecentReports []issueView `json:"recent_reports"`
}

type adminFilters struct {
	Status   string `json:"status"`
	Category string `json:"category"`
	Severity string `json:"severity"`
	Search   string `json:"search"`
	Area     string `json:"area"`
	DateFrom string `json:"date_from"`
	DateTo   string `json:"date_to"`
}

type adminIssueList struct {
	Issues          []issueView     `json:"issues"`
	Total           int             `json:"total"`
	Page            int             `json:"page"`
	PerPage         int             `json:"per_page"`
	TotalPages      int             `json:"total_pages"`
	HasPrevious     bool            `json:"has_previous"`
	HasNext         bool            `json:"has_next"`
	PreviousPage    *int            `json:"previous_page"`
	NextPage        *int            `json:"next_page"`
	Filters         adminFilters    `json:"filters"`
	StatusChoices   []models.Choice `json:"status_choices"`
	CategoryChoices []models.Choice `json:"category_choices"`
	SeverityChoices []models.Choice `json:"severity_choices"`
}

// AdminIssuesHandler lists every report with filters and pagination.
func (s *Server) AdminIssuesHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "admin_issues"
	const method = "GET"

	q := r.URL.Query()
	filters := adminFilters{
		Status:   strings.TrimSpace(q.Get("status")),
		Category: strings.TrimSpace(q.Get("category")),
		Severity: strings.TrimSpace(q.Get("severity")),
		Search:   strings.TrimSpace(q.Get("search")),
		Area:     strings.TrimSpace(q.Get("area")),
		DateFrom: strings.TrimSpace(q.Get("date_from")),
		DateTo:   strings.TrimSpace(q.Get("date_to")),
	}
	enums, msg := parseEnumFilters(q)
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		s.observe(endpoint, method, http.StatusBadRequest, start)
		return
	}
	page, _ := strconv.Atoi(q.Get("page"))
	f := models.IssueFilter{
		Status:   enums.Status,
		Category: enums.Category,
		Severity: enums.Severity,
		Search:   filters.Search,
		Area:     filters.Area,
		DateFrom: models.ParseDay(filters.DateFrom),
		DateTo:   models.ParseDay(filters.DateTo),
		Page:     page,
		PerPage:  models.DefaultPerPage,
	}

	p, err := s.Store.ListIssues(r.Context(), f)
	if err != nil {
		s.logger(r).Error("list issues", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		s.observe(endpoint, method, http.StatusInternalServerError, start)
		return
	}
	resp := adminIssueList{
		Issues:          s.views(p.Items),
		Total:           p.Total,
		Page:            p.Page,
		PerPage:         p.PerPage,
		TotalPages:      p.TotalPages,
		HasPrevious:     p.HasPrevious,
		HasNext:         p.HasNext,
		Filters:         filters,
		StatusChoices:   models.StatusChoices,
		CategoryChoices: models.CategoryChoices,
		SeverityChoices: models.SeverityChoices,
	}
	if p.HasPrevious {
		prev := p.Page - 1
		resp.PreviousPage = &prev
	}
	if p.HasNext {
		next := p.Page + 1
		resp.NextPage = &next
	}
	writeJSON(w, http.StatusOK, resp)
	s.observe(endpoint, method, http.StatusOK, start)
}

// AdminIssueHandler returns one report.
func (s *Server) AdminIssueHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "admin_issue"
	const method = "GET"

	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid issue id")
		s.observe(endpoint, method, http.StatusBadRequest, start)
		return
	}
	issue, err := s.Store.GetIssue(r.Context(), id)
	if errors.Is(err, models.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Report not found")
		s.observe(endpoint, method, http.StatusNotFound, start)
		return
	}
	if err != nil {
		s.logger(r).Error("get issue", zap.Int64("issue_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		s.observe(endpoint, method, http.StatusInternalServerError, start)
		return
	}
	writeJSON(w, http.StatusOK, s.view(issue))
	s.observe(endpoint, method, http.StatusOK, start)
}

type statusRequest struct {
	Status string `json:"status"`
}

type statusResponse struct {
	Success          bool   `json:"success"`
	Message          string `json:"message"`
	NewStatus        string `json:"new_status,omitempty"`
	NewStatusDisplay string `json:"new_status_display,omitempty"`
}

// UpdateStatusHandler moves a report to a new workflow status.
func (s *Server) UpdateStatusHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "update_status"
	method := r.Method
	ctx := r.Context()

	fail := func(status int, msg string) {
		writeJSON(w, status, statusResponse{Success: false, Message: msg})
		s.observe(endpoint, method, status, start)
	}

	id, err := pathID(r)
	if err != nil {
		fail(http.StatusBadRequest, "Invalid report id")
		return
	}
	var in statusRequest
	if err := decodeBody(w, r, &in, func(get func(string) string) {
		in.Status = get("status")
	}); err != nil {
		fail(http.StatusBadRequest, "Invalid request body")
		return
	}
	next, err := models.ParseStatus(in.Status)
	if err != nil {
		fail(http.StatusBadRequest, "Invalid status")
		return
	}

	before, err := s.Store.GetIssue(ctx, id)
	if errors.Is(err, models.ErrNotFound) {
		fail(http.StatusNotFound, "Report not found")
		return
	}
	if err != nil {
		s.logger(r).Error("load issue for status update", zap.Int64("issue_id", id), zap.Error(err))
		fail(http.StatusInternalServerError, fmt.Sprintf("Error updating status: %v", err))
		return
	}
	after, err := s.Store.UpdateIssueStatus(ctx, id, next)
	if err != nil {
		s.logger(r).Error("update issue status", zap.Int64("issue_id", id), zap.Error(err))
		fail(http.StatusInternalServerError, fmt.Sprintf("Error updating status: %v", err))
		return
	}

	staff, _ := auth.UserFromContext(ctx)
	s.Metrics.IncrementStatusChanges(string(next))
	if s.Redis != nil {
		change := db.StatusChange{IssueID: id, Status: string(next), Previous: string(before.Status), ChangedBy: staff.Username}
		if err := s.Redis.PublishStatusChange(ctx, change); err != nil {
			s.logger(r).Warn("publish status change", zap.Int64("issue_id", id), zap.Error(err))
		}
	}
	s.invalidateStats(ctx, r)
	s.record(r, analytics.Event{Type: analytics.EventStatusChanged, IssueID: id, UserID: staff.ID,
		Category: string(after.Category), Status: string(next), Previous: string(before.Status), Severity: string(after.Severity)})

	s.logger(r).Info("issue status updated",
		zap.Int64("issue_id", id),
		zap.String("from", string(before.Status)),
		zap.String("to", string(next)),
		zap.String("by", staff.Username))
	writeJSON(w, http.StatusOK, statusResponse{
		Success:          true,
		Message:          fmt.Sprintf("Status updated from %s to %s", before.Status.Display(), next.Display()),
		NewStatus:        string(next),
		NewStatusDisplay: next.Display(),
	})
	s.observe(endpoint, method, http.StatusOK, start)
}

// eventSource is implemented by analytics backends that can read events back.
type eventSource interface {
	EventsForIssue(ctx context.Context, issueID int64) ([]analytics.Event, error)
}

// IssueEventsHandler returns the analytics trail of one report.
func (s *Server) IssueEventsHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "issue_events"
	const method = "GET"

	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid issue id")
		s.observe(endpoint, method, http.StatusBadRequest, start)
		return
	}
	src, ok := s.Analytics.(eventSource)
	if !ok {
		writeError(w, http.StatusServiceUnavailable, analytics.ErrUnavailable.Error())
		s.observe(endpoint, method, http.StatusServiceUnavailable, start)
		return
	}
	events, err := src.EventsForIssue(r.Context(), id)
	if errors.Is(err, analytics.ErrUnavailable) {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		s.observe(endpoint, method, http.StatusServiceUnavailable, start)
		return
	}
	if err != nil {
		s.logger(r).Error("load issue events", zap.Int64("issue_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		s.observe(endpoint, method, http.StatusInternalServerError, start)
		return
	}
	if events == nil {
		events = []analytics.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"issue_id": id, "events": events})
	s.observe(endpoint, method, http.StatusOK, start)
}

// RateLimitStatsHandler reports per-client submission throttling.
func (s *Server) RateLimitStatsHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	writeJSON(w, http.StatusOK, map[string]any{"clients": s.Limiter.Snapshot()})
	s.observe("rate_limits", "GET", http.StatusOK, start)
}
