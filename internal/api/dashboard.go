package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/patrickwarner/civicreport/internal/auth"
	"github.com/patrickwarner/civicreport/internal/geo"
	"github.com/patrickwarner/civicreport/internal/models"
	"github.com/patrickwarner/civicreport/internal/reporting"
)

// DashboardHandler returns the caller's personal summary. Anonymous callers
// get zeroed counters.
func (s *Server) DashboardHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "dashboard"
	const method = "GET"

	u, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusOK, reporting.EmptyCivilianDashboard())
		s.observe(endpoint, method, http.StatusOK, start)
		return
	}
	issues, err := s.Store.AllIssues(r.Context(), models.IssueFilter{ReporterID: &u.ID})
	if err != nil {
		s.logger(r).Error("load dashboard issues", zap.Int64("user_id", u.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		s.observe(endpoint, method, http.StatusInternalServerError, start)
		return
	}
	summary := reporting.CivilianDashboard(issues, s.now())
	writeJSON(w, http.StatusOK, civilianDashboardView{CivilianSummary: summary, LatestReports: s.views(summary.LatestReports)})
	s.observe(endpoint, method, http.StatusOK, start)
}

type civilianDashboardView struct {
	reporting.CivilianSummary
	LatestReports []issueView `json:"latest_reports"`
}

type heatmapResponse struct {
	Points []reporting.HeatmapPoint `json:"points"`
	Total  int                      `json:"total"`
}

// HeatmapHandler returns map points filtered by area, category and severity.
func (s *Server) HeatmapHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "heatmap"
	const method = "GET"

	q := r.URL.Query()
	enums, msg := parseEnumFilters(q)
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		s.observe(endpoint, method, http.StatusBadRequest, start)
		return
	}
	f := models.IssueFilter{
		Area:     strings.TrimSpace(q.Get("area")),
		Category: enums.Category,
		Severity: enums.Severity,
	}
	issues, err := s.Store.AllIssues(r.Context(), f)
	if err != nil {
		s.logger(r).Error("load heatmap issues", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		s.observe(endpoint, method, http.StatusInternalServerError, start)
		return
	}
	points := reporting.HeatmapPoints(issues)
	writeJSON(w, http.StatusOK, heatmapResponse{Points: points, Total: len(points)})
	s.observe(endpoint, method, http.StatusOK, start)
}

// HeatmapOptionsHandler returns the filter choices shown next to the map.
func (s *Server) HeatmapOptionsHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "heatmap_options"
	const method = "GET"

	opts, err := cached(r.Context(), s, r, "heatmap_options", func() (reporting.HeatmapOptions, error) {
		issues, err := s.Store.AllIssues(r.Context(), models.IssueFilter{})
		if err != nil {
			return reporting.HeatmapOptions{}, err
		}
		return reporting.BuildHeatmapOptions(issues), nil
	})
	if err != nil {
		s.logger(r).Error("build heatmap options", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		s.observe(endpoint, method, http.StatusInternalServerError, start)
		return
	}
	writeJSON(w, http.StatusOK, opts)
	s.observe(endpoint, method, http.StatusOK, start)
}

// HazardAlertsHandler lists active high severity issues near lat/lng.
func (s *Server) HazardAlertsHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "hazard_alerts"
	const method = "GET"

	fail := func(status int, msg string) {
		writeError(w, status, msg)
		s.observe(endpoint, method, status, start)
	}

	q := r.URL.Query()
	latRaw, lngRaw := q.Get("lat"), q.Get("lng")
	if latRaw == "" || lngRaw == "" {
		fail(http.StatusBadRequest, "Latitude and longitude are required")
		return
	}
	lat, err1 := strconv.ParseFloat(latRaw, 64)
	lng, err2 := strconv.ParseFloat(lngRaw, 64)
	if err1 != nil || err2 != nil || !geo.ValidCoordinates(lat, lng) {
		fail(http.StatusBadRequest, "Invalid coordinates")
		return
	}
	radius := reporting.DefaultAlertRadius
	if v := q.Get("radius"); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil || parsed <= 0 {
			fail(http.StatusBadRequest, "Invalid radius")
			return
		}
		radius = parsed
	}

	issues, err := s.Store.AllIssues(r.Context(), reporting.AlertFilter())
	if err != nil {
		s.logger(r).Error("load hazard issues", zap.Error(err))
		fail(http.StatusInternalServerError, "internal error")
		return
	}
	resp := reporting.HazardAlerts(issues, lat, lng, radius, s.now())
	for _, h := range resp.Hazards {
		s.Metrics.IncrementHazardAlerts(string(h.AlertLevel))
	}
	writeJSON(w, http.StatusOK, resp)
	s.observe(endpoint, method, http.StatusOK, start)
}
