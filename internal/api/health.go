package api

import (
	"context"
	"net/http"
	"time"

	"github.com/patrickwarner/civicreport/internal/models"
)

type healthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components,omitempty"`
}

// HealthHandler reports liveness plus the state of optional backends.
// Only a failing primary store makes the service unhealthy.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "health"
	const method = "GET"

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := healthResponse{Status: "ok", Components: map[string]string{}}
	status := http.StatusOK
	if _, err := s.Store.ListIssues(ctx, models.IssueFilter{PerPage: 1}); err != nil {
		resp.Status = "unavailable"
		resp.Components["store"] = err.Error()
		status = http.StatusServiceUnavailable
	} else {
		resp.Components["store"] = "ok"
	}
	if s.Redis != nil {
		if err := s.Redis.Client.Ping(ctx).Err(); err != nil {
			resp.Components["redis"] = err.Error()
		} else {
			resp.Components["redis"] = "ok"
		}
	}
	if s.Detector.Enabled() {
		if err := s.Detector.HealthCheck(ctx); err != nil {
			resp.Components["detector"] = err.Error()
		} else {
			resp.Components["detector"] = "ok"
		}
	}

	writeJSON(w, status, resp)
	s.observe(endpoint, method, status, start)
}
