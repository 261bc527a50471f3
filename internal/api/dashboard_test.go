package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patrickwarner/civicreport/internal/geo"
	"github.com/patrickwarner/civicreport/internal/models"
	"github.com/patrickwarner/civicreport/internal/reporting"
)

func seedIssue(t *testing.T, env *testEnv, r models.IssueReport) models.IssueReport {
	t.Helper()
	if r.Title == "" {
		r.Title = "Seeded issue"
	}
	if r.Category == "" {
		r.Category = models.CategoryPothole
	}
	if r.Description == "" {
		r.Description = "seeded"
	}
	if r.Location == "" {
		r.Location = "Soweto, Gauteng"
	}
	require.NoError(t, env.store.CreateIssue(t.Context(), &r))
	return r
}

func ptr(f float64) *float64 { return &f }

func TestDashboard(t *testing.T) {
	env := newTestEnv(t)
	u, tok := env.user(t, "amahle", false)
	seedIssue(t, env, models.IssueReport{ReporterID: &u.ID, Category: models.CategoryWater})
	seedIssue(t, env, models.IssueReport{ReporterID: &u.ID, Category: models.CategoryPothole, Status: models.StatusResolved})
	seedIssue(t, env, models.IssueReport{Category: models.CategoryWaste})

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/dashboard", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, decode[reporting.CivilianSummary](t, rec).TotalReports)

	rec = env.do(withBearer(httptest.NewRequest(http.MethodGet, "/api/dashboard", nil), tok))
	require.Equal(t, http.StatusOK, rec.Code)
	summary := decode[reporting.CivilianSummary](t, rec)
	assert.Equal(t, 2, summary.TotalReports)
	assert.Equal(t, 2, summary.RecentReports)
	assert.Equal(t, 1, summary.StatusStats[string(models.StatusResolved)].Count)
	assert.Equal(t, 1, summary.CategoryStats[string(models.CategoryWater)].Count)
	assert.Len(t, summary.LatestReports, 2)

	views := decode[civilianDashboardView](t, rec)
	require.Len(t, views.LatestReports, 2)
	for _, v := range views.LatestReports {
		assert.NotEmpty(t, v.CategoryDisplay)
		assert.NotEmpty(t, v.StatusDisplay)
	}
}

func TestDashboardLatestReportsCarryMediaLinks(t *testing.T) {
	env := newTestEnv(t)
	u, tok := env.user(t, "sipho", false)
	r := seedIssue(t, env, models.IssueReport{ReporterID: &u.ID})
	require.NoError(t, env.store.AttachMedia(t.Context(), r.ID, models.MediaImage,
		models.MediaRef{Key: "issues/images/a.png", ContentType: "image/png", Size: 3}, ""))

	rec := env.do(withBearer(httptest.NewRequest(http.MethodGet, "/api/dashboard", nil), tok))
	require.Equal(t, http.StatusOK, rec.Code)
	views := decode[civilianDashboardView](t, rec)
	require.Len(t, views.LatestReports, 1)
	assert.Equal(t, "/media/issues/images/a.png", views.LatestReports[0].ImageURL)
	assert.True(t, views.LatestReports[0].HasImage)
	assert.NotContains(t, rec.Body.String(), `"key"`)
}

func TestHeatmap(t *testing.T) {
	env := newTestEnv(t)
	seedIssue(t, env, models.IssueReport{Location: "Sandton, Gauteng", Severity: models.SeverityHigh})
	seedIssue(t, env, models.IssueReport{Location: "Durban, KwaZulu-Natal", Category: models.CategoryWater})

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/heatmap", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, decode[heatmapResponse](t, rec).Total)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/heatmap?severity=high", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[heatmapResponse](t, rec)
	require.Equal(t, 1, resp.Total)
	assert.Equal(t, "High", resp.Points[0].Severity)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/heatmap?category=water", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[heatmapResponse](t, rec).Total)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/heatmap?severity=extreme", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid severity.", decode[errorResponse](t, rec).Error)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/heatmap?category=graffiti", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid category.", decode[errorResponse](t, rec).Error)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/heatmap/options", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	opts := decode[reporting.HeatmapOptions](t, rec)
	assert.NotEmpty(t, opts.Categories)
}

func TestHazardAlertsValidation(t *testing.T) {
	env := newTestEnv(t)
	cases := []struct {
		query string
		msg   string
	}{
		{"", "Latitude and longitude are required"},
		{"?lat=-26.2", "Latitude and longitude are required"},
		{"?lat=abc&lng=28", "Invalid coordinates"},
		{"?lat=95&lng=28", "Invalid coordinates"},
		{"?lat=-26.2&lng=28&radius=-5", "Invalid radius"},
	}
	for _, tc := range cases {
		rec := env.do(httptest.NewRequest(http.MethodGet, "/api/hazard-alerts"+tc.query, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, tc.query)
		assert.Equal(t, tc.msg, decode[errorResponse](t, rec).Error, tc.query)
	}
}

func TestHazardAlerts(t *testing.T) {
	env := newTestEnv(t)
	lat, lng := -26.2041, 28.0473
	near := seedIssue(t, env, models.IssueReport{Title: "Open manhole", Severity: models.SeverityCritical, Latitude: ptr(lat + 0.0003), Longitude: ptr(lng)})
	seedIssue(t, env, models.IssueReport{Title: "Minor crack", Severity: models.SeverityLow, Latitude: ptr(lat), Longitude: ptr(lng)})
	seedIssue(t, env, models.IssueReport{Title: "Fixed", Severity: models.SeverityHigh, Status: models.StatusResolved, Latitude: ptr(lat), Longitude: ptr(lng)})
	seedIssue(t, env, models.IssueReport{Title: "Far away", Severity: models.SeverityHigh, Latitude: ptr(-33.9249), Longitude: ptr(18.4241)})

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/hazard-alerts?lat=-26.2041&lng=28.0473", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[reporting.HazardResponse](t, rec)
	require.Len(t, resp.Hazards, 1)
	assert.Equal(t, near.ID, resp.Hazards[0].ID)
	assert.Equal(t, geo.LevelImmediate, resp.Hazards[0].AlertLevel)
	assert.InDelta(t, 33, resp.Hazards[0].Distance, 1)
	assert.Equal(t, reporting.DefaultAlertRadius, resp.Radius)
}
