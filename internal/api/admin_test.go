package api

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patrickwarner/civicreport/internal/analytics"
	"github.com/patrickwarner/civicreport/internal/config"
	"github.com/patrickwarner/civicreport/internal/db"
	"github.com/patrickwarner/civicreport/internal/models"
	"github.com/patrickwarner/civicreport/internal/reporting"
)

func TestAdminRequiresStaff(t *testing.T) {
	env := newTestEnv(t)
	_, tok := env.user(t, "citizen", false)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/admin/issues", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(withBearer(httptest.NewRequest(http.MethodGet, "/api/admin/issues", nil), tok))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "staff access required", decode[errorResponse](t, rec).Error)
}

func TestAdminIssuesPagination(t *testing.T) {
	env := newTestEnv(t)
	_, tok := env.user(t, "ops", true)
	for i := 0; i < models.DefaultPerPage+5; i++ {
		seedIssue(t, env, models.IssueReport{Title: fmt.Sprintf("Issue %d", i)})
	}
	seedIssue(t, env, models.IssueReport{Title: "Burst pipe", Category: models.CategoryWater})

	rec := env.do(withBearer(httptest.NewRequest(http.MethodGet, "/api/admin/issues", nil), tok))
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[adminIssueList](t, rec)
	assert.Equal(t, models.DefaultPerPage+6, list.Total)
	assert.Len(t, list.Issues, models.DefaultPerPage)
	assert.Equal(t, 1, list.Page)
	assert.Equal(t, 2, list.TotalPages)
	assert.False(t, list.HasPrevious)
	assert.Nil(t, list.PreviousPage)
	require.NotNil(t, list.NextPage)
	assert.Equal(t, 2, *list.NextPage)
	assert.Len(t, list.StatusChoices, len(models.StatusChoices))

	rec = env.do(withBearer(httptest.NewRequest(http.MethodGet, "/api/admin/issues?page=2", nil), tok))
	require.Equal(t, http.StatusOK, rec.Code)
	list = decode[adminIssueList](t, rec)
	assert.Len(t, list.Issues, 6)
	assert.True(t, list.HasPrevious)
	assert.Nil(t, list.NextPage)

	rec = env.do(withBearer(httptest.NewRequest(http.MethodGet, "/api/admin/issues?category=water&search=pipe", nil), tok))
	require.Equal(t, http.StatusOK, rec.Code)
	list = decode[adminIssueList](t, rec)
	require.Equal(t, 1, list.Total)
	assert.Equal(t, "Burst pipe", list.Issues[0].Title)
	assert.Equal(t, "water", list.Filters.Category)

	rec = env.do(withBearer(httptest.NewRequest(http.MethodGet, "/api/admin/issues?status=archived", nil), tok))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid status.", decode[errorResponse](t, rec).Error)
}

func TestAdminIssue(t *testing.T) {
	env := newTestEnv(t)
	_, tok := env.user(t, "ops", true)
	issue := seedIssue(t, env, models.IssueReport{Title: "Dark street", Category: models.CategoryStreetlight})

	rec := env.do(withBearer(httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/admin/issues/%d", issue.ID), nil), tok))
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[createdIssue](t, rec)
	assert.Equal(t, issue.ID, got.ID)
	assert.Equal(t, "Faulty streetlight", got.CategoryDisplay)

	rec = env.do(withBearer(httptest.NewRequest(http.MethodGet, "/api/admin/issues/999", nil), tok))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Report not found", decode[errorResponse](t, rec).Error)
}

func TestUpdateStatus(t *testing.T) {
	mr := miniredis.RunT(t)
	env := newTestEnv(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	env.srv.Redis = &db.RedisStore{Client: rdb}
	_, tok := env.user(t, "ops", true)
	issue := seedIssue(t, env, models.IssueReport{})

	sub := rdb.Subscribe(t.Context(), db.StatusChannel)
	defer sub.Close()
	_, err := sub.Receive(t.Context())
	require.NoError(t, err)

	target := fmt.Sprintf("/api/admin/issues/%d/status", issue.ID)
	rec := env.do(withBearer(jsonRequest(t, http.MethodPatch, target, statusRequest{Status: "in_progress"}), tok))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[statusResponse](t, rec)
	assert.True(t, resp.Success)
	assert.Equal(t, "Status updated from Pending Review to In Progress", resp.Message)
	assert.Equal(t, "in_progress", resp.NewStatus)
	assert.Equal(t, "In Progress", resp.NewStatusDisplay)

	msg, err := sub.ReceiveMessage(t.Context())
	require.NoError(t, err)
	assert.Contains(t, msg.Payload, `"status":"in_progress"`)

	stored, err := env.store.GetIssue(t.Context(), issue.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, stored.Status)

	events := env.events.Events()
	require.Len(t, events, 1)
	assert.Equal(t, analytics.EventStatusChanged, events[0].Type)
	assert.Equal(t, "pending", events[0].Previous)

	rec = env.do(withBearer(jsonRequest(t, http.MethodPatch, target, statusRequest{Status: "done"}), tok))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid status", decode[statusResponse](t, rec).Message)

	rec = env.do(withBearer(jsonRequest(t, http.MethodPatch, "/api/admin/issues/999/status", statusRequest{Status: "closed"}), tok))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminDashboardCacheInvalidation(t *testing.T) {
	mr := miniredis.RunT(t)
	env := newTestEnv(t)
	env.srv.Redis = &db.RedisStore{Client: redis.NewClient(&redis.Options{Addr: mr.Addr()})}
	_, tok := env.user(t, "ops", true)
	seedIssue(t, env, models.IssueReport{})

	get := func() reporting.AdminSummary {
		rec := env.do(withBearer(httptest.NewRequest(http.MethodGet, "/api/admin/dashboard", nil), tok))
		require.Equal(t, http.StatusOK, rec.Code)
		return decode[reporting.AdminSummary](t, rec)
	}
	assert.Equal(t, 1, get().TotalReports)

	// Direct store writes bypass invalidation, so the cached value is served.
	seedIssue(t, env, models.IssueReport{})
	assert.Equal(t, 1, get().TotalReports)

	// A report submitted through the API drops the cache.
	require.Equal(t, http.StatusCreated, env.do(multipartRequest(t, reportFields())).Code)
	assert.Equal(t, 3, get().TotalReports)

	rec := env.do(withBearer(httptest.NewRequest(http.MethodGet, "/api/admin/dashboard", nil), tok))
	require.Equal(t, http.StatusOK, rec.Code)
	view := decode[adminDashboardView](t, rec)
	require.Len(t, view.RecentReports, 3)
	assert.Equal(t, "Pothole", view.RecentReports[0].CategoryDisplay)
	assert.Equal(t, "Pending Review", view.RecentReports[0].StatusDisplay)
}

func TestIssueEvents(t *testing.T) {
	env := newTestEnv(t)
	_, tok := env.user(t, "ops", true)

	rec := env.do(multipartRequest(t, reportFields()))
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[createdIssue](t, rec).ID

	rec = env.do(withBearer(httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/admin/issues/%d/events", id), nil), tok))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[struct {
		IssueID int64             `json:"issue_id"`
		Events  []analytics.Event `json:"events"`
	}](t, rec)
	assert.Equal(t, id, body.IssueID)
	require.Len(t, body.Events, 1)
	assert.Equal(t, analytics.EventIssueReported, body.Events[0].Type)

	env.srv.Analytics = analytics.Noop{}
	rec = env.do(withBearer(httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/admin/issues/%d/events", id), nil), tok))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRateLimitStats(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) {
		c.RateLimitEnabled = true
		c.RateLimitCapacity = 5
	})
	_, tok := env.user(t, "ops", true)
	require.Equal(t, http.StatusCreated, env.do(multipartRequest(t, reportFields())).Code)

	rec := env.do(withBearer(httptest.NewRequest(http.MethodGet, "/api/admin/rate-limits", nil), tok))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "198.51.100.4")
}
