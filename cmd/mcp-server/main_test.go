package main

import (
	"context"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/patrickwarner/civicreport/internal/db"
	"github.com/patrickwarner/civicreport/internal/models"
)

func seeded(t *testing.T) *IssueTools {
	t.Helper()
	store := db.NewMemoryStore()
	lat, lng := -26.2041, 28.0473
	for _, r := range []models.IssueReport{
		{Title: "Pothole on Main Road", Category: models.CategoryPothole, Description: "deep", Location: "Soweto, Gauteng", Severity: models.SeverityCritical, Latitude: &lat, Longitude: &lng},
		{Title: "Burst pipe", Category: models.CategoryWater, Description: "flooding", Location: "Durban, KwaZulu-Natal"},
		{Title: "Broken light", Category: models.CategoryStreetlight, Description: "dark", Location: "Sandton, Gauteng", Status: models.StatusResolved},
	} {
		require.NoError(t, store.CreateIssue(context.Background(), &r))
	}
	return &IssueTools{store: store, logger: zap.NewNop(), now: time.Now}
}

func TestListIssues(t *testing.T) {
	tools := seeded(t)
	_, out, err := tools.ListIssues(context.Background(), nil, ListIssuesInput{Area: "Gauteng"})
	require.NoError(t, err)
	assert.Equal(t, 2, out.Total)
	assert.Len(t, out.Issues, 2)

	_, out, err = tools.ListIssues(context.Background(), nil, ListIssuesInput{Category: "water"})
	require.NoError(t, err)
	require.Len(t, out.Issues, 1)
	assert.Equal(t, "Burst pipe", out.Issues[0].Title)
	assert.Equal(t, "Water and sanitation", out.Issues[0].Category)
}

func TestGetIssue(t *testing.T) {
	tools := seeded(t)
	_, d, err := tools.GetIssue(context.Background(), nil, GetIssueInput{ID: 1})
	require.NoError(t, err)
	assert.Equal(t, "Pothole on Main Road", d.Title)
	assert.InDelta(t, -26.2041, d.Latitude, 1e-9)

	_, _, err = tools.GetIssue(context.Background(), nil, GetIssueInput{ID: 42})
	assert.Error(t, err)
}

func TestHazardAlertsTool(t *testing.T) {
	tools := seeded(t)
	_, out, err := tools.HazardAlerts(context.Background(), nil, HazardAlertsInput{Lat: -26.2041, Lng: 28.0473})
	require.NoError(t, err)
	require.Len(t, out.Hazards, 1)
	assert.Equal(t, int64(1), out.Hazards[0].ID)
	assert.Equal(t, 1000.0, out.Radius)

	_, _, err = tools.HazardAlerts(context.Background(), nil, HazardAlertsInput{Lat: 120, Lng: 0})
	assert.Error(t, err)
}

func TestServerOverInMemoryTransport(t *testing.T) {
	tools := seeded(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	serverSession, err := newServer(tools).Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	defer serverSession.Close()

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	defer session.Close()

	res, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      "issue_stats",
		Arguments: map[string]any{},
	})
	require.NoError(t, err)
	require.False(t, res.IsError)
	stats, ok := res.StructuredContent.(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 3, stats["total"])
}
