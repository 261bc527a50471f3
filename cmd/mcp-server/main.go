package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/patrickwarner/civicreport/internal/config"
	"github.com/patrickwarner/civicreport/internal/db"
	"github.com/patrickwarner/civicreport/internal/geo"
	"github.com/patrickwarner/civicreport/internal/models"
	"github.com/patrickwarner/civicreport/internal/reporting"
)

type ListIssuesInput struct {
	Status   string `json:"status,omitempty" jsonschema:"workflow status: pending, in_progress, resolved or closed"`
	Category string `json:"category,omitempty" jsonschema:"issue category such as pothole or water"`
	Severity string `json:"severity,omitempty" jsonschema:"severity: low, medium, high or critical"`
	Search   string `json:"search,omitempty" jsonschema:"free text matched against title, description, location and reporter"`
	Area     string `json:"area,omitempty" jsonschema:"area or province contained in the location"`
	Page     int    `json:"page,omitempty" jsonschema:"1-based page number"`
}

type IssueSummary struct {
	ID       int64  `json:"id"`
	Title    string `json:"title"`
	Category string `json:"category"`
	Status   string `json:"status"`
	Severity string `json:"severity"`
	Location string `json:"location"`
	Reporter string `json:"reporter,omitempty"`
	HasImage bool   `json:"has_image"`
	HasVideo bool   `json:"has_video"`
	Created  string `json:"created_at"`
}

type ListIssuesOutput struct {
	Issues     []IssueSummary `json:"issues"`
	Total      int            `json:"total"`
	Page       int            `json:"page"`
	TotalPages int            `json:"total_pages"`
}

type GetIssueInput struct {
	ID int64 `json:"id" jsonschema:"report id"`
}

type IssueDetail struct {
	IssueSummary
	Description    string   `json:"description"`
	Latitude       float64  `json:"latitude"`
	Longitude      float64  `json:"longitude"`
	VideoSeconds   *float64 `json:"video_seconds,omitempty"`
	AnnotatedImage string   `json:"annotated_image,omitempty"`
}

type HazardAlertsInput struct {
	Lat    float64 `json:"lat" jsonschema:"latitude of the caller"`
	Lng    float64 `json:"lng" jsonschema:"longitude of the caller"`
	Radius float64 `json:"radius,omitempty" jsonschema:"search radius in metres, defaults to 1000"`
}

type HazardAlertsOutput struct {
	Hazards []reporting.Hazard `json:"hazards"`
	Radius  float64            `json:"radius"`
}

type IssueStatsOutput struct {
	Total      int            `json:"total"`
	ByStatus   map[string]int `json:"by_status"`
	ByCategory map[string]int `json:"by_category"`
	WithMedia  int            `json:"with_media"`
}

// IssueTools exposes read-only issue queries to MCP clients.
type IssueTools struct {
	store  db.Store
	logger *zap.Logger
	now    func() time.Time
}

func summarize(r models.IssueReport) IssueSummary {
	return IssueSummary{
		ID:       r.ID,
		Title:    r.Title,
		Category: r.Category.Display(),
		Status:   r.Status.Display(),
		Severity: r.Severity.Display(),
		Location: r.Location,
		Reporter: r.Reporter,
		HasImage: r.Image != nil,
		HasVideo: r.Video != nil,
		Created:  r.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// ListIssues implements the list_issues tool.
func (t *IssueTools) ListIssues(ctx context.Context, _ *mcp.CallToolRequest, in ListIssuesInput) (*mcp.CallToolResult, ListIssuesOutput, error) {
	p, err := t.store.ListIssues(ctx, models.IssueFilter{
		Status:   models.Status(in.Status),
		Category: models.Category(in.Category),
		Severity: models.Severity(in.Severity),
		Search:   in.Search,
		Area:     in.Area,
		Page:     in.Page,
		PerPage:  models.DefaultPerPage,
	})
	if err != nil {
		return nil, ListIssuesOutput{}, fmt.Errorf("list issues: %w", err)
	}
	out := ListIssuesOutput{Issues: make([]IssueSummary, 0, len(p.Items)), Total: p.Total, Page: p.Page, TotalPages: p.TotalPages}
	for _, r := range p.Items {
		out.Issues = append(out.Issues, summarize(r))
	}
	t.logger.Debug("list_issues", zap.Int("total", p.Total), zap.Int("page", p.Page))
	return nil, out, nil
}

// GetIssue implements the get_issue tool.
func (t *IssueTools) GetIssue(ctx context.Context, _ *mcp.CallToolRequest, in GetIssueInput) (*mcp.CallToolResult, IssueDetail, error) {
	r, err := t.store.GetIssue(ctx, in.ID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, IssueDetail{}, fmt.Errorf("report %d not found", in.ID)
	}
	if err != nil {
		return nil, IssueDetail{}, fmt.Errorf("get issue: %w", err)
	}
	lat, lng := geo.Coordinates(r.Location, r.Latitude, r.Longitude)
	d := IssueDetail{
		IssueSummary:   summarize(r),
		Description:    r.Description,
		Latitude:       lat,
		Longitude:      lng,
		AnnotatedImage: r.AnnotatedImage,
	}
	if r.Video != nil {
		d.VideoSeconds = r.Video.DurationSeconds
	}
	return nil, d, nil
}

// HazardAlerts implements the hazard_alerts tool.
func (t *IssueTools) HazardAlerts(ctx context.Context, _ *mcp.CallToolRequest, in HazardAlertsInput) (*mcp.CallToolResult, HazardAlertsOutput, error) {
	if !geo.ValidCoordinates(in.Lat, in.Lng) {
		return nil, HazardAlertsOutput{}, errors.New("invalid coordinates")
	}
	radius := in.Radius
	if radius <= 0 {
		radius = reporting.DefaultAlertRadius
	}
	issues, err := t.store.AllIssues(ctx, reporting.AlertFilter())
	if err != nil {
		return nil, HazardAlertsOutput{}, fmt.Errorf("load hazards: %w", err)
	}
	resp := reporting.HazardAlerts(issues, in.Lat, in.Lng, radius, t.now())
	return nil, HazardAlertsOutput{Hazards: resp.Hazards, Radius: resp.Radius}, nil
}

// IssueStats implements the issue_stats tool.
func (t *IssueTools) IssueStats(ctx context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, IssueStatsOutput, error) {
	issues, err := t.store.AllIssues(ctx, models.IssueFilter{})
	if err != nil {
		return nil, IssueStatsOutput{}, fmt.Errorf("load issues: %w", err)
	}
	out := IssueStatsOutput{Total: len(issues), ByStatus: map[string]int{}, ByCategory: map[string]int{}}
	for _, r := range issues {
		out.ByStatus[string(r.Status)]++
		out.ByCategory[string(r.Category)]++
		if r.HasMedia() {
			out.WithMedia++
		}
	}
	return nil, out, nil
}

func newServer(tools *IssueTools) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: "civicreport", Version: "1.0.0"}, nil)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_issues",
		Description: "List civic issue reports with optional filters, newest first",
	}, tools.ListIssues)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_issue",
		Description: "Fetch one civic issue report by id",
	}, tools.GetIssue)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "hazard_alerts",
		Description: "List active high and critical severity hazards near a location",
	}, tools.HazardAlerts)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "issue_stats",
		Description: "Count reports by status and category",
	}, tools.IssueStats)
	return server
}

// stderrLogger keeps stdout free for the stdio transport.
func stderrLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.MessageKey = "msg"
	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.Named("civicreport-mcp").With(zap.String("service", "civicreport-mcp")), nil
}

func main() {
	logger, err := stderrLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	var store db.Store
	if cfg.UseMemoryStore() {
		store = db.NewMemoryStore()
	} else {
		pg, err := db.InitPostgres(ctx, cfg.PostgresDSN, db.PoolConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			ConnMaxIdleTime: time.Minute,
		})
		if err != nil {
			logger.Fatal("failed to connect to postgres", zap.Error(err))
		}
		defer pg.Close()
		store = pg
	}

	server := newServer(&IssueTools{store: store, logger: logger, now: time.Now})
	logger.Info("MCP server running via stdio")
	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
