package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/patrickwarner/civicreport/internal/config"
	"github.com/patrickwarner/civicreport/internal/db"
	"github.com/patrickwarner/civicreport/internal/models"
	"github.com/patrickwarner/civicreport/internal/observability"
)

var (
	force = flag.Bool("force", false, "seed even when reports already exist")
	seed  = flag.Int64("seed", time.Now().UnixNano(), "rng seed")
)

const (
	sampleUsername = "sample_user"
	sampleEmail    = "sample@example.com"
)

type sampleReport struct {
	title, description, location string
	category                     models.Category
	severity                     models.Severity
}

// One or more reports per province.
var sampleReports = []sampleReport{
	{"Large pothole on N1 highway", "Deep pothole causing traffic delays and vehicle damage", "Cape Town, Western Cape", models.CategoryPothole, models.SeverityHigh},
	{"Broken streetlight on Long Street", "Streetlight not working for 3 days, safety concern", "Cape Town, Western Cape", models.CategoryStreetlight, models.SeverityMedium},
	{"Garbage collection missed", "Residential area garbage not collected for 2 weeks", "Stellenbosch, Western Cape", models.CategoryWaste, models.SeverityMedium},
	{"Water leak on main road", "Major water leak causing flooding and traffic disruption", "Johannesburg, Gauteng", models.CategoryWater, models.SeverityCritical},
	{"Multiple potholes on M1", "Several large potholes on M1 highway causing accidents", "Johannesburg, Gauteng", models.CategoryPothole, models.SeverityHigh},
	{"Sewage overflow", "Sewage overflow in residential area, health hazard", "Pretoria, Gauteng", models.CategoryWater, models.SeverityCritical},
	{"Faulty traffic lights", "Traffic lights not working at busy intersection", "Durban, KwaZulu-Natal", models.CategoryOther, models.SeverityHigh},
	{"Waste dumping site", "Illegal waste dumping in public park", "Pietermaritzburg, KwaZulu-Natal", models.CategoryWaste, models.SeverityHigh},
	{"Road surface damage", "Road surface severely damaged after heavy rains", "Port Elizabeth, Eastern Cape", models.CategoryPothole, models.SeverityMedium},
	{"Water supply interruption", "No water supply for 3 days in residential area", "East London, Eastern Cape", models.CategoryWater, models.SeverityCritical},
	{"Streetlight maintenance needed", "Several streetlights need maintenance", "Bloemfontein, Free State", models.CategoryStreetlight, models.SeverityLow},
	{"Garbage collection issue", "Inconsistent garbage collection service", "Rustenburg, North West", models.CategoryWaste, models.SeverityMedium},
	{"Road repair needed", "Road needs repair after storm damage", "Nelspruit, Mpumalanga", models.CategoryPothole, models.SeverityMedium},
	{"Water quality concern", "Residents reporting brown water from taps", "Polokwane, Limpopo", models.CategoryWater, models.SeverityHigh},
	{"Street maintenance", "Street cleaning and maintenance needed", "Kimberley, Northern Cape", models.CategoryOther, models.SeverityLow},
}

var seedStatuses = []models.Status{models.StatusPending, models.StatusInProgress, models.StatusResolved}

func main() {
	flag.Parse()

	logger, err := observability.InitLogger("civicreport-sample-data")
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
	pg, err := db.InitPostgres(ctx, cfg.PostgresDSN, db.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
	})
	if err != nil {
		logger.Fatal("connect postgres", zap.Error(err))
	}
	defer pg.Close()

	n, err := seedReports(ctx, pg, rand.New(rand.NewSource(*seed)), time.Now(), *force)
	if err != nil {
		logger.Fatal("seed sample reports", zap.Error(err))
	}
	if n == 0 {
		logger.Info("reports already exist, nothing seeded (use -force to seed anyway)")
		return
	}
	logger.Info("sample reports created", zap.Int("count", n))
}

// seedReports inserts the sample reports for the sample user and returns how
// many were created.
func seedReports(ctx context.Context, store db.Store, r *rand.Rand, now time.Time, force bool) (int, error) {
	if !force {
		existing, err := store.ListIssues(ctx, models.IssueFilter{PerPage: 1})
		if err != nil {
			return 0, fmt.Errorf("count reports: %w", err)
		}
		if existing.Total > 0 {
			return 0, nil
		}
	}

	user, err := sampleUser(ctx, store)
	if err != nil {
		return 0, err
	}
	for i, s := range sampleReports {
		daysAgo := 1 + r.Intn(30)
		report := models.IssueReport{
			ReporterID:  &user.ID,
			Title:       s.title,
			Category:    s.category,
			Description: s.description,
			Location:    s.location,
			Severity:    s.severity,
			Status:      seedStatuses[r.Intn(len(seedStatuses))],
			CreatedAt:   now.Add(-time.Duration(daysAgo) * 24 * time.Hour).UTC(),
		}
		if err := store.CreateIssue(ctx, &report); err != nil {
			return i, fmt.Errorf("insert %q: %w", s.title, err)
		}
	}
	return len(sampleReports), nil
}

func sampleUser(ctx context.Context, store db.UserStore) (models.User, error) {
	u, err := store.GetUserByUsername(ctx, sampleUsername)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return models.User{}, fmt.Errorf("load sample user: %w", err)
	}
	// No password hash: the sample account cannot sign in.
	u = models.User{Username: sampleUsername, Email: sampleEmail}
	if err := store.CreateUser(ctx, &u); err != nil {
		return models.User{}, fmt.Errorf("create sample user: %w", err)
	}
	return u, nil
}
