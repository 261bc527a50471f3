// Package maintenance runs periodic housekeeping jobs against the issue store.
package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/patrickwarner/civicreport/internal/db"
	"github.com/patrickwarner/civicreport/internal/models"
	"github.com/patrickwarner/civicreport/internal/observability"
)

// Config controls job timing.
type Config struct {
	// Schedule is a cron spec or descriptor such as "@hourly".
	Schedule string
	// AutoCloseAfter is how long an issue stays resolved before it is closed.
	// Zero disables auto-close.
	AutoCloseAfter time.Duration
}

// Scheduler owns the cron runner and its jobs.
type Scheduler struct {
	store   db.IssueStore
	logger  *zap.Logger
	metrics observability.MetricsRegistry
	config  Config
	now     func() time.Time
	cron    *cron.Cron
}

// New builds a scheduler. Jobs are registered by Start.
func New(store db.IssueStore, config Config, logger *zap.Logger, metrics observability.MetricsRegistry) *Scheduler {
	cronLogger := cron.PrintfLogger(zap.NewStdLog(logger.Named("cron")))
	return &Scheduler{
		store:   store,
		logger:  logger,
		metrics: metrics,
		config:  config,
		now:     time.Now,
		cron: cron.New(
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
	}
}

// Start registers the jobs and runs them until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.config.Schedule, func() { s.runAutoClose(ctx) }); err != nil {
		return fmt.Errorf("schedule auto-close %q: %w", s.config.Schedule, err)
	}
	if _, err := s.cron.AddFunc(s.config.Schedule, func() { s.runStats(ctx) }); err != nil {
		return fmt.Errorf("schedule stats %q: %w", s.config.Schedule, err)
	}
	s.cron.Start()
	go func() {
		<-ctx.Done()
		<-s.cron.Stop().Done()
		s.logger.Info("maintenance scheduler stopped")
	}()
	s.logger.Info("maintenance scheduler started",
		zap.String("schedule", s.config.Schedule),
		zap.Duration("auto_close_after", s.config.AutoCloseAfter))
	return nil
}

// AutoClose closes issues that have been resolved for longer than AutoCloseAfter.
func (s *Scheduler) AutoClose(ctx context.Context) (int, error) {
	if s.config.AutoCloseAfter <= 0 {
		return 0, nil
	}
	cutoff := s.now().Add(-s.config.AutoCloseAfter)
	n, err := s.store.CloseResolvedBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("auto-close: %w", err)
	}
	for i := 0; i < n; i++ {
		s.metrics.IncrementStatusChanges(string(models.StatusClosed))
	}
	return n, nil
}

// Stats counts issues per status.
func (s *Scheduler) Stats(ctx context.Context) (map[models.Status]int, error) {
	issues, err := s.store.AllIssues(ctx, models.IssueFilter{})
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	counts := make(map[models.Status]int, len(models.StatusChoices))
	for _, c := range models.StatusChoices {
		counts[models.Status(c.Value)] = 0
	}
	for _, r := range issues {
		counts[r.Status]++
	}
	return counts, nil
}

func (s *Scheduler) runAutoClose(ctx context.Context) {
	n, err := s.AutoClose(ctx)
	if err != nil {
		s.logger.Error("auto-close failed", zap.Error(err))
		return
	}
	if n > 0 {
		s.logger.Info("auto-closed resolved issues", zap.Int("count", n))
	}
}

func (s *Scheduler) runStats(ctx context.Context) {
	counts, err := s.Stats(ctx)
	if err != nil {
		s.logger.Error("issue stats failed", zap.Error(err))
		return
	}
	s.logger.Info("issue stats",
		zap.Int("pending", counts[models.StatusPending]),
		zap.Int("in_progress", counts[models.StatusInProgress]),
		zap.Int("resolved", counts[models.StatusResolved]),
		zap.Int("closed", counts[models.StatusClosed]))
}
