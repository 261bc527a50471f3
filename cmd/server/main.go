package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/patrickwarner/civicreport/internal/analytics"
	"github.com/patrickwarner/civicreport/internal/api"
	"github.com/patrickwarner/civicreport/internal/config"
	"github.com/patrickwarner/civicreport/internal/db"
	"github.com/patrickwarner/civicreport/internal/geoip"
	"github.com/patrickwarner/civicreport/internal/maintenance"
	"github.com/patrickwarner/civicreport/internal/media"
	"github.com/patrickwarner/civicreport/internal/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := observability.InitLogger(cfg.ServiceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if err := logger.Sync(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to sync logger: %v\n", err)
		}
	}()

	if err := run(logger, cfg); err != nil {
		logger.Error("server error", zap.Error(err))
		os.Exit(1)
	}
}

func run(logger *zap.Logger, cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEnabled {
		shutdown, err := observability.InitTracing(ctx, logger, cfg.ServiceName, cfg.TempoEndpoint, cfg.TracingSampleRate)
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		defer shutdown()
	}

	var store db.Store
	if cfg.UseMemoryStore() {
		logger.Warn("using in-memory store, reports are lost on restart")
		store = db.NewMemoryStore()
	} else {
		pg, err := db.InitPostgres(ctx, cfg.PostgresDSN, db.PoolConfig{
			MaxOpenConns:    cfg.DBMaxOpenConns,
			MaxIdleConns:    cfg.DBMaxIdleConns,
			ConnMaxLifetime: cfg.DBConnMaxLifetime,
			ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
		})
		if err != nil {
			return fmt.Errorf("failed to connect postgres: %w", err)
		}
		defer pg.Close()
		store = pg
	}

	var storage media.Storage
	switch cfg.MediaBackend {
	case "gcs":
		gcs, err := media.NewGCSStorage(ctx, cfg.GCSBucket, cfg.GCSCredentialsFile)
		if err != nil {
			return fmt.Errorf("init gcs storage: %w", err)
		}
		defer func() { _ = gcs.Close() }()
		storage = gcs
	default:
		local, err := media.NewLocalStorage(cfg.MediaRoot, cfg.MediaURL)
		if err != nil {
			return fmt.Errorf("init media root: %w", err)
		}
		storage = local
	}

	metricsRegistry := observability.NewPrometheusRegistry()

	srv, err := api.NewServer(cfg, logger, store, storage, metricsRegistry)
	if err != nil {
		return err
	}

	if cfg.RedisAddr != "" {
		rs, err := db.InitRedis(ctx, cfg.RedisAddr)
		if err != nil {
			return fmt.Errorf("failed to connect redis: %w", err)
		}
		defer rs.Close()
		srv.Redis = rs
	}

	if cfg.ClickHouseDSN != "" {
		ch, err := analytics.InitClickHouse(ctx, cfg.ClickHouseDSN, logger)
		if err != nil {
			return fmt.Errorf("failed to connect clickhouse: %w", err)
		}
		defer ch.Close()
		srv.Analytics = ch
	}

	if cfg.GeoIPDB != "" {
		geo, err := geoip.Open(cfg.GeoIPDB)
		if err != nil {
			return fmt.Errorf("failed to load geoip db: %w", err)
		}
		defer func() { _ = geo.Close() }()
		srv.GeoIP = geo
	}

	if srv.Detector.Enabled() {
		srv.Detector.StartCacheCleanup(ctx, 10*time.Minute)
		logger.Info("hazard detector enabled",
			zap.String("detector_url", cfg.DetectorURL),
			zap.Duration("timeout", cfg.DetectorTimeout),
			zap.Duration("cache_ttl", cfg.DetectorCacheTTL))
	}
	srv.Limiter.StartSweeper(ctx, 5*time.Minute, time.Hour)

	sched := maintenance.New(store, maintenance.Config{
		Schedule:       cfg.MaintenanceSchedule,
		AutoCloseAfter: cfg.AutoCloseAfter,
	}, logger, metricsRegistry)
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start maintenance: %w", err)
	}

	r := srv.Router()
	r.Handle("/metrics", promhttp.Handler())

	addr := ":" + cfg.Port
	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      otelhttp.NewHandler(r, "civicreport"),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	logger.Info("civic report server running",
		zap.String("addr", addr),
		zap.String("media_backend", cfg.MediaBackend),
		zap.Float64("max_video_seconds", cfg.MaxVideoSeconds))

	errCh := make(chan error, 1)
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("listen: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}
