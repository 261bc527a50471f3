package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds application configuration derived from environment variables.
type Config struct {
	Port         string        `env:"PORT" envDefault:"8787"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"60s"`
	ServiceName  string        `env:"SERVICE_NAME" envDefault:"civicreport"`
	// PublicBaseURL resolves relative media URLs for external callers such as the detector.
	PublicBaseURL string `env:"PUBLIC_BASE_URL"`

	// POSTGRES_DSN=memory runs against the in-process store.
	PostgresDSN       string        `env:"POSTGRES_DSN" envDefault:"postgres://postgres@127.0.0.1:5432/civicreport?sslmode=disable"`
	DBMaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	DBMaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	DBConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"5m"`
	DBConnMaxIdleTime time.Duration `env:"DB_CONN_MAX_IDLE_TIME" envDefault:"1m"`

	RedisAddr     string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	StatsCacheTTL time.Duration `env:"STATS_CACHE_TTL" envDefault:"30s"`
	ClickHouseDSN string        `env:"CLICKHOUSE_DSN"`
	GeoIPDB       string        `env:"GEOIP_DB"`

	JWTSecret  string        `env:"JWT_SECRET"`
	SessionTTL time.Duration `env:"SESSION_TTL" envDefault:"24h"`

	// Media storage. MediaURL is the public prefix that local media is served under.
	MediaBackend       string        `env:"MEDIA_BACKEND" envDefault:"local"`
	MediaRoot          string        `env:"MEDIA_ROOT" envDefault:"media"`
	MediaURL           string        `env:"MEDIA_URL" envDefault:"/media/"`
	GCSBucket          string        `env:"GCS_BUCKET"`
	GCSCredentialsFile string        `env:"GOOGLE_APPLICATION_CREDENTIALS"`
	MediaSigningSecret string        `env:"MEDIA_SIGNING_SECRET"`
	MediaLinkTTL       time.Duration `env:"MEDIA_LINK_TTL" envDefault:"15m"`
	MaxUploadBytes     int64         `env:"MAX_UPLOAD_BYTES" envDefault:"52428800"`

	MaxVideoSeconds       float64 `env:"MAX_VIDEO_SECONDS" envDefault:"6"`
	RejectUnknownDuration bool    `env:"REJECT_UNKNOWN_DURATION" envDefault:"false"`
	FFProbePath           string  `env:"FFPROBE_PATH"`

	DetectorURL           string        `env:"DETECTOR_URL"`
	DetectorTimeout       time.Duration `env:"DETECTOR_TIMEOUT" envDefault:"10s"`
	DetectorCacheTTL      time.Duration `env:"DETECTOR_CACHE_TTL" envDefault:"10m"`
	DetectorRequireHazard bool          `env:"DETECTOR_REQUIRE_HAZARD" envDefault:"false"`

	RateLimitEnabled    bool `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	RateLimitCapacity   int  `env:"RATE_LIMIT_CAPACITY" envDefault:"10"`
	RateLimitRefillRate int  `env:"RATE_LIMIT_REFILL_RATE" envDefault:"1"`
	DailyReportLimit    int  `env:"DAILY_REPORT_LIMIT" envDefault:"50"`

	AutoCloseAfter      time.Duration `env:"AUTO_CLOSE_AFTER" envDefault:"720h"`
	MaintenanceSchedule string        `env:"MAINTENANCE_SCHEDULE" envDefault:"@hourly"`

	TracingEnabled    bool    `env:"TRACING_ENABLED" envDefault:"false"`
	TempoEndpoint     string  `env:"TEMPO_ENDPOINT" envDefault:"tempo:4317"`
	TracingSampleRate float64 `env:"TRACING_SAMPLE_RATE" envDefault:"1.0"`
}

// Load reads an optional .env file and parses environment variables into a
// Config. Variables already present in the environment win over the file.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load dotenv: %w", err)
	}
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects combinations that cannot work at runtime.
func (c Config) Validate() error {
	switch c.MediaBackend {
	case "local":
	case "gcs":
		if c.GCSBucket == "" {
			return errors.New("config: GCS_BUCKET is required when MEDIA_BACKEND=gcs")
		}
	default:
		return fmt.Errorf("config: unknown MEDIA_BACKEND %q", c.MediaBackend)
	}
	if c.MaxVideoSeconds <= 0 {
		return errors.New("config: MAX_VIDEO_SECONDS must be positive")
	}
	if c.MaxUploadBytes <= 0 {
		return errors.New("config: MAX_UPLOAD_BYTES must be positive")
	}
	if !strings.HasPrefix(c.MediaURL, "/") || !strings.HasSuffix(c.MediaURL, "/") {
		return fmt.Errorf("config: MEDIA_URL %q must start and end with /", c.MediaURL)
	}
	return nil
}

// UseMemoryStore reports whether the in-process store was requested.
func (c Config) UseMemoryStore() bool {
	return c.PostgresDSN == "memory"
}
