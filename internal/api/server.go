package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/patrickwarner/civicreport/internal/analytics"
	"github.com/patrickwarner/civicreport/internal/auth"
	"github.com/patrickwarner/civicreport/internal/config"
	"github.com/patrickwarner/civicreport/internal/db"
	"github.com/patrickwarner/civicreport/internal/detector"
	"github.com/patrickwarner/civicreport/internal/geoip"
	"github.com/patrickwarner/civicreport/internal/media"
	"github.com/patrickwarner/civicreport/internal/middleware"
	"github.com/patrickwarner/civicreport/internal/models"
	"github.com/patrickwarner/civicreport/internal/observability"
	"github.com/patrickwarner/civicreport/internal/ratelimit"
	"github.com/patrickwarner/civicreport/internal/token"
)

// SignedMediaPrefix is the route for HMAC signed media links.
const SignedMediaPrefix = "/media-signed/"

// Server groups dependencies for HTTP handlers. Redis, GeoIP and Signer are
// optional and may be nil.
type Server struct {
	Logger    *zap.Logger
	Store     db.Store
	Redis     *db.RedisStore
	Media     media.Storage
	Prober    media.DurationProber
	Detector  *detector.Client
	Analytics analytics.Recorder
	GeoIP     *geoip.GeoIP
	Limiter   *ratelimit.Limiter
	Accounts  *auth.Service
	Sessions  *auth.Sessions
	Auth      *auth.Middleware
	Signer    *token.Signer
	Metrics   observability.MetricsRegistry
	Config    config.Config

	now func() time.Time
}

// NewServer wires the handler dependencies that derive from cfg.
func NewServer(cfg config.Config, logger *zap.Logger, store db.Store, storage media.Storage, metrics observability.MetricsRegistry) (*Server, error) {
	secret := cfg.JWTSecret
	if secret == "" {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("generate session secret: %w", err)
		}
		secret = hex.EncodeToString(buf)
		logger.Warn("JWT_SECRET not set, sessions will not survive a restart")
	}
	sessions, err := auth.NewSessions(secret, cfg.SessionTTL)
	if err != nil {
		return nil, err
	}

	s := &Server{
		Logger:    logger,
		Store:     store,
		Media:     storage,
		Prober:    media.DurationProber{FFProbePath: cfg.FFProbePath},
		Detector:  detector.NewClient(cfg.DetectorURL, cfg.DetectorTimeout, cfg.DetectorCacheTTL, logger, metrics),
		Analytics: analytics.Noop{},
		Limiter: ratelimit.New("reports", ratelimit.Config{
			Capacity:   cfg.RateLimitCapacity,
			RefillRate: cfg.RateLimitRefillRate,
			Enabled:    cfg.RateLimitEnabled,
		}, metrics),
		Accounts: &auth.Service{Users: store},
		Sessions: sessions,
		Auth:     &auth.Middleware{Sessions: sessions, Users: store, Logger: logger},
		Metrics:  metrics,
		Config:   cfg,
		now:      time.Now,
	}
	if cfg.MediaSigningSecret != "" {
		s.Signer = token.NewSigner([]byte(cfg.MediaSigningSecret), cfg.MediaLinkTTL)
	}
	return s, nil
}

// Router builds the HTTP routes.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.WithTraceLogger(s.Logger), middleware.AccessLog(s.Logger, observability.AccessLogSampleRate()))

	r.HandleFunc("/health", s.HealthHandler).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/auth/register", s.RegisterHandler).Methods("POST")
	api.HandleFunc("/auth/login", s.LoginHandler).Methods("POST")
	api.HandleFunc("/auth/logout", s.LogoutHandler).Methods("POST")
	api.Handle("/account", s.Auth.Required(http.HandlerFunc(s.AccountHandler))).Methods("GET")
	api.Handle("/account", s.Auth.Required(http.HandlerFunc(s.UpdateAccountHandler))).Methods("PUT")

	api.Handle("/issues", s.Auth.Optional(http.HandlerFunc(s.CreateIssueHandler))).Methods("POST")
	api.Handle("/issues/mine", s.Auth.Optional(http.HandlerFunc(s.MyIssuesHandler))).Methods("GET")
	api.Handle("/dashboard", s.Auth.Optional(http.HandlerFunc(s.DashboardHandler))).Methods("GET")
	api.HandleFunc("/heatmap", s.HeatmapHandler).Methods("GET")
	api.HandleFunc("/heatmap/options", s.HeatmapOptionsHandler).Methods("GET")
	api.HandleFunc("/hazard-alerts", s.HazardAlertsHandler).Methods("GET")

	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(s.Auth.StaffOnly)
	admin.HandleFunc("/dashboard", s.AdminDashboardHandler).Methods("GET")
	admin.HandleFunc("/issues", s.AdminIssuesHandler).Methods("GET")
	admin.HandleFunc("/issues/{id:[0-9]+}", s.AdminIssueHandler).Methods("GET")
	admin.HandleFunc("/issues/{id:[0-9]+}/status", s.UpdateStatusHandler).Methods("PATCH", "POST")
	admin.HandleFunc("/issues/{id:[0-9]+}/events", s.IssueEventsHandler).Methods("GET")
	admin.HandleFunc("/rate-limits", s.RateLimitStatsHandler).Methods("GET")

	// With signing enabled media is reachable only through signed links.
	if local, ok := s.Media.(*media.LocalStorage); ok && s.Signer == nil {
		prefix := s.Config.MediaURL
		r.PathPrefix(prefix).Handler(http.StripPrefix(prefix, local.Handler(s.Logger)))
	}
	r.HandleFunc(SignedMediaPrefix+"{token}", s.SignedMediaHandler).Methods("GET", "HEAD")

	return r
}

// observe records request count and latency for endpoint.
func (s *Server) observe(endpoint, method string, status int, start time.Time) {
	s.Metrics.IncrementRequests(endpoint, method, strconv.Itoa(status))
	s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
}

func (s *Server) logger(r *http.Request) *zap.Logger {
	return middleware.LoggerFromRequest(r, s.Logger)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// decodeBody reads a JSON body, or form values when the client posted a form.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any, fromForm func(get func(string) string)) error {
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mt {
	case "application/x-www-form-urlencoded", "multipart/form-data":
		if err := r.ParseMultipartForm(1 << 20); err != nil && !errors.Is(err, http.ErrNotMultipart) {
			return err
		}
		fromForm(r.FormValue)
		return nil
	}
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(dst)
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
}

// invalidateStats drops cached dashboard aggregates after a write.
func (s *Server) invalidateStats(ctx context.Context, r *http.Request) {
	if s.Redis == nil {
		return
	}
	if err := s.Redis.InvalidateStats(ctx); err != nil {
		s.logger(r).Warn("invalidate stats cache", zap.Error(err))
	}
}

// cached serves name from the Redis stats cache, computing and storing it on a miss.
func cached[T any](ctx context.Context, s *Server, r *http.Request, name string, compute func() (T, error)) (T, error) {
	var out T
	if s.Redis != nil {
		hit, err := s.Redis.GetCachedStats(ctx, name, &out)
		if err != nil {
			s.logger(r).Warn("read stats cache", zap.String("name", name), zap.Error(err))
		} else if hit {
			return out, nil
		}
	}
	out, err := compute()
	if err != nil {
		return out, err
	}
	if s.Redis != nil && s.Config.StatsCacheTTL > 0 {
		if err := s.Redis.SetCachedStats(ctx, name, out, s.Config.StatsCacheTTL); err != nil {
			s.logger(r).Warn("write stats cache", zap.String("name", name), zap.Error(err))
		}
	}
	return out, nil
}

// record sends an analytics event. Analytics failures never fail a request.
func (s *Server) record(r *http.Request, ev analytics.Event) {
	ev.Client = analytics.ClientFromRequest(r, s.GeoIP)
	if ev.Timestamp.IsZero() {
		ev.Timestamp = s.now().UTC()
	}
	if err := s.Analytics.RecordEvent(r.Context(), ev); err != nil && !errors.Is(err, analytics.ErrUnavailable) {
		s.logger(r).Warn("record analytics event", zap.String("event_type", ev.Type), zap.Error(err))
	}
}

// enumFilters holds the optional enum query parameters shared by the
// heatmap and the staff list. Empty values mean no filter.
type enumFilters struct {
	Status   models.Status
	Category models.Category
	Severity models.Severity
}

// parseEnumFilters validates the status, category and severity query
// parameters. The returned message is suitable for a 400 response.
func parseEnumFilters(q url.Values) (enumFilters, string) {
	var f enumFilters
	var err error
	if v := strings.TrimSpace(q.Get("status")); v != "" {
		if f.Status, err = models.ParseStatus(v); err != nil {
			return f, "Invalid status."
		}
	}
	if v := strings.TrimSpace(q.Get("category")); v != "" {
		if f.Category, err = models.ParseCategory(v); err != nil {
			return f, "Invalid category."
		}
	}
	if v := strings.TrimSpace(q.Get("severity")); v != "" {
		if f.Severity, err = models.ParseSeverity(v); err != nil {
			return f, "Invalid severity."
		}
	}
	return f, ""
}

// mediaView describes an attachment without its storage key. Clients reach
// the file only through image_url or video_url.
type mediaView struct {
	ContentType     string   `json:"content_type"`
	Size            int64    `json:"size"`
	DurationSeconds *float64 `json:"duration_seconds,omitempty"`
}

func newMediaView(ref *models.MediaRef) *mediaView {
	if ref == nil {
		return nil
	}
	return &mediaView{ContentType: ref.ContentType, Size: ref.Size, DurationSeconds: ref.DurationSeconds}
}

// issueView is the JSON shape of a report. Image and Video shadow the
// embedded refs so storage keys are never serialized.
type issueView struct {
	models.IssueReport
	Image           *mediaView `json:"image,omitempty"`
	Video           *mediaView `json:"video,omitempty"`
	CategoryDisplay string     `json:"category_display"`
	StatusDisplay   string     `json:"status_display"`
	SeverityDisplay string     `json:"severity_display"`
	ImageURL        string     `json:"image_url,omitempty"`
	VideoURL        string     `json:"video_url,omitempty"`
	HasImage        bool       `json:"has_image"`
	HasVideo        bool       `json:"has_video"`
}

// mediaURL returns a signed link when signing is configured, otherwise the
// storage's public URL.
func (s *Server) mediaURL(key string) string {
	if s.Signer != nil {
		if tok, err := s.Signer.Sign(key); err == nil {
			return SignedMediaPrefix + tok
		}
	}
	return s.Media.URL(key)
}

func (s *Server) view(r models.IssueReport) issueView {
	v := issueView{
		IssueReport:     r,
		CategoryDisplay: r.Category.Display(),
		StatusDisplay:   r.Status.Display(),
		SeverityDisplay: r.Severity.Display(),
		Image:           newMediaView(r.Image),
		Video:           newMediaView(r.Video),
		HasImage:        r.Image != nil,
		HasVideo:        r.Video != nil,
	}
	if r.Image != nil {
		v.ImageURL = s.mediaURL(r.Image.Key)
	}
	if r.Video != nil {
		v.VideoURL = s.mediaURL(r.Video.Key)
	}
	return v
}

func (s *Server) views(issues []models.IssueReport) []issueView {
	out := make([]issueView, 0, len(issues))
	for _, r := range issues {
		out = append(out, s.view(r))
	}
	return out
}
