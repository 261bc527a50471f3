// Package detector talks to the external hazard detection service that
// grades uploaded media.
package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/patrickwarner/civicreport/internal/models"
	"github.com/patrickwarner/civicreport/internal/observability"
)

// UnknownBoxes marks a result that did not come from the detector.
const UnknownBoxes = -1

// Request asks the detector to grade one stored file.
type Request struct {
	Kind          models.MediaKind `json:"kind"`
	MediaURL      string           `json:"media_url"`
	ContentSHA256 string           `json:"content_sha256"`
}

// Result is the detector's verdict.
type Result struct {
	Boxes        int             `json:"boxes"`
	Severity     models.Severity `json:"severity"`
	AnnotatedURL string          `json:"annotated_url,omitempty"`
}

// Found reports whether the detector positively identified a hazard.
func (r Result) Found() bool { return r.Boxes > 0 }

// Known reports whether the result came from the detector.
func (r Result) Known() bool { return r.Boxes != UnknownBoxes }

// Default is returned when the detector is not configured or fails.
func Default() Result {
	return Result{Boxes: UnknownBoxes, Severity: models.SeverityMedium}
}

type cachedResult struct {
	result  Result
	expires time.Time
}

// Client calls the detector over HTTP and caches results by content hash.
type Client struct {
	baseURL    string
	httpClient *http.Client
	cache      map[string]cachedResult
	cacheMu    sync.RWMutex
	cacheTTL   time.Duration
	logger     *zap.Logger
	metrics    observability.MetricsRegistry
}

// NewClient creates a detector client. An empty baseURL disables detection
// and every call returns Default.
func NewClient(baseURL string, timeout, cacheTTL time.Duration, logger *zap.Logger, metrics observability.MetricsRegistry) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		cache:    make(map[string]cachedResult),
		cacheTTL: cacheTTL,
		logger:   logger,
		metrics:  metrics,
	}
}

// Enabled reports whether a detector endpoint is configured.
func (c *Client) Enabled() bool { return c != nil && c.baseURL != "" }

// Detect grades the media described by req. Failures are logged and
// reported as Default so that reporting never depends on the detector.
func (c *Client) Detect(ctx context.Context, req Request) Result {
	if !c.Enabled() {
		return Default()
	}

	if req.ContentSHA256 != "" {
		c.cacheMu.RLock()
		cached, ok := c.cache[req.ContentSHA256]
		c.cacheMu.RUnlock()
		if ok && time.Now().Before(cached.expires) {
			c.metrics.IncrementDetectionRequests("cache_hit")
			return cached.result
		}
	}

	res, err := c.call(ctx, req)
	if err != nil {
		c.logger.Warn("hazard detector unavailable, using default severity",
			zap.Error(err),
			zap.String("kind", string(req.Kind)))
		return Default()
	}

	if req.ContentSHA256 != "" {
		c.cacheMu.Lock()
		c.cache[req.ContentSHA256] = cachedResult{result: res, expires: time.Now().Add(c.cacheTTL)}
		c.cacheMu.Unlock()
	}
	return res
}

func (c *Client) call(ctx context.Context, req Request) (Result, error) {
	start := time.Now()
	outcome := "success"
	defer func() {
		c.metrics.RecordDetectionLatency(time.Since(start))
		c.metrics.IncrementDetectionRequests(outcome)
	}()

	body, err := json.Marshal(req)
	if err != nil {
		outcome = "failure"
		return Result{}, fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/detect", bytes.NewReader(body))
	if err != nil {
		outcome = "failure"
		return Result{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		outcome = "failure"
		return Result{}, fmt.Errorf("http request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Warn("failed to close response body", zap.Error(err))
		}
	}()

	if resp.StatusCode != http.StatusOK {
		outcome = "failure"
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Result{}, fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var res Result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		outcome = "failure"
		return Result{}, fmt.Errorf("decode response: %w", err)
	}
	if res.Boxes < 0 {
		outcome = "failure"
		return Result{}, fmt.Errorf("invalid box count %d", res.Boxes)
	}
	if !res.Severity.Valid() {
		res.Severity = severityFromBoxes(res.Boxes)
	}
	if res.Boxes == 0 {
		outcome = "no_hazard"
	}
	return res, nil
}

// severityFromBoxes grades a detection by how many hazards were boxed when
// the detector does not supply a severity.
func severityFromBoxes(boxes int) models.Severity {
	switch {
	case boxes >= 5:
		return models.SeverityCritical
	case boxes >= 3:
		return models.SeverityHigh
	case boxes >= 1:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

// HealthCheck checks that the detector responds on /health.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.Enabled() {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("create health check request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed with status %d", resp.StatusCode)
	}
	return nil
}

// CleanupExpiredCache removes expired entries from the cache.
func (c *Client) CleanupExpiredCache() {
	now := time.Now()
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	for key, cached := range c.cache {
		if now.After(cached.expires) {
			delete(c.cache, key)
		}
	}
}

// StartCacheCleanup periodically removes expired cache entries until ctx is
// done.
func (c *Client) StartCacheCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.CleanupExpiredCache()
			}
		}
	}()
}

// Highest returns the most severe of the given results. Unknown results
// only win when nothing else is known.
func Highest(results ...Result) Result {
	best := Default()
	rank := map[models.Severity]int{
		models.SeverityLow: 1, models.SeverityMedium: 2, models.SeverityHigh: 3, models.SeverityCritical: 4,
	}
	for _, r := range results {
		if !r.Known() {
			continue
		}
		if !best.Known() || rank[r.Severity] > rank[best.Severity] {
			best = r
		}
	}
	return best
}
