package detector

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/patrickwarner/civicreport/internal/models"
	"github.com/patrickwarner/civicreport/internal/observability"
)

func newTestClient(url string) *Client {
	return NewClient(url, 200*time.Millisecond, 5*time.Minute, zap.NewNop(), observability.NewNoOpRegistry())
}

func TestDetect(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "/detect", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var req Request
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, models.MediaImage, req.Kind)
		assert.Equal(t, "http://media/issues/images/a.jpg", req.MediaURL)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Result{Boxes: 2, Severity: models.SeverityHigh, AnnotatedURL: "http://det/a.jpg"})
	}))
	defer server.Close()

	c := newTestClient(server.URL + "/")
	req := Request{Kind: models.MediaImage, MediaURL: "http://media/issues/images/a.jpg", ContentSHA256: "abc"}

	res := c.Detect(context.Background(), req)
	assert.Equal(t, 2, res.Boxes)
	assert.Equal(t, models.SeverityHigh, res.Severity)
	assert.Equal(t, "http://det/a.jpg", res.AnnotatedURL)
	assert.True(t, res.Found())

	res = c.Detect(context.Background(), req)
	assert.Equal(t, models.SeverityHigh, res.Severity)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "second call served from cache")
}

func TestDetectFallsBackOnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	res := newTestClient(server.URL).Detect(context.Background(), Request{Kind: models.MediaVideo})
	assert.Equal(t, Default(), res)
	assert.False(t, res.Known())
}

func TestDetectTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer server.Close()

	res := newTestClient(server.URL).Detect(context.Background(), Request{Kind: models.MediaImage})
	assert.Equal(t, Default(), res)
}

func TestDetectDisabled(t *testing.T) {
	c := newTestClient("")
	assert.False(t, c.Enabled())
	assert.Equal(t, Default(), c.Detect(context.Background(), Request{}))
	assert.NoError(t, c.HealthCheck(context.Background()))
}

func TestDetectNoHazardAndMissingSeverity(t *testing.T) {
	var boxes atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]int32{"boxes": boxes.Load()})
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	res := c.Detect(context.Background(), Request{Kind: models.MediaImage})
	assert.True(t, res.Known())
	assert.False(t, res.Found())
	assert.Equal(t, models.SeverityLow, res.Severity)

	boxes.Store(4)
	res = c.Detect(context.Background(), Request{Kind: models.MediaImage})
	assert.Equal(t, models.SeverityHigh, res.Severity)
}

func TestHighest(t *testing.T) {
	assert.Equal(t, Default(), Highest())
	assert.Equal(t, Default(), Highest(Default(), Default()))

	low := Result{Boxes: 1, Severity: models.SeverityLow}
	crit := Result{Boxes: 6, Severity: models.SeverityCritical}
	assert.Equal(t, crit, Highest(low, Default(), crit))
	assert.Equal(t, low, Highest(Default(), low))
}

func TestCleanupExpiredCache(t *testing.T) {
	c := newTestClient("http://unused")
	c.cache["old"] = cachedResult{expires: time.Now().Add(-time.Second)}
	c.cache["new"] = cachedResult{expires: time.Now().Add(time.Minute)}
	c.CleanupExpiredCache()
	assert.Len(t, c.cache, 1)
	assert.Contains(t, c.cache, "new")
}
