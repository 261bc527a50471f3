package ratelimit

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/patrickwarner/civicreport/internal/observability"
)

// Config controls bucket sizing.
type Config struct {
	Capacity   int // burst allowance
	RefillRate int // tokens per second
	Enabled    bool
}

// Limiter keeps one bucket per client key within a named scope.
type Limiter struct {
	scope   string
	config  Config
	metrics observability.MetricsRegistry
	now     func() time.Time

	mu      sync.RWMutex
	buckets map[string]*Bucket
}

// New creates a limiter. scope labels the metrics it emits, for example "reports".
func New(scope string, config Config, metrics observability.MetricsRegistry) *Limiter {
	return &Limiter{
		scope:   scope,
		config:  config,
		metrics: metrics,
		now:     time.Now,
		buckets: make(map[string]*Bucket),
	}
}

// Allow consumes a token for key. It always succeeds when limiting is disabled.
func (l *Limiter) Allow(key string) bool {
	if !l.config.Enabled {
		return true
	}
	l.metrics.IncrementRateLimitRequests(l.scope)

	l.mu.RLock()
	b, ok := l.buckets[key]
	l.mu.RUnlock()
	if !ok {
		l.mu.Lock()
		if b, ok = l.buckets[key]; !ok {
			b = newBucket(l.config.Capacity, l.config.RefillRate, l.now())
			l.buckets[key] = b
		}
		l.mu.Unlock()
	}

	if !b.take(l.now()) {
		l.metrics.IncrementRateLimitHits(l.scope)
		return false
	}
	return true
}

// Stats summarises one client's bucket.
type Stats struct {
	Key     string  `json:"key"`
	Hits    int64   `json:"hits"`
	Total   int64   `json:"total"`
	HitRate float64 `json:"hit_rate"`
}

// Snapshot returns stats for every tracked client.
func (l *Limiter) Snapshot() []Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Stats, 0, len(l.buckets))
	for key, b := range l.buckets {
		hits, total := b.Stats()
		s := Stats{Key: key, Hits: hits, Total: total}
		if total > 0 {
			s.HitRate = float64(hits) / float64(total)
		}
		out = append(out, s)
	}
	return out
}

// Sweep drops buckets idle for longer than maxIdle and returns how many were removed.
func (l *Limiter) Sweep(maxIdle time.Duration) int {
	cutoff := l.now().Add(-maxIdle)
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for key, b := range l.buckets {
		if b.idleSince().Before(cutoff) {
			delete(l.buckets, key)
			removed++
		}
	}
	return removed
}

// StartSweeper runs Sweep every interval until ctx is done.
func (l *Limiter) StartSweeper(ctx context.Context, interval, maxIdle time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.Sweep(maxIdle)
			}
		}
	}()
}

// ClientKey identifies the caller by the first X-Forwarded-For hop, falling
// back to the connection's remote address.
func ClientKey(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
