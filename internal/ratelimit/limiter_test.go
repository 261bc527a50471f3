package ratelimit

import (
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patrickwarner/civicreport/internal/observability"
)

func TestLimiterBurstAndRefill(t *testing.T) {
	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l := New("reports", Config{Capacity: 3, RefillRate: 1, Enabled: true}, observability.NewNoOpRegistry())
	l.now = func() time.Time { return clock }

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("10.0.0.1"), "request %d", i)
	}
	assert.False(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.2"), "clients have separate buckets")

	clock = clock.Add(2 * time.Second)
	assert.True(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.1"))
	assert.False(t, l.Allow("10.0.0.1"))

	var found bool
	for _, s := range l.Snapshot() {
		if s.Key == "10.0.0.1" {
			found = true
			assert.Equal(t, int64(2), s.Hits)
			assert.Equal(t, int64(7), s.Total)
		}
	}
	require.True(t, found)
}

func TestLimiterDisabled(t *testing.T) {
	l := New("reports", Config{Capacity: 0, Enabled: false}, observability.NewNoOpRegistry())
	for i := 0; i < 10; i++ {
		assert.True(t, l.Allow("x"))
	}
	assert.Empty(t, l.Snapshot())
}

func TestLimiterSweep(t *testing.T) {
	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l := New("reports", Config{Capacity: 1, RefillRate: 1, Enabled: true}, observability.NewNoOpRegistry())
	l.now = func() time.Time { return clock }
	l.Allow("old")
	clock = clock.Add(time.Hour)
	l.Allow("new")

	assert.Equal(t, 1, l.Sweep(30*time.Minute))
	require.Len(t, l.Snapshot(), 1)
	assert.Equal(t, "new", l.Snapshot()[0].Key)
}

func TestLimiterConcurrent(t *testing.T) {
	l := New("reports", Config{Capacity: 50, RefillRate: 0, Enabled: true}, observability.NewNoOpRegistry())
	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow("shared") {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, allowed)
}

func TestClientKey(t *testing.T) {
	r := httptest.NewRequest("POST", "/api/issues", nil)
	r.RemoteAddr = "192.0.2.7:5555"
	assert.Equal(t, "192.0.2.7", ClientKey(r))

	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "203.0.113.9", ClientKey(r))

	r = httptest.NewRequest("POST", "/", nil)
	r.RemoteAddr = "unix"
	assert.Equal(t, "unix", ClientKey(r))
}
