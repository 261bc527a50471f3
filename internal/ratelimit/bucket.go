// Package ratelimit throttles report submissions per client.
//
// Each client gets a token bucket that allows short bursts up to its
// capacity and refills at a fixed rate per second.
package ratelimit

import (
	"sync"
	"time"
)

// Bucket is a thread-safe token bucket.
type Bucket struct {
	mu         sync.Mutex
	capacity   int
	tokens     int
	refillRate int
	lastRefill time.Time
	lastSeen   time.Time
	hits       int64
	total      int64
}

func newBucket(capacity, refillRate int, now time.Time) *Bucket {
	return &Bucket{
		capacity:   capacity,
		tokens:     capacity,
		refillRate: refillRate,
		lastRefill: now,
		lastSeen:   now,
	}
}

// take consumes one token if available.
func (b *Bucket) take(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.total++
	b.lastSeen = now
	if add := int(now.Sub(b.lastRefill).Seconds() * float64(b.refillRate)); add > 0 {
		b.tokens = min(b.capacity, b.tokens+add)
		b.lastRefill = now
	}
	if b.tokens > 0 {
		b.tokens--
		return true
	}
	b.hits++
	return false
}

func (b *Bucket) idleSince() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastSeen
}

// Stats returns rejected and total request counts.
func (b *Bucket) Stats() (hits, total int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hits, b.total
}
