// Package ratelimit keeps token buckets for rate-limited scenario entries.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/sophialabs/httpmocker/internal/infrastructure/ports"
)

var _ ports.RateLimiter = (*TokenBucketStore)(nil)

// DefaultTTL is how long an idle bucket is kept.
const DefaultTTL = 10 * time.Minute

type bucket struct {
	limiter  *rate.Limiter
	rate     float64
	burst    int
	lastUsed time.Time
}

// TokenBucketStore holds one token bucket per key. Idle buckets are swept
// lazily from Allow, so the store owns no goroutine.
type TokenBucketStore struct {
	mu        sync.Mutex
	clock     ports.Clock
	ttl       time.Duration
	buckets   map[string]*bucket
	lastSweep time.Time
}

// NewTokenBucketStore creates a store that forgets buckets idle for ttl.
func NewTokenBucketStore(clk ports.Clock, ttl time.Duration) *TokenBucketStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &TokenBucketStore{
		clock:     clk,
		ttl:       ttl,
		buckets:   make(map[string]*bucket),
		lastSweep: clk.Now(),
	}
}

// Allow takes one token from the bucket for key, creating it on first use.
// A bucket whose parameters changed, e.g. after the scenario file was
// edited, is reconfigured in place.
func (s *TokenBucketStore) Allow(_ context.Context, key string, r float64, burst int) bool {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if now.Sub(s.lastSweep) >= s.ttl {
		s.sweep(now)
	}

	b, ok := s.buckets[key]
	switch {
	case !ok:
		b = &bucket{limiter: rate.NewLimiter(rate.Limit(r), burst), rate: r, burst: burst}
		s.buckets[key] = b
	case b.rate != r || b.burst != burst:
		b.limiter.SetLimitAt(now, rate.Limit(r))
		b.limiter.SetBurstAt(now, burst)
		b.rate, b.burst = r, burst
	}

	b.lastUsed = now
	return b.limiter.AllowN(now, 1)
}

// Reset forgets every bucket.
func (s *TokenBucketStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.buckets)
}

// Len returns the number of live buckets.
func (s *TokenBucketStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buckets)
}

func (s *TokenBucketStore) sweep(now time.Time) {
	cutoff := now.Add(-s.ttl)
	for key, b := range s.buckets {
		if b.lastUsed.Before(cutoff) {
			delete(s.buckets, key)
		}
	}
	s.lastSweep = now
}
