// Package ratelimiter provides token bucket rate limiting, globally or per
// key (one bucket per owner id).
package ratelimiter

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// unlimitedRate stands in for "no limit"; rate.Inf skips burst accounting
// entirely, which makes Tokens meaningless.
const unlimitedRate = 1_000_000_000

// RateLimiter wraps a single golang.org/x/time/rate token bucket.
//
// Thread safety: all methods are safe for concurrent use.
type RateLimiter struct {
	limiter *rate.Limiter
}

// New creates a RateLimiter allowing requestsPerSecond sustained with the
// given burst. requestsPerSecond = 0 disables limiting.
func New(requestsPerSecond, burst uint) *RateLimiter {
	if requestsPerSecond == 0 {
		requestsPerSecond = unlimitedRate
		burst = unlimitedRate
	}
	if burst == 0 {
		burst = 1
	}

	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), int(burst)),
	}
}

// Allow consumes one token if available.
func (r *RateLimiter) Allow() bool {
	return r.limiter.Allow()
}

// Wait blocks until a token is available or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}

// Tokens returns the tokens currently available. Monitoring only.
func (r *RateLimiter) Tokens() float64 {
	return r.limiter.Tokens()
}

// ============================================================================
// Keyed Limiter
// ============================================================================

// keyedEntry is one key's bucket plus the last time it was used.
type keyedEntry struct {
	limiter  *RateLimiter
	lastSeen time.Time
}

// Keyed holds one RateLimiter per key, created lazily. Buckets idle for
// longer than the idle timeout are evicted on the next sweep, so the map
// does not grow with every owner ever seen.
type Keyed struct {
	requestsPerSecond uint
	burst             uint
	idleTimeout       time.Duration

	mu        sync.Mutex
	entries   map[string]*keyedEntry
	lastSweep time.Time
	now       func() time.Time
}

// NewKeyed creates a Keyed limiter. requestsPerSecond = 0 disables
// limiting for every key.
func NewKeyed(requestsPerSecond, burst uint, idleTimeout time.Duration) *Keyed {
	if idleTimeout <= 0 {
		idleTimeout = 10 * time.Minute
	}
	return &Keyed{
		requestsPerSecond: requestsPerSecond,
		burst:             burst,
		idleTimeout:       idleTimeout,
		entries:           make(map[string]*keyedEntry),
		now:               time.Now,
	}
}

// Allow consumes one token from key's bucket if available.
func (k *Keyed) Allow(key string) bool {
	if k.requestsPerSecond == 0 {
		return true
	}
	return k.get(key).Allow()
}

// Len returns the number of tracked keys.
func (k *Keyed) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}

func (k *Keyed) get(key string) *RateLimiter {
	k.mu.Lock()
	defer k.mu.Unlock()

	now := k.now()
	if now.Sub(k.lastSweep) >= k.idleTimeout {
		for kk, e := range k.entries {
			if now.Sub(e.lastSeen) >= k.idleTimeout {
				delete(k.entries, kk)
			}
		}
		k.lastSweep = now
	}

	e, ok := k.entries[key]
	if !ok {
		e = &keyedEntry{limiter: New(k.requestsPerSecond, k.burst)}
		k.entries[key] = e
	}
	e.lastSeen = now
	return e.limiter
}
