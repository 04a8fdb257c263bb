// Package ratelimit implements the three-tier hierarchical limiter from
// spec §4.2: a per-API-key token bucket, a per-connection sliding
// window, and a global sliding window, evaluated in order with any
// rejection short-circuiting the rest.
//
// The token-bucket math (lazy refill, burst = requestsPerMinute by
// default, waitTime formula) and the sliding-window pruning are ported
// from original_source/src/security/rate_limiter.py's RateLimiter and
// SlidingWindowRateLimiter. golang.org/x/time/rate backs the per-key
// token bucket; the sliding windows stay hand-rolled since x/time/rate
// has no sliding-window mode.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultUnknownKeyRPM is the conservative bucket size assigned to API
// keys with no explicit configuration (original's "unknown keys get
// RateLimiter(10)").
const DefaultUnknownKeyRPM = 10

// Stats mirrors the operations spec §4.2 requires: retrieve
// {requestsPerMinute, burstSize, currentTokens, waitTime, isBlocked}.
type Stats struct {
	RequestsPerMinute float64
	BurstSize         int
	CurrentTokens     float64
	WaitTime          time.Duration
	IsBlocked         bool
}

// keyBucket pairs an x/time/rate.Limiter with the bookkeeping needed to
// report CurrentTokens/WaitTime the way the original's stats dict does —
// x/time/rate doesn't expose remaining tokens directly, so burst/rpm are
// tracked alongside it to reconstruct an equivalent view.
type keyBucket struct {
	limiter           *rate.Limiter
	requestsPerMinute float64
	burstSize         int
}

// APIKeyLimiter is the per-API-key token bucket tier.
type APIKeyLimiter struct {
	mu      sync.Mutex
	buckets map[string]*keyBucket
	blocked map[string]bool
}

// NewAPIKeyLimiter returns an empty limiter; buckets are created lazily
// on first use with the conservative unknown-key default.
func NewAPIKeyLimiter() *APIKeyLimiter {
	return &APIKeyLimiter{
		buckets: make(map[string]*keyBucket),
		blocked: make(map[string]bool),
	}
}

// Configure creates or replaces the bucket for apiKey. burstSize<=0
// defaults to requestsPerMinute, matching the original's
// `burst_size or requests_per_minute`.
func (l *APIKeyLimiter) Configure(apiKey string, requestsPerMinute float64, burstSize int) {
	if burstSize <= 0 {
		burstSize = int(requestsPerMinute)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buckets[apiKey] = &keyBucket{
		limiter:           rate.NewLimiter(rate.Limit(requestsPerMinute/60.0), burstSize),
		requestsPerMinute: requestsPerMinute,
		burstSize:         burstSize,
	}
}

// Block marks apiKey as blocked; blocked keys are always denied
// regardless of bucket state ("blocked_keys set overrides allow").
func (l *APIKeyLimiter) Block(apiKey string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.blocked[apiKey] = true
}

// Unblock removes apiKey from the blocked set.
func (l *APIKeyLimiter) Unblock(apiKey string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.blocked, apiKey)
}

func (l *APIKeyLimiter) bucketLocked(apiKey string) *keyBucket {
	b, ok := l.buckets[apiKey]
	if ok {
		return b
	}
	b = &keyBucket{
		limiter:           rate.NewLimiter(rate.Limit(DefaultUnknownKeyRPM/60.0), DefaultUnknownKeyRPM),
		requestsPerMinute: DefaultUnknownKeyRPM,
		burstSize:         DefaultUnknownKeyRPM,
	}
	l.buckets[apiKey] = b
	return b
}

// Allow reports whether apiKey may proceed now, consuming one token if
// so. Blocked keys are always denied.
func (l *APIKeyLimiter) Allow(apiKey string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.blocked[apiKey] {
		return false
	}
	b := l.bucketLocked(apiKey)
	return b.limiter.Allow()
}

// WaitTime returns how long apiKey must wait before its next token is
// available, matching the original's `(1 - tokens) / (rpm/60)` formula.
// x/time/rate.Reservation gives this directly via ReserveN's Delay,
// without consuming the token (cancelled immediately).
func (l *APIKeyLimiter) WaitTime(apiKey string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	b := l.bucketLocked(apiKey)
	r := b.limiter.ReserveN(time.Now(), 1)
	defer r.Cancel()
	if !r.OK() {
		return time.Hour
	}
	return r.Delay()
}

// Stats returns the current tier-1 stats for apiKey.
func (l *APIKeyLimiter) Stats(apiKey string) Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	b := l.bucketLocked(apiKey)
	tokens := b.limiter.Tokens()
	var wait time.Duration
	if tokens < 1 && b.requestsPerMinute > 0 {
		wait = time.Duration((1 - tokens) * 60 / b.requestsPerMinute * float64(time.Second))
	}
	return Stats{
		RequestsPerMinute: b.requestsPerMinute,
		BurstSize:         b.burstSize,
		CurrentTokens:     tokens,
		WaitTime:          wait,
		IsBlocked:         l.blocked[apiKey],
	}
}
