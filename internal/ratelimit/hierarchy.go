package ratelimit

import (
	"time"

	"github.com/dshield-mcp/dshield-mcp-server/internal/mcperr"
)

// Defaults from spec §4.2.
const (
	DefaultConnectionRPM    = 100
	DefaultConnectionWindow = 60 * time.Second
	DefaultGlobalRPM        = 1000
	DefaultGlobalWindow     = 60 * time.Second
)

// Hierarchy evaluates the three tiers in order — token bucket (API key),
// sliding window (connection), sliding window (global) — short-circuiting
// on the first rejection, per spec §4.2.
type Hierarchy struct {
	Keys        *APIKeyLimiter
	Connections *ConnectionLimiter
	Global      *GlobalLimiter
}

// NewHierarchy builds a three-tier limiter with the spec's defaults.
func NewHierarchy() *Hierarchy {
	return &Hierarchy{
		Keys:        NewAPIKeyLimiter(),
		Connections: NewConnectionLimiter(DefaultConnectionRPM, DefaultConnectionWindow),
		Global:      NewGlobalLimiter(DefaultGlobalRPM, DefaultGlobalWindow),
	}
}

// Check evaluates all three tiers for (apiKey, connID). On rejection it
// returns a rate_limited StructuredError carrying retry_after_ms.
func (h *Hierarchy) Check(apiKey, connID string) *mcperr.StructuredError {
	if !h.Keys.Allow(apiKey) {
		wait := h.Keys.WaitTime(apiKey)
		return mcperr.New(mcperr.CodeRateLimited, "per-key rate limit exceeded",
			mcperr.WithRetryAfterMs(int(wait.Milliseconds())))
	}
	if !h.Connections.Allow(connID) {
		return mcperr.New(mcperr.CodeRateLimited, "per-connection rate limit exceeded",
			mcperr.WithRetryAfterMs(int(DefaultConnectionWindow.Milliseconds())))
	}
	if !h.Global.Allow() {
		return mcperr.New(mcperr.CodeRateLimited, "global rate limit exceeded",
			mcperr.WithRetryAfterMs(int(DefaultGlobalWindow.Milliseconds())))
	}
	return nil
}
