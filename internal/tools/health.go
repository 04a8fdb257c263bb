package tools

import (
	"context"
	"time"

	json "github.com/goccy/go-json"

	"github.com/dshield-mcp/dshield-mcp-server/internal/feature"
	"github.com/dshield-mcp/dshield-mcp-server/internal/ratelimit"
)

type healthArgs struct {
	Detailed bool `json:"detailed"`
}

type breakerStatus struct {
	Open bool `json:"open"`
}

type rateLimitHeadroom struct {
	GlobalRequestsInWindow int `json:"global_requests_in_window"`
	GlobalLimit            int `json:"global_limit"`
}

type healthResult struct {
	Features      map[feature.Tag]feature.Status `json:"features"`
	Elasticsearch breakerStatus                  `json:"elasticsearch_circuit_breaker"`
	DShield       breakerStatus                  `json:"dshield_circuit_breaker"`
	RateLimits    rateLimitHeadroom              `json:"rate_limits"`
	CheckedAt     time.Time                      `json:"checked_at"`
}

// GetHealthStatus implements get_health_status: a monitoring-category
// tool with no required features (spec §3/§6's supplemented tool list)
// that reports upstream reachability, circuit-breaker state, and
// rate-limiter headroom.
func (d Deps) GetHealthStatus(ctx context.Context, raw json.RawMessage) (any, error) {
	var args healthArgs
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &args)
	}

	if args.Detailed {
		d.Features.ProbeAll(ctx, 5*time.Second)
	}

	result := healthResult{
		Features:  d.Features.Snapshot(),
		CheckedAt: time.Now(),
	}
	if d.ES != nil {
		result.Elasticsearch = breakerStatus{Open: d.ES.IsOpen()}
	}
	if d.DShield != nil {
		result.DShield = breakerStatus{Open: d.DShield.IsOpen()}
	}
	if d.Limits != nil {
		result.RateLimits = rateLimitHeadroom{
			GlobalRequestsInWindow: d.Limits.Global.CurrentLoad(),
			GlobalLimit:            ratelimit.DefaultGlobalRPM,
		}
	}
	return result, nil
}
