// Package dshield implements the DShield Client (spec §4.6): IP
// reputation lookups against the DShield threat-intelligence API, with
// per-IP memoization, concurrent-request coalescing, a host-scoped
// sliding-window rate limiter, and circuit-breaker protected degraded
// responses.
package dshield

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/dshield-mcp/dshield-mcp-server/internal/mcpmetrics"
	"github.com/dshield-mcp/dshield-mcp-server/internal/obslog"
	"github.com/dshield-mcp/dshield-mcp-server/internal/ratelimit"
	"github.com/dshield-mcp/dshield-mcp-server/internal/secret"
)

// SourceCircuitOpen marks a degraded reputation record returned while
// the breaker is open (spec §4.6).
const SourceCircuitOpen = "circuit_open"

// SourceLive marks a record fetched from the upstream API.
const SourceLive = "live"

// SourceCache marks a record served from the per-IP memoization cache.
const SourceCache = "cache"

// Reputation is one IP's DShield lookup result.
type Reputation struct {
	IP              string    `json:"ip"`
	ReputationScore *float64  `json:"reputation_score"`
	Country         string    `json:"country,omitempty"`
	AttackCount     int       `json:"attack_count,omitempty"`
	Source          string    `json:"source"`
	FetchedAt       time.Time `json:"fetched_at"`
}

// Config configures a Client.
type Config struct {
	BaseURL      string
	APIKeyURI    string // resolved via internal/secret
	CacheTTL     time.Duration
	RateLimitRPM int
	Timeout      time.Duration
}

type cacheEntry struct {
	rep       Reputation
	expiresAt time.Time
}

// Client is the DShield Client.
type Client struct {
	cfg     Config
	apiKey  string
	http    *http.Client
	limiter *ratelimit.SlidingWindow
	breaker *gobreaker.CircuitBreaker[Reputation]

	mu       sync.Mutex
	cache    map[string]cacheEntry
	inFlight map[string]*inFlightCall
}

type inFlightCall struct {
	done chan struct{}
	rep  Reputation
	err  error
}

// New builds a Client and resolves its API key through resolver (spec
// §6's opaque secret interface).
func New(cfg Config, resolver secret.Resolver) (*Client, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = 300 * time.Second
	}
	if cfg.RateLimitRPM == 0 {
		cfg.RateLimitRPM = 60
	}

	apiKey, _, err := secret.Apply(resolver, cfg.APIKeyURI)
	if err != nil {
		return nil, fmt.Errorf("resolve dshield api key: %w", err)
	}

	return &Client{
		cfg:      cfg,
		apiKey:   apiKey,
		http:     &http.Client{Timeout: cfg.Timeout},
		limiter:  ratelimit.NewSlidingWindow(cfg.RateLimitRPM, time.Minute),
		cache:    make(map[string]cacheEntry),
		inFlight: make(map[string]*inFlightCall),
		breaker: gobreaker.NewCircuitBreaker[Reputation](gobreaker.Settings{
			Name:        "dshield",
			MaxRequests: 1,
			Interval:    30 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				obslog.Component("dshield").Warn().
					Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
				mcpmetrics.CircuitBreakerState.WithLabelValues("dshield").Set(mcpmetrics.BreakerStateValue(to.String()))
			},
		}),
	}, nil
}

// IsOpen reports whether the circuit breaker is open.
func (c *Client) IsOpen() bool {
	return c.breaker.State() == gobreaker.StateOpen
}

// Enrich returns an IP's reputation, serving from cache when fresh,
// coalescing concurrent lookups for the same IP, and falling back to a
// well-formed degraded record when the breaker is open (spec §4.6).
func (c *Client) Enrich(ctx context.Context, ip string) (Reputation, error) {
	if rep, ok := c.cachedLookup(ip); ok {
		mcpmetrics.QueryCacheHitsTotal.WithLabelValues("hit").Inc()
		mcpmetrics.DShieldEnrichmentsTotal.WithLabelValues(rep.Source).Inc()
		return rep, nil
	}
	mcpmetrics.QueryCacheHitsTotal.WithLabelValues("miss").Inc()

	call, isLeader := c.joinOrLeadCall(ip)
	if !isLeader {
		select {
		case <-call.done:
			return call.rep, call.err
		case <-ctx.Done():
			return Reputation{}, ctx.Err()
		}
	}

	rep, err := c.fetchLeading(ctx, ip)
	c.finishCall(ip, call, rep, err)
	if err == nil {
		mcpmetrics.DShieldEnrichmentsTotal.WithLabelValues(rep.Source).Inc()
	}
	return rep, err
}

func (c *Client) cachedLookup(ip string) (Reputation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.cache[ip]
	if !ok || time.Now().After(entry.expiresAt) {
		return Reputation{}, false
	}
	rep := entry.rep
	rep.Source = SourceCache
	return rep, true
}

func (c *Client) joinOrLeadCall(ip string) (*inFlightCall, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.inFlight[ip]; ok {
		return existing, false
	}
	call := &inFlightCall{done: make(chan struct{})}
	c.inFlight[ip] = call
	return call, true
}

func (c *Client) finishCall(ip string, call *inFlightCall, rep Reputation, err error) {
	c.mu.Lock()
	call.rep, call.err = rep, err
	delete(c.inFlight, ip)
	if err == nil {
		c.cache[ip] = cacheEntry{rep: rep, expiresAt: time.Now().Add(c.cfg.CacheTTL)}
	}
	c.mu.Unlock()
	close(call.done)
}

func (c *Client) fetchLeading(ctx context.Context, ip string) (Reputation, error) {
	if !c.limiter.Allow() {
		return Reputation{}, fmt.Errorf("dshield rate limit exceeded")
	}

	rep, err := c.breaker.Execute(func() (Reputation, error) {
		return c.doFetch(ctx, ip)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return Reputation{IP: ip, Source: SourceCircuitOpen, FetchedAt: time.Now()}, nil
		}
		return Reputation{}, err
	}
	return rep, nil
}

func (c *Client) doFetch(ctx context.Context, ip string) (Reputation, error) {
	url := fmt.Sprintf("%s/ip/%s", c.cfg.BaseURL, ip)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Reputation{}, err
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Reputation{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 500 {
		return Reputation{}, fmt.Errorf("dshield returned %d", resp.StatusCode)
	}

	var body struct {
		IP          string  `json:"ip"`
		Reputation  float64 `json:"reputation"`
		Country     string  `json:"country"`
		AttackCount int     `json:"attacks"`
	}
	if resp.StatusCode == http.StatusOK {
		if decodeErr := json.NewDecoder(resp.Body).Decode(&body); decodeErr != nil {
			return Reputation{}, decodeErr
		}
	}

	score := body.Reputation
	return Reputation{
		IP:              ip,
		ReputationScore: &score,
		Country:         body.Country,
		AttackCount:     body.AttackCount,
		Source:          SourceLive,
		FetchedAt:       time.Now(),
	}, nil
}
