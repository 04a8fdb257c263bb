package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/dshield-mcp/dshield-mcp-server/internal/campaign"
	"github.com/dshield-mcp/dshield-mcp-server/internal/config"
	"github.com/dshield-mcp/dshield-mcp-server/internal/dispatch"
	"github.com/dshield-mcp/dshield-mcp-server/internal/dshield"
	"github.com/dshield-mcp/dshield-mcp-server/internal/esclient"
	"github.com/dshield-mcp/dshield-mcp-server/internal/feature"
	"github.com/dshield-mcp/dshield-mcp-server/internal/ratelimit"
	"github.com/dshield-mcp/dshield-mcp-server/internal/registry"
	"github.com/dshield-mcp/dshield-mcp-server/internal/secret"
	"github.com/dshield-mcp/dshield-mcp-server/internal/server"
	"github.com/dshield-mcp/dshield-mcp-server/internal/tools"
)

// app bundles every constructed collaborator a running server needs,
// plus the resources Shutdown must release.
type app struct {
	Server   *server.Server
	Features *feature.Manager
	ES       *esclient.Client
	DShield  *dshield.Client
}

// buildApp wires a Config into a ready-to-serve app: ES/DShield
// clients, campaign analysis, the tool registry and dispatcher, and
// feature probes for each of the four features spec §3 names.
func buildApp(cfg *config.Config) (*app, error) {
	esClient := esclient.New(esclient.Config{
		URL:         cfg.Elasticsearch.URL,
		Username:    cfg.Elasticsearch.Username,
		Password:    cfg.Elasticsearch.Password,
		VerifySSL:   cfg.Elasticsearch.VerifySSL,
		CACertsPath: cfg.Elasticsearch.CACertPath,
		Timeout:     time.Duration(cfg.Query.TimeoutSeconds) * time.Second,
	})

	dshieldClient, err := dshield.New(dshield.Config{
		BaseURL:      cfg.DShield.APIURL,
		APIKeyURI:    cfg.DShield.APIKey,
		CacheTTL:     cfg.Query.CacheTTL(),
		RateLimitRPM: cfg.RateLimit.RequestsPerMinute,
	}, secret.NoopResolver)
	if err != nil {
		return nil, fmt.Errorf("build dshield client: %w", err)
	}

	store := campaign.NewStore()
	analyzer := &campaign.Analyzer{ES: esClient, Store: store}
	reporter := &campaign.Reporter{Analyzer: analyzer, DShield: dshieldClient}

	features := feature.NewManager()
	features.Register(feature.Elasticsearch, esHealthProbe(esClient))
	features.Register(feature.DShield, dshieldHealthProbe(dshieldClient))
	features.Register(feature.ThreatIntel, dshieldHealthProbe(dshieldClient))
	features.Register(feature.LaTeX, latexProbe())
	features.ProbeAll(context.Background(), 5*time.Second)

	reg := registry.New()
	limits := ratelimit.NewHierarchy()
	disp := dispatch.New(reg, features)

	deps := tools.Deps{
		ES:                    esClient,
		DShield:               dshieldClient,
		Features:              features,
		Campaign:              analyzer,
		Report:                reporter,
		Limits:                limits,
		MaxResults:            cfg.Query.MaxResults,
		DefaultTimeRangeHours: cfg.Query.DefaultTimeRangeHours,
		MaxIPEnrichmentBatch:  cfg.Query.MaxIPEnrichmentBatch,
	}
	if err := tools.RegisterAll(reg, disp, deps); err != nil {
		return nil, fmt.Errorf("register tools: %w", err)
	}

	srv := server.New(reg, features, disp, limits)
	return &app{Server: srv, Features: features, ES: esClient, DShield: dshieldClient}, nil
}

func (a *app) Close() {
	_ = a.ES.Close()
}

// esHealthProbe reports Elasticsearch available whenever Connect
// succeeds and the circuit breaker is not open.
func esHealthProbe(c *esclient.Client) feature.Probe {
	return func(ctx context.Context) feature.Status {
		if c.IsOpen() {
			return feature.Status{Available: false, Reason: "circuit breaker open"}
		}
		if err := c.Connect(ctx); err != nil {
			return feature.Status{Available: false, Reason: err.Error()}
		}
		return feature.Status{Available: true}
	}
}

// dshieldHealthProbe reports DShield available via a benign lookup
// against the documented example/loopback address, since the API
// exposes no dedicated health endpoint.
func dshieldHealthProbe(c *dshield.Client) feature.Probe {
	return func(ctx context.Context) feature.Status {
		if c.IsOpen() {
			return feature.Status{Available: false, Reason: "circuit breaker open"}
		}
		if _, err := c.Enrich(ctx, "203.0.113.1"); err != nil {
			return feature.Status{Available: false, Reason: err.Error()}
		}
		return feature.Status{Available: true}
	}
}

// latexProbe reports whether a LaTeX toolchain is reachable, gating the
// attack-report renderer's out-of-scope PDF step; report generation
// itself only needs the structured Report data and never checks this.
func latexProbe() feature.Probe {
	return func(ctx context.Context) feature.Status {
		return feature.Status{Available: false, Reason: "pdf rendering not implemented"}
	}
}
