// Package tools implements the nine tool handlers spec §6 names,
// wiring the Elasticsearch Client (§4.4), Session Chunker (§4.5),
// DShield Client (§4.6), and the supplemented campaign-analysis
// workflow (SPEC_FULL.md §5) behind the Dispatcher (§4.3).
//
// Each handler is a single async unit of work per spec §4.3 — "no
// further dispatch happens inside them" — so a handler never calls back
// into the dispatcher or registry.
package tools

import (
	"github.com/go-playground/validator/v10"

	"github.com/dshield-mcp/dshield-mcp-server/internal/campaign"
	"github.com/dshield-mcp/dshield-mcp-server/internal/dshield"
	"github.com/dshield-mcp/dshield-mcp-server/internal/esclient"
	"github.com/dshield-mcp/dshield-mcp-server/internal/feature"
	"github.com/dshield-mcp/dshield-mcp-server/internal/ratelimit"
)

// Deps bundles every collaborator a tool handler may need. Handlers are
// methods on Deps rather than free functions carrying individual
// collaborators, mirroring the server-context pattern spec §9 calls for
// ("pass both explicitly through a server context struct; no
// module-level mutable state").
type Deps struct {
	ES       *esclient.Client
	DShield  *dshield.Client
	Features *feature.Manager
	Campaign *campaign.Analyzer
	Report   *campaign.Reporter
	Limits   *ratelimit.Hierarchy

	MaxResults            int
	DefaultTimeRangeHours int
	MaxIPEnrichmentBatch  int
}

var validate = validator.New()
