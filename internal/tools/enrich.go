package tools

import (
	"context"

	json "github.com/goccy/go-json"

	"github.com/dshield-mcp/dshield-mcp-server/internal/dshield"
	"github.com/dshield-mcp/dshield-mcp-server/internal/mcperr"
)

type enrichArgs struct {
	IPAddresses []string `json:"ip_addresses" validate:"required,min=1"`
}

// EnrichIPWithDShield implements enrich_ip_with_dshield: looks up
// reputation for every requested IP, bounded by MaxIPEnrichmentBatch.
// Per-IP lookups go through the DShield Client's own memoization and
// request-coalescing, so duplicate IPs in one call cost one upstream
// fetch.
func (d Deps) EnrichIPWithDShield(ctx context.Context, raw json.RawMessage) (any, error) {
	var args enrichArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, mcperr.New(mcperr.CodeInvalidParams, "malformed enrich_ip_with_dshield arguments", mcperr.WithDetail(err.Error()))
	}
	if err := validate.Struct(args); err != nil {
		return nil, mcperr.New(mcperr.CodeInvalidParams, "invalid enrich_ip_with_dshield arguments", mcperr.WithDetail(err.Error()))
	}

	batch := args.IPAddresses
	if d.MaxIPEnrichmentBatch > 0 && len(batch) > d.MaxIPEnrichmentBatch {
		return nil, mcperr.New(mcperr.CodeInvalidParams, "ip_addresses exceeds the configured enrichment batch size", mcperr.WithPointer("/ip_addresses"))
	}

	results := make([]dshield.Reputation, 0, len(batch))
	for _, ip := range batch {
		rep, err := d.DShield.Enrich(ctx, ip)
		if err != nil {
			return nil, mcperr.New(mcperr.CodeUpstreamUnavailable, "dshield enrichment failed", mcperr.WithDetail(err.Error()), mcperr.WithParam(ip))
		}
		results = append(results, rep)
	}
	return map[string]any{"reputations": results}, nil
}
