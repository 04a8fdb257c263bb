package campaign

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dshield-mcp/dshield-mcp-server/internal/dshield"
)

// Report is the structured output of generate_attack_report. Rendering
// it to LaTeX/PDF is the out-of-scope "report rendering" collaborator
// (spec §1); this is the data the renderer would consume.
type Report struct {
	CampaignID     string               `json:"campaign_id"`
	GeneratedAt    time.Time            `json:"generated_at"`
	SeedIOCs       []string             `json:"seed_iocs"`
	CorrelatedIOCs []string             `json:"correlated_iocs"`
	EventCount     int                  `json:"event_count"`
	Timeline       []TimelineBucket     `json:"timeline"`
	Enrichment     []dshield.Reputation `json:"enrichment"`
	Summary        string               `json:"summary"`
}

// Reporter builds a Report from a campaign plus fresh DShield
// enrichment of its correlated IP-shaped indicators.
type Reporter struct {
	Analyzer *Analyzer
	DShield  *dshield.Client
}

// Generate assembles the report for campaignID at the given timeline
// granularity. IP-shaped indicators among SeedIOCs/CorrelatedIOCs are
// enriched; non-IP indicators (hashes, domains) are left out of
// enrichment since the DShield API is IP-reputation only.
func (r *Reporter) Generate(ctx context.Context, campaignID string, granularity Granularity) (*Report, error) {
	c, ok := r.Analyzer.Store.Get(campaignID)
	if !ok {
		return nil, errCampaignNotFound(campaignID)
	}

	timeline, err := r.Analyzer.Timeline(ctx, campaignID, granularity)
	if err != nil {
		return nil, err
	}

	all := mergeUnique(c.SeedIOCs, c.CorrelatedIOCs)
	var enrichment []dshield.Reputation
	for _, ioc := range all {
		if r.DShield == nil || !looksLikeIP(ioc) {
			continue
		}
		rep, enrichErr := r.DShield.Enrich(ctx, ioc)
		if enrichErr != nil {
			continue
		}
		enrichment = append(enrichment, rep)
	}

	return &Report{
		CampaignID:     c.ID,
		GeneratedAt:    time.Now(),
		SeedIOCs:       c.SeedIOCs,
		CorrelatedIOCs: c.CorrelatedIOCs,
		EventCount:     c.EventCount,
		Timeline:       timeline,
		Enrichment:     enrichment,
		Summary:        summarize(c),
	}, nil
}

func summarize(c *Campaign) string {
	return fmt.Sprintf("campaign %s: %d seed indicator(s), %d correlated, %d matching event(s) over %s",
		c.ID, len(c.SeedIOCs), len(c.CorrelatedIOCs), c.EventCount, c.CorrelationWindow)
}

func looksLikeIP(s string) bool {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return false
	}
	for _, p := range parts {
		if p == "" || len(p) > 3 {
			return false
		}
		for _, r := range p {
			if r < '0' || r > '9' {
				return false
			}
		}
	}
	return true
}
