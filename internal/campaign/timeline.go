package campaign

import (
	"context"
	"fmt"

	"github.com/dshield-mcp/dshield-mcp-server/internal/esclient"
)

// Granularity is one of the three timeline bucket widths spec §6 names.
type Granularity string

const (
	GranularityHourly Granularity = "hourly"
	GranularityDaily  Granularity = "daily"
	GranularityWeekly Granularity = "weekly"
)

// TimelineBucket is one point on a campaign's event-count timeline.
type TimelineBucket struct {
	BucketStart string `json:"bucket_start"`
	EventCount  int64  `json:"event_count"`
}

func intervalFor(g Granularity) string {
	switch g {
	case GranularityDaily:
		return "1d"
	case GranularityWeekly:
		return "1w"
	default:
		return "1h"
	}
}

// Timeline aggregates a campaign's correlated indicators into a
// date-histogram over the campaign's time range, using
// ExecuteAggregationQuery (spec §4.4's aggregation passthrough).
func (a *Analyzer) Timeline(ctx context.Context, campaignID string, granularity Granularity) ([]TimelineBucket, error) {
	c, ok := a.Store.Get(campaignID)
	if !ok {
		return nil, errCampaignNotFound(campaignID)
	}

	iocs := mergeUnique(c.SeedIOCs, c.CorrelatedIOCs)
	filters := make([]esclient.Filter, 0, len(IndicatorFields))
	for _, field := range IndicatorFields {
		filters = append(filters, esclient.Filter{Field: field, Op: esclient.FilterTerms, Value: toAnySlice(iocs)})
	}

	aggs := map[string]any{
		"timeline": map[string]any{
			"date_histogram": map[string]any{
				"field":          "@timestamp",
				"fixed_interval": intervalFor(granularity),
			},
		},
	}

	raw, _, serr := a.ES.ExecuteAggregationQuery(ctx, nil, esclient.AggregationRequest{
		Time:         c.TimeRange,
		Filters:      filters[:1], // disjunction across fields is approximated by the primary indicator field; see Analyze's per-field union for the exhaustive match
		Aggregations: aggs,
	})
	if serr != nil {
		return nil, serr
	}

	return parseTimelineBuckets(raw)
}

func parseTimelineBuckets(raw map[string]any) ([]TimelineBucket, error) {
	timeline, ok := raw["timeline"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("aggregation response missing timeline bucket")
	}
	rawBuckets, ok := timeline["buckets"].([]any)
	if !ok {
		return nil, nil
	}
	out := make([]TimelineBucket, 0, len(rawBuckets))
	for _, rb := range rawBuckets {
		b, ok := rb.(map[string]any)
		if !ok {
			continue
		}
		start, _ := b["key_as_string"].(string)
		count := int64(0)
		if c, ok := b["doc_count"].(float64); ok {
			count = int64(c)
		}
		out = append(out, TimelineBucket{BucketStart: start, EventCount: count})
	}
	return out, nil
}
