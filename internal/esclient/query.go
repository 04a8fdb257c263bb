package esclient

import "fmt"

// queryBody is the shape posted to Elasticsearch's _search endpoint. It
// is intentionally small: only the clauses spec §4.4 actually needs.
type queryBody struct {
	Size        int              `json:"size"`
	From        int              `json:"from,omitempty"`
	Sort        []map[string]any `json:"sort,omitempty"`
	Source      any              `json:"_source,omitempty"`
	Query       map[string]any   `json:"query"`
	SearchAfter []any            `json:"search_after,omitempty"`
}

// buildQuery translates a QueryRequest into an Elasticsearch query body
// and reports which spec §4.4 optimizations were applied so callers can
// populate PerformanceMetrics.OptimizationApplied.
func buildQuery(req QueryRequest) (queryBody, []string) {
	var optimizations []string

	must := make([]map[string]any, 0, len(req.Filters)+1)
	must = append(must, timeRangeClause(req.Time))
	for _, f := range req.Filters {
		must = append(must, filterClause(f))
	}

	body := queryBody{
		Size: req.PageSize,
		Query: map[string]any{
			"bool": map[string]any{
				"must": must,
			},
		},
	}

	sortField := req.SortBy
	if sortField == "" {
		sortField = "@timestamp"
	}
	sortOrder := req.SortOrder
	if sortOrder == "" {
		sortOrder = SortDesc
	}
	body.Sort = []map[string]any{
		{sortField: map[string]any{"order": string(sortOrder)}},
		{"_id": map[string]any{"order": string(sortOrder)}},
	}

	if len(req.Fields) > 0 {
		body.Source = req.Fields
		optimizations = append(optimizations, "field_reduction")
	}

	const defaultPageSize = 100
	if req.PageSize > 0 && req.PageSize < defaultPageSize {
		optimizations = append(optimizations, "page_reduction")
	}

	return body, optimizations
}

func timeRangeClause(tr TimeRange) map[string]any {
	rangeVal := map[string]any{}
	if tr.Explicit {
		rangeVal["gte"] = tr.StartTime.UTC().Format("2006-01-02T15:04:05Z07:00")
		rangeVal["lte"] = tr.EndTime.UTC().Format("2006-01-02T15:04:05Z07:00")
	} else {
		hours := tr.TimeRangeHours
		if hours <= 0 {
			hours = 24
		}
		rangeVal["gte"] = fmt.Sprintf("now-%dh", hours)
		rangeVal["lte"] = "now"
	}
	return map[string]any{
		"range": map[string]any{
			"@timestamp": rangeVal,
		},
	}
}

func filterClause(f Filter) map[string]any {
	switch f.Op {
	case FilterTerms:
		return map[string]any{"terms": map[string]any{f.Field: f.Value}}
	case FilterRange:
		return map[string]any{"range": map[string]any{f.Field: f.Value}}
	default: // FilterTerm
		return map[string]any{"term": map[string]any{f.Field: f.Value}}
	}
}

// AggregationRequest is the caller-supplied shape for
// executeAggregationQuery (spec §4.4).
type AggregationRequest struct {
	Indices      []string
	Time         TimeRange
	Filters      []Filter
	Aggregations map[string]any
}

// buildAggregationQuery wraps the caller's raw aggregation clauses with
// the same time-range/filter bool query used for paged search, and sets
// size=0 since only the aggregation buckets are wanted.
func buildAggregationQuery(req AggregationRequest) queryBody {
	must := make([]map[string]any, 0, len(req.Filters)+1)
	must = append(must, timeRangeClause(req.Time))
	for _, f := range req.Filters {
		must = append(must, filterClause(f))
	}
	return queryBody{
		Size: 0,
		Query: map[string]any{
			"bool": map[string]any{
				"must": must,
			},
		},
	}
}
