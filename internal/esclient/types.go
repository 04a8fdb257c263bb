// Package esclient implements the Elasticsearch Client (spec §4.4):
// connection lifecycle, index discovery, paged query, cursor-based
// resumption, field projection, aggregation passthrough, and streaming.
//
// No Elasticsearch client library exists anywhere in the example pack
// (checked via grep across every go.mod and other_examples/ file — no
// elastic/go-elasticsearch or olivere/elastic hit), so the HTTP query
// layer is built directly on net/http, grounded on
// brennhill-gasoline-mcp-ai-devtools/internal/bridge/conn.go's DoHTTP and
// connection-error classification.
package esclient

import "time"

// Event is the spec §3 Event: a mapping from dotted field name to a
// JSON scalar or array, plus the two fields every session computation
// needs.
type Event struct {
	Timestamp string         `json:"@timestamp"`
	DocID     string         `json:"_doc_id"`
	Index     string         `json:"_index"`
	Fields    map[string]any `json:"fields"`
}

// QueryComplexity is the normative enum from spec §3's PerformanceMetrics.
type QueryComplexity string

const (
	ComplexitySimple      QueryComplexity = "simple"
	ComplexityOptimized   QueryComplexity = "optimized"
	ComplexityAggregation QueryComplexity = "aggregation"
	ComplexityCached      QueryComplexity = "cached"
	ComplexityEmpty       QueryComplexity = "empty"
)

// PerformanceMetrics is attached to every paginated or streamed result
// (spec §3).
type PerformanceMetrics struct {
	QueryTimeMs            int64           `json:"query_time_ms"`
	IndicesScanned         int             `json:"indices_scanned"`
	TotalDocumentsExamined int64           `json:"total_documents_examined"`
	QueryComplexity        QueryComplexity `json:"query_complexity"`
	OptimizationApplied    []string        `json:"optimization_applied"`
	CacheHit               bool            `json:"cache_hit"`
	ShardsScanned          int             `json:"shards_scanned"`
	AggregationsUsed       bool            `json:"aggregations_used"`
}

// CachedMetrics returns a PerformanceMetrics reflecting a cache hit: per
// spec §4.4, "cacheHit=true implies indicesScanned=0 and
// totalDocumentsExamined=0".
func CachedMetrics(queryTimeMs int64) PerformanceMetrics {
	return PerformanceMetrics{
		QueryTimeMs:            queryTimeMs,
		QueryComplexity:        ComplexityCached,
		CacheHit:               true,
		IndicesScanned:         0,
		TotalDocumentsExamined: 0,
	}
}

// Filter is one term/terms/range predicate composed conjunctively in the
// query's boolean must clause (spec §4.4). Op is validated upstream by
// the schema validator; unknown operators must never reach this layer.
type Filter struct {
	Field string
	Op    FilterOp
	Value any // scalar for term/range, []any for terms
}

// FilterOp enumerates the predicate kinds spec §4.4 allows.
type FilterOp string

const (
	FilterTerm  FilterOp = "term"
	FilterTerms FilterOp = "terms"
	FilterRange FilterOp = "range"
)

// TimeRange is either an hours-back window or an explicit bound.
type TimeRange struct {
	TimeRangeHours int
	StartTime      time.Time
	EndTime        time.Time
	Explicit       bool
}

// SortOrder is asc or desc.
type SortOrder string

const (
	SortDesc SortOrder = "desc"
	SortAsc  SortOrder = "asc"
)

// QueryRequest is the caller-supplied shape of a query, before policy
// (page-size caps, field reduction) is applied.
type QueryRequest struct {
	Indices   []string
	Time      TimeRange
	Filters   []Filter
	Fields    []string // projection; empty means all fields
	PageSize  int
	SortBy    string
	SortOrder SortOrder

	// Pagination mode selectors.
	PageNumber int    // page-number mode, ignored if Cursor is set
	Cursor     string // cursor mode, preferred for deep scans
}

// PageResult is the page-number-mode pagination metadata from spec §4.4.
type PageResult struct {
	PageNumber  int  `json:"page_number"`
	TotalPages  int  `json:"total_pages"`
	HasPrevious bool `json:"has_previous"`
	HasNext     bool `json:"has_next"`
	StartIndex  int  `json:"start_index"`
	EndIndex    int  `json:"end_index"`
}

// CursorResult is the cursor-mode pagination payload.
type CursorResult struct {
	Cursor        string `json:"cursor"`
	NextPageToken string `json:"next_page_token"`
	HasMore       bool   `json:"has_more"`
}

// QueryResponse bundles events with pagination metadata and performance
// metrics, matching spec §3/§4.4's "every paginated or streamed response"
// contract.
type QueryResponse struct {
	Events     []Event
	Page       *PageResult
	CursorPage *CursorResult
	Metrics    PerformanceMetrics
}
