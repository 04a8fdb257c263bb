package esclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	json "github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/dshield-mcp/dshield-mcp-server/internal/mcperr"
	"github.com/dshield-mcp/dshield-mcp-server/internal/mcpmetrics"
	"github.com/dshield-mcp/dshield-mcp-server/internal/obslog"
)

// Config is the subset of internal/config.Config the client needs.
type Config struct {
	URL         string
	Username    string
	Password    string
	VerifySSL   bool
	CACertsPath string
	Timeout     time.Duration
}

// Client is the Elasticsearch Client (spec §4.4): connection lifecycle,
// paged query, aggregation passthrough, with retry and circuit-breaker
// protection around every upstream call.
//
// The HTTP transport is hand-built on net/http — grounded on
// brennhill-gasoline-mcp-ai-devtools/internal/bridge/conn.go's DoHTTP and
// connection-error classification — because no Elasticsearch client
// library exists anywhere in the example pack. Retry uses
// cenkalti/backoff/v4 (exponential, 100ms start, 5s cap, 3 attempts);
// the circuit breaker uses sony/gobreaker/v2, configured the way
// tomtom215-cartographus/internal/eventprocessor/circuitbreaker.go
// configures its breakers (ReadyToTrip on ConsecutiveFailures).
type Client struct {
	cfg     Config
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[[]byte]

	mu        sync.Mutex
	connected bool
}

// New builds a Client. Connect must be called before use.
func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	transport := &http.Transport{}
	if !cfg.VerifySSL {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} // #nosec G402 -- operator-opted-in via config
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout, Transport: transport},
		breaker: gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
			Name:        "elasticsearch",
			MaxRequests: 1,
			Interval:    30 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				obslog.Component("esclient").Warn().
					Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
				mcpmetrics.CircuitBreakerState.WithLabelValues("elasticsearch").Set(mcpmetrics.BreakerStateValue(to.String()))
			},
		}),
	}
}

// Connect is idempotent: repeated calls are no-ops once connected.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connected {
		return nil
	}
	if _, err := c.doRequest(ctx, http.MethodGet, "/", nil); err != nil {
		return fmt.Errorf("elasticsearch connect: %w", err)
	}
	c.connected = true
	return nil
}

// Close cancels in-flight requests by closing idle connections. The
// client's own outstanding requests are bound to caller-supplied
// contexts, so cancellation is the caller's responsibility; Close only
// releases pooled transport resources.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.http.CloseIdleConnections()
	c.connected = false
	return nil
}

// IsOpen reports whether the circuit breaker is currently open, the
// signal the Feature Manager uses to gate ES-backed tools (spec §4.4,
// §4.6).
func (c *Client) IsOpen() bool {
	return c.breaker.State() == gobreaker.StateOpen
}

// Query executes a paged or cursor-resumed search (spec §4.4).
func (c *Client) Query(ctx context.Context, req QueryRequest) (QueryResponse, *mcperr.StructuredError) {
	start := time.Now()
	fp := Fingerprint(req)

	var cur Cursor
	if req.Cursor != "" {
		parsed, err := ParseCursor(req.Cursor)
		if err != nil {
			return QueryResponse{}, mcperr.New(mcperr.CodeInvalidCursor, "malformed cursor", mcperr.WithDetail(err.Error()))
		}
		if !parsed.MatchesFingerprint(fp) {
			return QueryResponse{}, mcperr.New(mcperr.CodeInvalidCursor, "cursor does not match current query")
		}
		cur = parsed
	} else if req.PageNumber > 1 && DeepPageGuardExceeded(req.PageNumber, req.PageSize) {
		return QueryResponse{}, mcperr.New(mcperr.CodeInvalidParams, "deep page-number pagination exceeds 10000 documents; use cursor mode",
			mcperr.WithParam("page_number"))
	}

	body, optimizations := buildQuery(req)
	if cur.Timestamp != "" {
		body.SearchAfter = []any{cur.Timestamp, cur.DocID}
	} else if req.PageNumber > 1 {
		body.From = (req.PageNumber - 1) * req.PageSize
	}

	indexPath := joinIndices(req.Indices)
	raw, err := c.executeWithProtection(ctx, http.MethodPost, "/"+indexPath+"/_search", body)
	if err != nil {
		return QueryResponse{}, classifyUpstreamError(err)
	}

	events, total, shards, serr := parseSearchResponse(raw)
	if serr != nil {
		return QueryResponse{}, serr
	}

	metrics := PerformanceMetrics{
		QueryTimeMs:            time.Since(start).Milliseconds(),
		IndicesScanned:         len(req.Indices),
		TotalDocumentsExamined: total,
		QueryComplexity:        complexityFor(optimizations),
		OptimizationApplied:    optimizations,
		ShardsScanned:          shards,
	}
	mcpmetrics.QueryDocumentsExamined.WithLabelValues(string(metrics.QueryComplexity)).Observe(float64(total))

	resp := QueryResponse{Events: events, Metrics: metrics}
	if req.Cursor != "" || req.PageNumber == 0 {
		resp.CursorPage = buildCursorPage(events, fp)
	} else {
		resp.Page = buildPageResult(req, total)
	}
	return resp, nil
}

func complexityFor(optimizations []string) QueryComplexity {
	if len(optimizations) > 0 {
		return ComplexityOptimized
	}
	return ComplexitySimple
}

func buildCursorPage(events []Event, fp string) *CursorResult {
	if len(events) == 0 {
		return &CursorResult{HasMore: false}
	}
	last := events[len(events)-1]
	c := Cursor{Timestamp: last.Timestamp, DocID: last.DocID, Fingerprint: fp}.Encode()
	return &CursorResult{Cursor: c, NextPageToken: c, HasMore: true}
}

func buildPageResult(req QueryRequest, total int64) *PageResult {
	totalPages := 0
	if req.PageSize > 0 {
		totalPages = int((total + int64(req.PageSize) - 1) / int64(req.PageSize))
	}
	page := req.PageNumber
	if page == 0 {
		page = 1
	}
	start := (page - 1) * req.PageSize
	end := start + req.PageSize
	if int64(end) > total {
		end = int(total)
	}
	return &PageResult{
		PageNumber:  page,
		TotalPages:  totalPages,
		HasPrevious: page > 1,
		HasNext:     page < totalPages,
		StartIndex:  start,
		EndIndex:    end,
	}
}

// ExecuteAggregationQuery runs an aggregation-only query (spec §4.4):
// size=0, aggregationsUsed=true, queryComplexity="aggregation".
func (c *Client) ExecuteAggregationQuery(ctx context.Context, indices []string, req AggregationRequest) (map[string]any, PerformanceMetrics, *mcperr.StructuredError) {
	start := time.Now()
	body := buildAggregationQuery(req)

	payload := struct {
		queryBody
		Aggs map[string]any `json:"aggs"`
	}{queryBody: body, Aggs: req.Aggregations}

	indexPath := joinIndices(indices)
	raw, err := c.executeWithProtection(ctx, http.MethodPost, "/"+indexPath+"/_search", payload)
	if err != nil {
		return nil, PerformanceMetrics{}, classifyUpstreamError(err)
	}

	var parsed struct {
		Aggregations map[string]any `json:"aggregations"`
		Shards       struct {
			Total int `json:"total"`
		} `json:"_shards"`
	}
	if jsonErr := json.Unmarshal(raw, &parsed); jsonErr != nil {
		return nil, PerformanceMetrics{}, mcperr.New(mcperr.CodeInternal, "malformed aggregation response", mcperr.WithDetail(jsonErr.Error()))
	}

	metrics := PerformanceMetrics{
		QueryTimeMs:      time.Since(start).Milliseconds(),
		IndicesScanned:   len(indices),
		QueryComplexity:  ComplexityAggregation,
		AggregationsUsed: true,
		ShardsScanned:    parsed.Shards.Total,
	}
	return parsed.Aggregations, metrics, nil
}

// executeWithProtection wraps a single upstream call with the retry
// policy and circuit breaker spec §4.4 specifies.
func (c *Client) executeWithProtection(ctx context.Context, method, path string, body any) ([]byte, error) {
	return c.breaker.Execute(func() ([]byte, error) {
		var payload []byte
		if body != nil {
			encoded, err := json.Marshal(body)
			if err != nil {
				return nil, err
			}
			payload = encoded
		}

		bo := backoff.NewExponentialBackOff()
		bo.InitialInterval = 100 * time.Millisecond
		bo.MaxInterval = 5 * time.Second
		boWithCtx := backoff.WithContext(backoff.WithMaxRetries(bo, 2), ctx)

		var result []byte
		operation := func() error {
			raw, err := c.doRequest(ctx, method, path, payload)
			if err != nil {
				return err
			}
			result = raw
			return nil
		}
		if err := backoff.Retry(operation, boWithCtx); err != nil {
			return nil, err
		}
		return result, nil
	})
}

func (c *Client) doRequest(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, c.cfg.URL+path, reader)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.Username != "" {
		httpReq.SetBasicAuth(c.cfg.Username, c.cfg.Password)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, err
	}
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("elasticsearch returned %d: %s", resp.StatusCode, buf.String())
	}
	if resp.StatusCode >= 400 {
		return nil, backoff.Permanent(fmt.Errorf("elasticsearch returned %d: %s", resp.StatusCode, buf.String()))
	}
	return buf.Bytes(), nil
}

func classifyUpstreamError(err error) *mcperr.StructuredError {
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return mcperr.New(mcperr.CodeUpstreamUnavailable, "elasticsearch circuit breaker is open",
			mcperr.WithRetryable(true), mcperr.WithRetryAfterMs(30000))
	}
	return mcperr.New(mcperr.CodeUpstreamUnavailable, "elasticsearch request failed",
		mcperr.WithRetryable(true), mcperr.WithDetail(err.Error()))
}

func joinIndices(indices []string) string {
	out := ""
	for i, idx := range indices {
		if i > 0 {
			out += ","
		}
		out += idx
	}
	if out == "" {
		return "*"
	}
	return out
}

type searchHit struct {
	ID     string         `json:"_id"`
	Index  string         `json:"_index"`
	Source map[string]any `json:"_source"`
	Sort   []any          `json:"sort"`
}

func parseSearchResponse(raw []byte) ([]Event, int64, int, *mcperr.StructuredError) {
	var parsed struct {
		Took  int `json:"took"`
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []searchHit `json:"hits"`
		} `json:"hits"`
		Shards struct {
			Total int `json:"total"`
		} `json:"_shards"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, 0, 0, mcperr.New(mcperr.CodeInternal, "malformed search response", mcperr.WithDetail(err.Error()))
	}

	events := make([]Event, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		ts, _ := hit.Source["@timestamp"].(string)
		events = append(events, Event{
			Timestamp: ts,
			DocID:     hit.ID,
			Index:     hit.Index,
			Fields:    hit.Source,
		})
	}
	return events, parsed.Hits.Total.Value, parsed.Shards.Total, nil
}
