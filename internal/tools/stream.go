package tools

import (
	"context"
	"time"

	json "github.com/goccy/go-json"

	"github.com/dshield-mcp/dshield-mcp-server/internal/esclient"
	"github.com/dshield-mcp/dshield-mcp-server/internal/mcperr"
	"github.com/dshield-mcp/dshield-mcp-server/internal/siemsession"
)

// streamArgs is the stream_dshield_events_with_session_context
// parameter schema (spec §6, confirmed against
// original_source/src/mcp/tools/stream_dshield_events_with_session_context.py).
type streamArgs struct {
	TimeRangeHours       int              `json:"time_range_hours" validate:"omitempty,min=1"`
	ChunkSize            int              `json:"chunk_size" validate:"omitempty,min=1,max=1000"`
	SessionFields        []string         `json:"session_fields"`
	MaxSessionGapMinutes int              `json:"max_session_gap_minutes" validate:"omitempty,min=1"`
	Filters              []queryFilterArg `json:"filters"`
	StreamID             string           `json:"stream_id"`
}

// streamResult is the wire shape returned to the caller: the chunk's
// events plus the session context and the opaque id to resume with.
type streamResult struct {
	Events              []esclient.Event            `json:"events"`
	TotalCountEstimate  int64                       `json:"total_count_estimate"`
	NextStreamID        string                      `json:"next_stream_id"`
	SessionContext      siemsession.Context         `json:"session_context"`
	OptimizationApplied []string                    `json:"optimization_applied"`
	PerformanceMetrics  esclient.PerformanceMetrics `json:"performance_metrics"`
}

// StreamDShieldEventsWithSessionContext implements
// stream_dshield_events_with_session_context: one ES fetch feeding the
// Session Chunker, resuming from a prior stream_id when supplied.
func (d Deps) StreamDShieldEventsWithSessionContext(ctx context.Context, raw json.RawMessage) (any, error) {
	var args streamArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, mcperr.New(mcperr.CodeInvalidParams, "malformed stream arguments", mcperr.WithDetail(err.Error()))
	}
	if err := validate.Struct(args); err != nil {
		return nil, mcperr.New(mcperr.CodeInvalidParams, "invalid stream arguments", mcperr.WithDetail(err.Error()))
	}

	timeRangeHours := args.TimeRangeHours
	if timeRangeHours == 0 {
		timeRangeHours = d.DefaultTimeRangeHours
	}
	chunkSize := args.ChunkSize
	if chunkSize == 0 {
		chunkSize = 500
	}
	gapMinutes := args.MaxSessionGapMinutes
	if gapMinutes == 0 {
		gapMinutes = 30
	}

	chunker, resumeCursor, err := siemsession.New(siemsession.Config{
		SessionFields: args.SessionFields,
		MaxSessionGap: time.Duration(gapMinutes) * time.Minute,
		ChunkSize:     chunkSize,
	}, args.StreamID)
	if err != nil {
		return nil, mcperr.New(mcperr.CodeInvalidCursor, "invalid stream_id", mcperr.WithDetail(err.Error()))
	}

	filters := make([]esclient.Filter, 0, len(args.Filters))
	for _, f := range args.Filters {
		filters = append(filters, esclient.Filter{Field: f.Field, Op: esclient.FilterOp(f.Op), Value: f.Value})
	}

	fetchSize := d.MaxResults
	if fetchSize <= 0 {
		fetchSize = 1000
	}
	queryReq := esclient.QueryRequest{
		Time:      esclient.TimeRange{TimeRangeHours: timeRangeHours},
		Filters:   filters,
		PageSize:  fetchSize,
		SortOrder: esclient.SortDesc,
		Cursor:    resumeCursor,
	}
	resp, serr := d.ES.Query(ctx, queryReq)
	if serr != nil {
		return nil, serr
	}

	fp := esclient.Fingerprint(queryReq)
	events := resp.Events
	idx := 0
	lastConsumed := -1
	next := func() (esclient.Event, bool) {
		if idx >= len(events) {
			return esclient.Event{}, false
		}
		e := events[idx]
		lastConsumed = idx
		idx++
		return e, true
	}
	// The resumable cursor must point just past the last event the
	// chunker actually pulled from the iterator, not the trailing edge
	// of the whole fetched page — otherwise a soft cut (the common
	// case) silently drops every unconsumed event between the cut and
	// the page's end.
	upstreamCursorAfter := func() string {
		if lastConsumed < 0 {
			return resumeCursor
		}
		last := events[lastConsumed]
		return esclient.Cursor{Timestamp: last.Timestamp, DocID: last.DocID, Fingerprint: fp}.Encode()
	}

	result := chunker.Accumulate(next, upstreamCursorAfter)

	return streamResult{
		Events:              result.Events,
		TotalCountEstimate:  result.TotalCountEstimate,
		NextStreamID:        result.NextStreamID,
		SessionContext:      result.Context,
		OptimizationApplied: result.OptimizationApplied,
		PerformanceMetrics:  resp.Metrics,
	}, nil
}
