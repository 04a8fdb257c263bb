package tools

import (
	"context"

	json "github.com/goccy/go-json"

	"github.com/dshield-mcp/dshield-mcp-server/internal/esclient"
	"github.com/dshield-mcp/dshield-mcp-server/internal/mcperr"
)

// queryFilterArg is the wire shape of one esclient.Filter.
type queryFilterArg struct {
	Field string `json:"field" validate:"required"`
	Op    string `json:"op" validate:"required,oneof=term terms range"`
	Value any    `json:"value" validate:"required"`
}

// queryArgs is the query_dshield_events parameter schema.
type queryArgs struct {
	TimeRangeHours int              `json:"time_range_hours" validate:"omitempty,min=1"`
	StartTime      string           `json:"start_time"`
	EndTime        string           `json:"end_time"`
	Indices        []string         `json:"indices"`
	Filters        []queryFilterArg `json:"filters"`
	Fields         []string         `json:"fields"`
	PageSize       int              `json:"page_size" validate:"omitempty,min=1,max=1000"`
	PageNumber     int              `json:"page_number" validate:"omitempty,min=1"`
	Cursor         string           `json:"cursor"`
	NextPageToken  string           `json:"next_page_token"`
	SortOrder      string           `json:"sort_order" validate:"omitempty,oneof=asc desc"`
}

// QueryDShieldEvents implements the query_dshield_events tool: a single
// paged or cursor-resumed query against the Elasticsearch Client.
func (d Deps) QueryDShieldEvents(ctx context.Context, raw json.RawMessage) (any, error) {
	var args queryArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, mcperr.New(mcperr.CodeInvalidParams, "malformed query_dshield_events arguments", mcperr.WithDetail(err.Error()))
	}
	if err := validate.Struct(args); err != nil {
		return nil, mcperr.New(mcperr.CodeInvalidParams, "invalid query_dshield_events arguments", mcperr.WithDetail(err.Error()))
	}

	req, err := buildQueryRequest(args, d.MaxResults, d.DefaultTimeRangeHours)
	if err != nil {
		return nil, err
	}

	resp, serr := d.ES.Query(ctx, req)
	if serr != nil {
		return nil, serr
	}
	return resp, nil
}

func buildQueryRequest(args queryArgs, maxResults, defaultTimeRangeHours int) (esclient.QueryRequest, *mcperr.StructuredError) {
	pageSize := args.PageSize
	if pageSize == 0 {
		pageSize = maxResults
	}
	if pageSize > maxResults {
		pageSize = maxResults
	}

	timeRange := esclient.TimeRange{TimeRangeHours: args.TimeRangeHours}
	if timeRange.TimeRangeHours == 0 {
		timeRange.TimeRangeHours = defaultTimeRangeHours
	}
	if args.StartTime != "" && args.EndTime != "" {
		start, sErr := parseRFC3339(args.StartTime)
		end, eErr := parseRFC3339(args.EndTime)
		if sErr != nil || eErr != nil {
			return esclient.QueryRequest{}, mcperr.New(mcperr.CodeInvalidParams, "start_time/end_time must be RFC3339", mcperr.WithPointer("/start_time"))
		}
		timeRange = esclient.TimeRange{StartTime: start, EndTime: end, Explicit: true}
	}

	filters := make([]esclient.Filter, 0, len(args.Filters))
	for _, f := range args.Filters {
		filters = append(filters, esclient.Filter{Field: f.Field, Op: esclient.FilterOp(f.Op), Value: f.Value})
	}

	sortOrder := esclient.SortDesc
	if args.SortOrder == string(esclient.SortAsc) {
		sortOrder = esclient.SortAsc
	}

	cursor := args.Cursor
	if cursor == "" {
		cursor = args.NextPageToken
	}

	return esclient.QueryRequest{
		Indices:    args.Indices,
		Time:       timeRange,
		Filters:    filters,
		Fields:     args.Fields,
		PageSize:   pageSize,
		SortOrder:  sortOrder,
		PageNumber: args.PageNumber,
		Cursor:     cursor,
	}, nil
}
