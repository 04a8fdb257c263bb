package tools

import (
	"context"
	"time"

	json "github.com/goccy/go-json"

	"github.com/dshield-mcp/dshield-mcp-server/internal/campaign"
	"github.com/dshield-mcp/dshield-mcp-server/internal/esclient"
	"github.com/dshield-mcp/dshield-mcp-server/internal/mcperr"
)

type timeRangeArg struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type analyzeCampaignArgs struct {
	SeedIOCs          []string      `json:"seed_iocs" validate:"required,min=1,max=100,dive,min=1,max=1000"`
	TimeRange         *timeRangeArg `json:"time_range"`
	CorrelationWindow int           `json:"correlation_window" validate:"omitempty,min=1,max=1440"`
}

// AnalyzeCampaign implements analyze_campaign: correlates a seed set of
// indicators against Elasticsearch events and returns a new campaign id.
func (d Deps) AnalyzeCampaign(ctx context.Context, raw json.RawMessage) (any, error) {
	var args analyzeCampaignArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, mcperr.New(mcperr.CodeInvalidParams, "malformed analyze_campaign arguments", mcperr.WithDetail(err.Error()))
	}
	if err := validate.Struct(args); err != nil {
		return nil, mcperr.New(mcperr.CodeInvalidParams, "invalid analyze_campaign arguments", mcperr.WithDetail(err.Error()))
	}

	timeRange := esclient.TimeRange{TimeRangeHours: d.DefaultTimeRangeHours}
	if args.TimeRange != nil {
		start, sErr := parseRFC3339(args.TimeRange.StartTime)
		end, eErr := parseRFC3339(args.TimeRange.EndTime)
		if sErr != nil || eErr != nil {
			return nil, mcperr.New(mcperr.CodeInvalidParams, "time_range.start_time/end_time must be RFC3339", mcperr.WithPointer("/time_range"))
		}
		timeRange = esclient.TimeRange{StartTime: start, EndTime: end, Explicit: true}
	}

	correlationWindow := time.Duration(args.CorrelationWindow) * time.Minute
	if correlationWindow <= 0 {
		correlationWindow = 60 * time.Minute
	}

	c, err := d.Campaign.Analyze(ctx, args.SeedIOCs, timeRange, correlationWindow)
	if err != nil {
		return nil, mcperr.New(mcperr.CodeUpstreamUnavailable, "campaign analysis query failed", mcperr.WithDetail(err.Error()))
	}
	return c, nil
}

type campaignIDArgs struct {
	CampaignID string `json:"campaign_id" validate:"required,max=100"`
}

// ExpandCampaignIndicators implements expand_campaign_indicators:
// re-runs correlation using an existing campaign's indicators as the
// new seed set.
func (d Deps) ExpandCampaignIndicators(ctx context.Context, raw json.RawMessage) (any, error) {
	var args campaignIDArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, mcperr.New(mcperr.CodeInvalidParams, "malformed expand_campaign_indicators arguments", mcperr.WithDetail(err.Error()))
	}
	if err := validate.Struct(args); err != nil {
		return nil, mcperr.New(mcperr.CodeInvalidParams, "invalid expand_campaign_indicators arguments", mcperr.WithDetail(err.Error()))
	}

	c, err := d.Campaign.Expand(ctx, args.CampaignID)
	if err != nil {
		if _, ok := d.Campaign.Store.Get(args.CampaignID); ok {
			return nil, mcperr.New(mcperr.CodeUpstreamUnavailable, "campaign expansion query failed", mcperr.WithDetail(err.Error()))
		}
		return nil, mcperr.New(mcperr.CodeInvalidParams, "no such campaign", mcperr.WithParam("campaign_id"))
	}
	return c, nil
}

type campaignTimelineArgs struct {
	CampaignID  string `json:"campaign_id" validate:"required,max=100"`
	Granularity string `json:"granularity" validate:"omitempty,oneof=hourly daily weekly"`
}

// GetCampaignTimeline implements get_campaign_timeline: a date-histogram
// of a campaign's matching events at the requested granularity.
func (d Deps) GetCampaignTimeline(ctx context.Context, raw json.RawMessage) (any, error) {
	var args campaignTimelineArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, mcperr.New(mcperr.CodeInvalidParams, "malformed get_campaign_timeline arguments", mcperr.WithDetail(err.Error()))
	}
	if err := validate.Struct(args); err != nil {
		return nil, mcperr.New(mcperr.CodeInvalidParams, "invalid get_campaign_timeline arguments", mcperr.WithDetail(err.Error()))
	}

	granularity := campaign.Granularity(args.Granularity)
	if granularity == "" {
		granularity = campaign.GranularityDaily
	}

	buckets, err := d.Campaign.Timeline(ctx, args.CampaignID, granularity)
	if err != nil {
		if _, ok := d.Campaign.Store.Get(args.CampaignID); ok {
			return nil, mcperr.New(mcperr.CodeUpstreamUnavailable, "campaign timeline query failed", mcperr.WithDetail(err.Error()))
		}
		return nil, mcperr.New(mcperr.CodeInvalidParams, "no such campaign", mcperr.WithParam("campaign_id"))
	}
	return map[string]any{"buckets": buckets}, nil
}

type generateReportArgs struct {
	CampaignID   string `json:"campaign_id" validate:"required,max=100"`
	TemplateName string `json:"template_name" validate:"omitempty,max=100"`
	OutputPath   string `json:"output_path" validate:"omitempty,max=500"`
}

// GenerateAttackReport implements generate_attack_report: assembles the
// structured report data an external renderer (out of scope) would turn
// into a document.
func (d Deps) GenerateAttackReport(ctx context.Context, raw json.RawMessage) (any, error) {
	var args generateReportArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, mcperr.New(mcperr.CodeInvalidParams, "malformed generate_attack_report arguments", mcperr.WithDetail(err.Error()))
	}
	if err := validate.Struct(args); err != nil {
		return nil, mcperr.New(mcperr.CodeInvalidParams, "invalid generate_attack_report arguments", mcperr.WithDetail(err.Error()))
	}

	report, err := d.Report.Generate(ctx, args.CampaignID, campaign.GranularityDaily)
	if err != nil {
		if _, ok := d.Report.Analyzer.Store.Get(args.CampaignID); ok {
			return nil, mcperr.New(mcperr.CodeUpstreamUnavailable, "campaign report queries failed", mcperr.WithDetail(err.Error()))
		}
		return nil, mcperr.New(mcperr.CodeInvalidParams, "no such campaign", mcperr.WithParam("campaign_id"))
	}
	return report, nil
}
