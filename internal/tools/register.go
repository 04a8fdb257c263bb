package tools

import (
	"github.com/dshield-mcp/dshield-mcp-server/internal/dispatch"
	"github.com/dshield-mcp/dshield-mcp-server/internal/feature"
	"github.com/dshield-mcp/dshield-mcp-server/internal/registry"
)

// RegisterAll registers every tool spec §6 names into reg and wires its
// handler into disp. Called once at startup after ES/DShield/campaign
// collaborators are constructed.
func RegisterAll(reg *registry.Registry, disp *dispatch.Dispatcher, d Deps) error {
	descriptors := []registry.Descriptor{
		{
			Name:             "query_dshield_events",
			Description:      "Query DShield-indexed security events from Elasticsearch with cursor-based pagination.",
			Category:         registry.CategoryQuery,
			RequiredFeatures: []feature.Tag{feature.Elasticsearch},
			TimeoutSeconds:   30,
			ParameterSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"time_range_hours": map[string]any{"type": "integer", "minimum": 1, "maximum": 1000},
					"start_time":       map[string]any{"type": "string", "format": "date-time"},
					"end_time":         map[string]any{"type": "string", "format": "date-time"},
					"indices":          map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					"filters":          map[string]any{"type": "array"},
					"fields":           map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					"page_size":        map[string]any{"type": "integer", "minimum": 1, "maximum": 1000},
					"page_number":      map[string]any{"type": "integer", "minimum": 1},
					"cursor":           map[string]any{"type": "string"},
					"sort_order":       map[string]any{"type": "string", "enum": []string{"asc", "desc"}},
				},
			},
		},
		{
			Name:             "stream_dshield_events_with_session_context",
			Description:      "Stream DShield events grouped into sessions, resumable via a stream_id cursor.",
			Category:         registry.CategoryQuery,
			RequiredFeatures: []feature.Tag{feature.Elasticsearch},
			TimeoutSeconds:   60,
			ParameterSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"time_range_hours":        map[string]any{"type": "integer", "minimum": 1},
					"chunk_size":              map[string]any{"type": "integer", "minimum": 1, "maximum": 1000},
					"session_fields":          map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					"max_session_gap_minutes": map[string]any{"type": "integer", "minimum": 1},
					"filters":                 map[string]any{"type": "array"},
					"stream_id":               map[string]any{"type": "string"},
				},
			},
		},
		{
			Name:             "get_data_dictionary",
			Description:      "List the fields query_dshield_events and related tools accept as filters and projections.",
			Category:         registry.CategoryMonitoring,
			RequiredFeatures: nil,
			TimeoutSeconds:   5,
			ParameterSchema:  map[string]any{"type": "object", "properties": map[string]any{}},
		},
		{
			Name:             "analyze_campaign",
			Description:      "Correlate a seed set of indicators against Elasticsearch events into a new campaign.",
			Category:         registry.CategoryAnalysis,
			RequiredFeatures: []feature.Tag{feature.Elasticsearch},
			TimeoutSeconds:   60,
			ParameterSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"seed_iocs":          map[string]any{"type": "array", "minItems": 1, "maxItems": 100, "items": map[string]any{"type": "string", "minLength": 1, "maxLength": 1000}},
					"time_range":         map[string]any{"type": "object"},
					"correlation_window": map[string]any{"type": "integer", "minimum": 1, "maximum": 1440},
				},
				"required": []string{"seed_iocs"},
			},
		},
		{
			Name:             "expand_campaign_indicators",
			Description:      "Re-run indicator correlation for an existing campaign, using its current indicators as the new seed set.",
			Category:         registry.CategoryAnalysis,
			RequiredFeatures: []feature.Tag{feature.Elasticsearch},
			TimeoutSeconds:   60,
			ParameterSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{"campaign_id": map[string]any{"type": "string", "pattern": "^[A-Za-z0-9_-]{1,100}$"}},
				"required":   []string{"campaign_id"},
			},
		},
		{
			Name:             "get_campaign_timeline",
			Description:      "Bucket a campaign's matching events into a date histogram.",
			Category:         registry.CategoryAnalysis,
			RequiredFeatures: []feature.Tag{feature.Elasticsearch},
			TimeoutSeconds:   30,
			ParameterSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"campaign_id": map[string]any{"type": "string", "pattern": "^[A-Za-z0-9_-]{1,100}$"},
					"granularity": map[string]any{"type": "string", "enum": []string{"hourly", "daily", "weekly"}},
				},
				"required": []string{"campaign_id"},
			},
		},
		{
			Name:             "enrich_ip_with_dshield",
			Description:      "Look up IP reputation from the DShield threat-intelligence API.",
			Category:         registry.CategoryEnrichment,
			RequiredFeatures: []feature.Tag{feature.DShield},
			TimeoutSeconds:   20,
			ParameterSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{"ip_addresses": map[string]any{"type": "array", "minItems": 1, "items": map[string]any{"type": "string"}}},
				"required":   []string{"ip_addresses"},
			},
		},
		{
			Name:             "generate_attack_report",
			Description:      "Assemble a structured attack report for a campaign: timeline, indicators, and IP-reputation enrichment.",
			Category:         registry.CategoryReporting,
			RequiredFeatures: []feature.Tag{feature.Elasticsearch},
			TimeoutSeconds:   60,
			ParameterSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"campaign_id":   map[string]any{"type": "string", "pattern": "^[A-Za-z0-9_-]{1,100}$"},
					"template_name": map[string]any{"type": "string", "maxLength": 100},
					"output_path":   map[string]any{"type": "string", "maxLength": 500},
				},
				"required": []string{"campaign_id"},
			},
		},
		{
			Name:             "get_health_status",
			Description:      "Report feature availability, circuit-breaker state, and rate-limiter headroom.",
			Category:         registry.CategoryMonitoring,
			RequiredFeatures: nil,
			TimeoutSeconds:   30,
			ParameterSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{"detailed": map[string]any{"type": "boolean"}},
			},
		},
	}

	for _, desc := range descriptors {
		if err := reg.Register(desc); err != nil {
			return err
		}
	}

	disp.RegisterHandler("query_dshield_events", d.QueryDShieldEvents)
	disp.RegisterHandler("stream_dshield_events_with_session_context", d.StreamDShieldEventsWithSessionContext)
	disp.RegisterHandler("get_data_dictionary", d.GetDataDictionary)
	disp.RegisterHandler("analyze_campaign", d.AnalyzeCampaign)
	disp.RegisterHandler("expand_campaign_indicators", d.ExpandCampaignIndicators)
	disp.RegisterHandler("get_campaign_timeline", d.GetCampaignTimeline)
	disp.RegisterHandler("enrich_ip_with_dshield", d.EnrichIPWithDShield)
	disp.RegisterHandler("generate_attack_report", d.GenerateAttackReport)
	disp.RegisterHandler("get_health_status", d.GetHealthStatus)

	return nil
}
