package tools

import (
	"context"

	json "github.com/goccy/go-json"
)

// fieldDescriptor documents one DShield-indexed field. The set mirrors
// what a `dshield-*` index template actually carries: the ECS-style
// dotted paths the query layer already filters and projects on.
type fieldDescriptor struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

var dataDictionary = []fieldDescriptor{
	{Name: "@timestamp", Type: "date", Description: "Event time, RFC3339 or epoch-ms on ingest, always RFC3339 on the wire."},
	{Name: "source.ip", Type: "ip", Description: "Originating address of the observed connection or attack."},
	{Name: "destination.ip", Type: "ip", Description: "Target address of the observed connection or attack."},
	{Name: "destination.port", Type: "long", Description: "Target port."},
	{Name: "user.name", Type: "keyword", Description: "Authenticated or attempted username, when present."},
	{Name: "session.id", Type: "keyword", Description: "Upstream session identifier, when the source system assigns one."},
	{Name: "event.category", Type: "keyword", Description: "High-level event classification (e.g. network, authentication)."},
	{Name: "event.outcome", Type: "keyword", Description: "success, failure, or unknown."},
	{Name: "url.domain", Type: "keyword", Description: "Domain component of a requested URL, when the event is HTTP-shaped."},
	{Name: "file.hash.sha256", Type: "keyword", Description: "SHA-256 of an observed file payload, when present."},
	{Name: "rule.name", Type: "keyword", Description: "Name of the detection rule that produced the event, when applicable."},
}

// GetDataDictionary implements get_data_dictionary: a static catalog of
// the fields query_dshield_events and stream_dshield_events_with_session_context
// accept as filters/projections/session fields.
func (d Deps) GetDataDictionary(ctx context.Context, raw json.RawMessage) (any, error) {
	return map[string]any{"fields": dataDictionary}, nil
}
