// Package siemsession implements the Session Chunker (spec §4.5): it
// partitions a time-descending event stream into sessions keyed by a
// composite field tuple plus an inter-event gap, snapping chunk
// boundaries to session boundaries wherever possible.
//
// This is the algorithmic core with no direct corpus equivalent; the
// accumulate/emit/resume shape follows
// brennhill-gasoline-mcp-ai-devtools/internal/streaming/stream.go's
// StreamState pattern (lock-guarded accumulation, a single emit point,
// resumable cursor state) adapted from alert deduplication to session
// grouping.
package siemsession

import (
	"fmt"
	"strings"
	"time"

	"github.com/dshield-mcp/dshield-mcp-server/internal/esclient"
)

// DefaultSessionFields is the field set used when the caller does not
// supply one (ported from
// original_source/src/mcp/tools/stream_dshield_events_with_session_context.py's
// default_factory).
var DefaultSessionFields = []string{"source.ip", "destination.ip"}

// Key is the composite session key computed from an event's
// session-field values, joined in field order.
type Key string

// ComputeKey derives a session Key from an event, treating a missing
// field value as an empty string (spec §4.5 degenerate case).
func ComputeKey(event esclient.Event, fields []string) Key {
	parts := make([]string, len(fields))
	for i, f := range fields {
		if v, ok := event.Fields[f]; ok && v != nil {
			parts[i] = toKeyString(v)
		}
	}
	return Key(strings.Join(parts, "\x1f"))
}

// IsSynthetic reports whether every component of the key was empty —
// spec §4.5: "a session with all-empty key is valid but marked
// synthetic: true".
func (k Key) IsSynthetic() bool {
	for _, r := range string(k) {
		if r != '\x1f' {
			return false
		}
	}
	return true
}

func toKeyString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// openSession tracks one in-progress session during chunk accumulation.
type openSession struct {
	key         Key
	fields      []string
	firstSeen   time.Time
	lastSeen    time.Time
	firstValues map[string]string
	eventCount  int
	synthetic   bool
}

// Summary is a completed session's §4.5 summary.
type Summary struct {
	SessionKey      string            `json:"session_key"`
	EventCount      int               `json:"event_count"`
	DurationMinutes float64           `json:"duration_minutes"`
	Metadata        map[string]string `json:"metadata"`
	Synthetic       bool              `json:"synthetic,omitempty"`
}

func (s *openSession) toSummary() Summary {
	duration := s.firstSeen.Sub(s.lastSeen)
	if duration < 0 {
		duration = -duration
	}
	return Summary{
		SessionKey:      string(s.key),
		EventCount:      s.eventCount,
		DurationMinutes: duration.Minutes(),
		Metadata:        s.firstValues,
		Synthetic:       s.synthetic,
	}
}
