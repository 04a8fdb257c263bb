package siemsession

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"time"

	json "github.com/goccy/go-json"

	"github.com/dshield-mcp/dshield-mcp-server/internal/esclient"
	"github.com/dshield-mcp/dshield-mcp-server/internal/mcpmetrics"
)

// Config bounds a Chunker's behavior (spec §4.5 contract).
type Config struct {
	SessionFields []string
	MaxSessionGap time.Duration
	ChunkSize     int
}

// Context is the sessionContext returned alongside each chunk.
type Context struct {
	SessionFields        []string  `json:"session_fields"`
	MaxSessionGapMinutes float64   `json:"max_session_gap_minutes"`
	SessionsInChunk      int       `json:"sessions_in_chunk"`
	SessionSummaries     []Summary `json:"session_summaries,omitempty"`
}

// Result is one chunk-cut's output.
type Result struct {
	Events              []esclient.Event
	TotalCountEstimate  int64
	NextStreamID        string
	Context             Context
	OptimizationApplied []string
}

// state is the resumable snapshot encoded into NextStreamID.
type state struct {
	UpstreamCursor string                         `json:"upstream_cursor"`
	Pending        *esclient.Event                `json:"pending_event,omitempty"`
	Open           map[string]openSessionSnapshot `json:"open_sessions"`
}

type openSessionSnapshot struct {
	Fields      []string          `json:"fields"`
	FirstSeen   time.Time         `json:"first_seen"`
	LastSeen    time.Time         `json:"last_seen"`
	FirstValues map[string]string `json:"first_values"`
	EventCount  int               `json:"event_count"`
	Synthetic   bool              `json:"synthetic"`
}

// Chunker accumulates a single chunk-cut's worth of events from an
// upstream iterator, closing sessions on gap expiry and snapping the
// chunk boundary to a session boundary when possible (spec §4.5).
type Chunker struct {
	cfg     Config
	open    map[Key]*openSession
	pending *esclient.Event // an event pulled from upstream but deferred to the next chunk
}

// New builds a Chunker, restoring open-session state from a prior
// nextStreamId if one is supplied (spec §4.5 step 6: resume).
func New(cfg Config, resumeStreamID string) (*Chunker, string, error) {
	if len(cfg.SessionFields) == 0 {
		cfg.SessionFields = DefaultSessionFields
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 500
	}
	if cfg.MaxSessionGap <= 0 {
		cfg.MaxSessionGap = 30 * time.Minute
	}

	c := &Chunker{cfg: cfg, open: make(map[Key]*openSession)}
	if resumeStreamID == "" {
		return c, "", nil
	}

	st, err := decodeState(resumeStreamID)
	if err != nil {
		return nil, "", fmt.Errorf("invalid stream id: %w", err)
	}
	for k, snap := range st.Open {
		c.open[Key(k)] = &openSession{
			key:         Key(k),
			fields:      snap.Fields,
			firstSeen:   snap.FirstSeen,
			lastSeen:    snap.LastSeen,
			firstValues: snap.FirstValues,
			eventCount:  snap.EventCount,
			synthetic:   snap.Synthetic,
		}
	}
	c.pending = st.Pending
	return c, st.UpstreamCursor, nil
}

// Accumulate consumes events from the iterator until a chunk boundary
// is found or the iterator is exhausted (spec §4.5 steps 1-5). The
// iterator returns (event, ok); ok=false signals end of stream.
func (c *Chunker) Accumulate(next func() (esclient.Event, bool), upstreamCursorAfter func() string) Result {
	var chunk []esclient.Event
	var closedThisChunk []Summary
	var optimizations []string
	hardCeiling := c.cfg.ChunkSize * 2

	pull := func() (esclient.Event, bool) {
		if c.pending != nil {
			e := *c.pending
			c.pending = nil
			return e, true
		}
		return next()
	}

	for {
		event, ok := pull()
		if !ok {
			break
		}

		key := ComputeKey(event, c.cfg.SessionFields)
		eventTime, timeOK := parseEventTime(event.Timestamp)

		existing, had := c.open[key]
		opensNewSession := !had
		gapClose := false
		if had && timeOK {
			gap := existing.lastSeen.Sub(eventTime)
			if gap < 0 {
				gap = -gap
			}
			if gap > c.cfg.MaxSessionGap {
				gapClose = true
				opensNewSession = true
			}
		}

		// If this event would both overflow the soft ceiling and open a
		// new session, snap the chunk boundary here and defer the event.
		if len(chunk) >= c.cfg.ChunkSize && opensNewSession {
			c.pending = &event
			break
		}

		if gapClose {
			closedThisChunk = append(closedThisChunk, existing.toSummary())
			delete(c.open, key)
			had = false
		}

		if had {
			existing.lastSeen = eventTime
			existing.eventCount++
		} else {
			c.open[key] = &openSession{
				key:         key,
				fields:      c.cfg.SessionFields,
				firstSeen:   eventTime,
				lastSeen:    eventTime,
				firstValues: firstValuesFor(event, c.cfg.SessionFields),
				eventCount:  1,
				synthetic:   key.IsSynthetic(),
			}
		}

		chunk = append(chunk, event)

		if len(chunk) >= hardCeiling {
			optimizations = append(optimizations, "session_boundary_forced")
			mcpmetrics.SessionBoundaryForcedTotal.Inc()
			break
		}
	}

	return c.cut(chunk, closedThisChunk, optimizations, upstreamCursorAfter())
}

func (c *Chunker) cut(chunk []esclient.Event, closed []Summary, optimizations []string, upstreamCursor string) Result {
	for _, s := range closed {
		mcpmetrics.SessionsGroupedTotal.WithLabelValues(strconv.FormatBool(s.Synthetic)).Inc()
	}
	var nextStreamID string
	if len(chunk) > 0 || c.pending != nil {
		snapshot := state{UpstreamCursor: upstreamCursor, Pending: c.pending, Open: make(map[string]openSessionSnapshot, len(c.open))}
		for k, s := range c.open {
			snapshot.Open[string(k)] = openSessionSnapshot{
				Fields:      s.fields,
				FirstSeen:   s.firstSeen,
				LastSeen:    s.lastSeen,
				FirstValues: s.firstValues,
				EventCount:  s.eventCount,
				Synthetic:   s.synthetic,
			}
		}
		nextStreamID = encodeState(snapshot)
	}

	return Result{
		Events:             chunk,
		TotalCountEstimate: int64(len(chunk)),
		NextStreamID:       nextStreamID,
		Context: Context{
			SessionFields:        c.cfg.SessionFields,
			MaxSessionGapMinutes: c.cfg.MaxSessionGap.Minutes(),
			SessionsInChunk:      len(closed),
			SessionSummaries:     closed,
		},
		OptimizationApplied: optimizations,
	}
}

func firstValuesFor(event esclient.Event, fields []string) map[string]string {
	out := make(map[string]string, len(fields))
	for _, f := range fields {
		if v, ok := event.Fields[f]; ok && v != nil {
			out[f] = toKeyString(v)
		} else {
			out[f] = ""
		}
	}
	return out
}

func parseEventTime(ts string) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, ts); err == nil {
		return t, true
	}
	return time.Time{}, false
}

func encodeState(s state) string {
	encoded, err := json.Marshal(s)
	if err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(encoded)
}

func decodeState(streamID string) (state, error) {
	raw, err := base64.RawURLEncoding.DecodeString(streamID)
	if err != nil {
		return state{}, err
	}
	var s state
	if err := json.Unmarshal(raw, &s); err != nil {
		return state{}, err
	}
	return s, nil
}
