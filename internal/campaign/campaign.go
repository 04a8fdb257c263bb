// Package campaign implements the campaign-analysis tools supplemented
// from the original implementation's tool surface (analyze_campaign,
// expand_campaign_indicators, get_campaign_timeline,
// generate_attack_report): correlating a seed set of indicators of
// compromise against Elasticsearch events, and tracking the resulting
// working set for the life of the process.
//
// Campaigns are in-process working state only — consistent with the
// prohibition on persistent storage of queried events — so a process
// restart loses every campaign id; callers must re-run analyze_campaign.
package campaign

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dshield-mcp/dshield-mcp-server/internal/esclient"
)

// IndicatorFields are the event fields scanned for a seed IOC match.
// An IOC may be an IP, a hostname, or a hash; rather than guess its
// type, every indicator is matched against all of these fields with a
// terms query and the union of hits is taken.
var IndicatorFields = []string{"source.ip", "destination.ip", "url.domain", "file.hash.sha256"}

// Campaign is the working set built by analyze_campaign and grown by
// expand_campaign_indicators.
type Campaign struct {
	ID                string
	SeedIOCs          []string
	CorrelatedIOCs    []string
	CorrelationWindow time.Duration
	TimeRange         esclient.TimeRange
	EventCount        int
	CreatedAt         time.Time
}

// Store holds campaigns for the life of the process.
type Store struct {
	mu   sync.RWMutex
	byID map[string]*Campaign
}

// NewStore returns an empty campaign store.
func NewStore() *Store {
	return &Store{byID: make(map[string]*Campaign)}
}

// Get looks up a campaign by id.
func (s *Store) Get(id string) (*Campaign, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byID[id]
	return c, ok
}

func (s *Store) put(c *Campaign) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[c.ID] = c
}

// Analyzer correlates IOCs against Elasticsearch events.
type Analyzer struct {
	ES    *esclient.Client
	Store *Store
}

// Analyze runs one correlation pass: it queries for every seed IOC
// across IndicatorFields within timeRange, then, for every co-occurring
// indicator on a matching event, adds it to CorrelatedIOCs if the event
// that carries it falls within correlationWindow of a seed-matching
// event (spec's "campaign analysis workflow", §1).
func (a *Analyzer) Analyze(ctx context.Context, seedIOCs []string, timeRange esclient.TimeRange, correlationWindow time.Duration) (*Campaign, error) {
	events, err := a.matchEvents(ctx, seedIOCs, timeRange)
	if err != nil {
		return nil, err
	}

	correlated := correlateIndicators(events, seedIOCs, correlationWindow)

	c := &Campaign{
		ID:                uuid.NewString(),
		SeedIOCs:          seedIOCs,
		CorrelatedIOCs:    correlated,
		CorrelationWindow: correlationWindow,
		TimeRange:         timeRange,
		EventCount:        len(events),
		CreatedAt:         time.Now(),
	}
	a.Store.put(c)
	return c, nil
}

// Expand re-runs correlation for an existing campaign using its
// already-correlated indicators as the new seed set, growing the
// working set rather than replacing it.
func (a *Analyzer) Expand(ctx context.Context, campaignID string) (*Campaign, error) {
	c, ok := a.Store.Get(campaignID)
	if !ok {
		return nil, errCampaignNotFound(campaignID)
	}

	seed := mergeUnique(c.SeedIOCs, c.CorrelatedIOCs)
	events, err := a.matchEvents(ctx, seed, c.TimeRange)
	if err != nil {
		return nil, err
	}
	correlated := correlateIndicators(events, seed, c.CorrelationWindow)

	updated := &Campaign{
		ID:                c.ID,
		SeedIOCs:          c.SeedIOCs,
		CorrelatedIOCs:    mergeUnique(c.CorrelatedIOCs, correlated),
		CorrelationWindow: c.CorrelationWindow,
		TimeRange:         c.TimeRange,
		EventCount:        len(events),
		CreatedAt:         c.CreatedAt,
	}
	a.Store.put(updated)
	return updated, nil
}

func (a *Analyzer) matchEvents(ctx context.Context, iocs []string, timeRange esclient.TimeRange) ([]esclient.Event, error) {
	filters := make([]esclient.Filter, 0, len(IndicatorFields))
	for _, field := range IndicatorFields {
		filters = append(filters, esclient.Filter{Field: field, Op: esclient.FilterTerms, Value: toAnySlice(iocs)})
	}

	// Each field is queried independently (terms predicates compose
	// conjunctively within a single QueryRequest, but a campaign match
	// is "any field matches any IOC", a disjunction) — so results are
	// unioned across one request per field rather than expressed as a
	// single conjunctive query.
	seen := make(map[string]esclient.Event)
	for _, f := range filters {
		resp, serr := a.ES.Query(ctx, esclient.QueryRequest{
			Time:      timeRange,
			Filters:   []esclient.Filter{f},
			PageSize:  1000,
			SortOrder: esclient.SortDesc,
		})
		if serr != nil {
			return nil, serr
		}
		for _, e := range resp.Events {
			seen[e.DocID] = e
		}
	}

	out := make([]esclient.Event, 0, len(seen))
	for _, e := range seen {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out, nil
}

// correlateIndicators collects every indicator-field value seen on
// events that is not already a seed, restricted to values whose event
// occurred within correlationWindow of some seed-matching event's
// timestamp — the temporal-proximity test the correlation_window
// parameter exists to enforce, as opposed to the campaign-wide
// time_range (which only bounds matchEvents' query and says nothing
// about how close a co-occurring indicator is to an actual seed hit).
func correlateIndicators(events []esclient.Event, seedIOCs []string, correlationWindow time.Duration) []string {
	seed := make(map[string]bool, len(seedIOCs))
	for _, s := range seedIOCs {
		seed[s] = true
	}

	var seedTimes []time.Time
	for _, e := range events {
		if !eventMatchesSeed(e, seed) {
			continue
		}
		if t, ok := parseEventTimestamp(e.Timestamp); ok {
			seedTimes = append(seedTimes, t)
		}
	}

	found := make(map[string]bool)
	var order []string
	for _, e := range events {
		eventTime, timeOK := parseEventTimestamp(e.Timestamp)
		if !timeOK || !withinWindow(eventTime, seedTimes, correlationWindow) {
			continue
		}
		for _, field := range IndicatorFields {
			v, ok := e.Fields[field]
			if !ok {
				continue
			}
			s := toString(v)
			if s == "" || seed[s] || found[s] {
				continue
			}
			found[s] = true
			order = append(order, s)
		}
	}
	return order
}

// eventMatchesSeed reports whether e carries a seed IOC in any
// indicator field.
func eventMatchesSeed(e esclient.Event, seed map[string]bool) bool {
	for _, field := range IndicatorFields {
		if v, ok := e.Fields[field]; ok && seed[toString(v)] {
			return true
		}
	}
	return false
}

// withinWindow reports whether t falls within window of any timestamp
// in seedTimes.
func withinWindow(t time.Time, seedTimes []time.Time, window time.Duration) bool {
	for _, st := range seedTimes {
		d := t.Sub(st)
		if d < 0 {
			d = -d
		}
		if d <= window {
			return true
		}
	}
	return false
}

func parseEventTimestamp(ts string) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, ts); err == nil {
		return t, true
	}
	return time.Time{}, false
}

func mergeUnique(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range append(append([]string{}, a...), b...) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func toAnySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

type notFoundError string

func (e notFoundError) Error() string { return "campaign not found: " + string(e) }

func errCampaignNotFound(id string) error { return notFoundError(id) }
