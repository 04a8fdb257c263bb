package esclient

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"sort"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// Cursor is the spec §3 PaginationCursor: it encodes (sortTimestamp,
// tiebreakerDocId) plus the query fingerprint that guards replay against
// schema drift (spec §4.4). The composite cursor shape is ported from
// brennhill-gasoline-mcp-ai-devtools/internal/pagination/cursor.go's
// Cursor/ParseCursor/BuildCursor; this version joins its fields with the
// \x1f unit separator instead of a colon (RFC3339 timestamps contain
// colons), replaces the sequence
// tiebreaker with a doc ID tiebreaker and adds the fingerprint field the
// original had no equivalent for.
type Cursor struct {
	Timestamp   string
	DocID       string
	Fingerprint string
}

// Encode renders the cursor as the opaque wire string: a base64 blob so
// callers cannot infer internal structure, carrying timestamp, doc ID
// and fingerprint joined by \x1f beneath the encoding.
func (c Cursor) Encode() string {
	raw := fmt.Sprintf("%s\x1f%s\x1f%s", c.Timestamp, c.DocID, c.Fingerprint)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// ParseCursor decodes a cursor produced by Encode. An empty string
// yields the zero Cursor (start from the beginning).
func ParseCursor(s string) (Cursor, error) {
	if s == "" {
		return Cursor{}, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return Cursor{}, fmt.Errorf("invalid cursor encoding: %w", err)
	}
	parts := strings.Split(string(raw), "\x1f")
	if len(parts) != 3 {
		return Cursor{}, fmt.Errorf("invalid cursor shape")
	}
	return Cursor{Timestamp: parts[0], DocID: parts[1], Fingerprint: parts[2]}, nil
}

// IsAfter reports whether (ts, docID) sorts strictly after this cursor
// under the (@timestamp desc, docId desc) ordering spec §3 mandates —
// i.e. whether an event at (ts, docID) belongs on the page following
// this cursor.
func (c Cursor) IsAfter(ts, docID string) bool {
	ct, cok := parseTimestamp(c.Timestamp)
	et, eok := parseTimestamp(ts)
	if cok && eok {
		if et.Before(ct) {
			return true
		}
		if et.After(ct) {
			return false
		}
	}
	return docID < c.DocID
}

func parseTimestamp(s string) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// NormalizeTimestamp converts an epoch-ms int64, a string, or a
// time.Time into the canonical RFC3339 wire representation (spec §3:
// "All times on the wire are UTC").
func NormalizeTimestamp(ts any) string {
	switch v := ts.(type) {
	case string:
		return v
	case int64:
		return time.UnixMilli(v).UTC().Format(time.RFC3339)
	case time.Time:
		return v.UTC().Format(time.RFC3339)
	default:
		return ""
	}
}

// Fingerprint is the spec §3 QueryFingerprint: a deterministic hash of
// (indexSet, filters, sortOrder, projection, pageSize), used both to
// guard cursor replay against schema drift and to key the result cache.
func Fingerprint(req QueryRequest) string {
	indices := append([]string(nil), req.Indices...)
	sort.Strings(indices)

	fields := append([]string(nil), req.Fields...)
	sort.Strings(fields)

	filters := append([]Filter(nil), req.Filters...)
	sort.Slice(filters, func(i, j int) bool {
		if filters[i].Field != filters[j].Field {
			return filters[i].Field < filters[j].Field
		}
		return filters[i].Op < filters[j].Op
	})

	type canonicalFilter struct {
		Field string `json:"field"`
		Op    string `json:"op"`
		Value any    `json:"value"`
	}
	canonicalFilters := make([]canonicalFilter, 0, len(filters))
	for _, f := range filters {
		canonicalFilters = append(canonicalFilters, canonicalFilter{Field: f.Field, Op: string(f.Op), Value: f.Value})
	}

	payload := struct {
		Indices   []string          `json:"indices"`
		Filters   []canonicalFilter `json:"filters"`
		SortOrder string            `json:"sort_order"`
		Fields    []string          `json:"fields"`
		PageSize  int               `json:"page_size"`
	}{
		Indices:   indices,
		Filters:   canonicalFilters,
		SortOrder: string(req.SortOrder),
		Fields:    fields,
		PageSize:  req.PageSize,
	}

	encoded, _ := json.Marshal(payload)
	sum := sha256.Sum256(encoded)
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// MatchesFingerprint reports whether a presented cursor's embedded
// fingerprint agrees with the current query — disagreement is
// invalid_cursor (spec §4.4).
func (c Cursor) MatchesFingerprint(fp string) bool {
	return c.Fingerprint == fp
}

// DeepPageGuardExceeded reports whether page-number mode must be refused
// in favor of cursor mode (spec §4.4: pageNumber · pageSize > 10,000).
func DeepPageGuardExceeded(pageNumber, pageSize int) bool {
	return pageNumber*pageSize > 10000
}
