// Package validate implements the Schema Validator (spec §4.1): bounded
// validation of every inbound frame before any business logic runs, plus
// sanitation of free-form string arguments.
//
// Order of checks matches spec §4.1 exactly: size → UTF-8 well-formedness
// → JSON parse → depth → container bounds → JSON-RPC shape → (for
// tools/call) per-tool parameter schema.
//
// The nesting-depth convention, the sanitation regexes, and the
// normalize-never-reject sanitation contract are grounded on
// original_source/src/security/mcp_schema_validator.py (the original
// implementation's _get_nesting_depth and sanitize_string_input).
package validate

import (
	"regexp"
	"strings"
	"unicode/utf8"

	json "github.com/goccy/go-json"

	"github.com/dshield-mcp/dshield-mcp-server/internal/mcperr"
	"github.com/dshield-mcp/dshield-mcp-server/internal/obslog"
)

// Bounds, all inclusive, from spec §4.1.
const (
	MaxMessageSize  = 10 * 1024 * 1024
	MaxNestingDepth = 100
	MaxArrayLength  = 10000
	MaxObjectKeys   = 10000
	MaxStringLength = 65536
)

// Outcome is the result of validating one raw frame.
type Outcome struct {
	// Parsed is the decoded JSON value when validation succeeded.
	Parsed any
	// Dropped is true when the frame failed a structural check and must
	// be silently dropped per spec §4.1's failure contract (no error
	// frame is emitted for these — only a WARN log).
	Dropped bool
	Reason  string
}

// ValidateFrame runs the size → UTF-8 → parse → depth → container-bounds
// checks. A true Outcome.Dropped means the caller must drop the message
// without responding, logging at WARN (the failure contract for
// structural violations, as opposed to per-tool parameter failures which
// surface as invalid_params).
func ValidateFrame(raw []byte) Outcome {
	log := obslog.Component("validate")

	if len(raw) > MaxMessageSize {
		log.Warn().Int("size", len(raw)).Int("limit", MaxMessageSize).Msg("message exceeds size limit")
		return Outcome{Dropped: true, Reason: "message_too_large"}
	}
	if !utf8.Valid(raw) {
		log.Warn().Msg("message is not valid UTF-8")
		return Outcome{Dropped: true, Reason: "invalid_utf8"}
	}

	var parsed any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		log.Warn().Err(err).Msg("invalid JSON structure")
		return Outcome{Dropped: true, Reason: "invalid_json"}
	}

	if depth := nestingDepth(parsed, 0); depth > MaxNestingDepth {
		log.Warn().Int("depth", depth).Int("limit", MaxNestingDepth).Msg("nesting depth exceeds limit")
		return Outcome{Dropped: true, Reason: "nesting_too_deep"}
	}

	if violation := checkContainerBounds(parsed); violation != "" {
		log.Warn().Str("violation", violation).Msg("container bounds exceeded")
		return Outcome{Dropped: true, Reason: violation}
	}

	return Outcome{Parsed: parsed}
}

// nestingDepth computes the maximum nesting depth of obj. current_depth
// starts at 0 and is only incremented when recursing into a child
// container, so a bare scalar root is depth 0 and a non-empty root
// object/array is depth 1 — the Open Question resolution documented in
// SPEC_FULL.md §2, matching the original's current_depth semantics.
func nestingDepth(obj any, currentDepth int) int {
	if currentDepth > MaxNestingDepth {
		return currentDepth
	}
	switch v := obj.(type) {
	case map[string]any:
		if len(v) == 0 {
			return currentDepth
		}
		max := currentDepth
		for _, value := range v {
			if d := nestingDepth(value, currentDepth+1); d > max {
				max = d
			}
		}
		return max
	case []any:
		if len(v) == 0 {
			return currentDepth
		}
		max := currentDepth
		for _, item := range v {
			if d := nestingDepth(item, currentDepth+1); d > max {
				max = d
			}
		}
		return max
	default:
		return currentDepth
	}
}

// checkContainerBounds walks obj enforcing array-length, object-key-count,
// and string-length ceilings, returning the name of the first violation
// found (empty string if none).
func checkContainerBounds(obj any) string {
	switch v := obj.(type) {
	case map[string]any:
		if len(v) > MaxObjectKeys {
			return "too_many_object_keys"
		}
		for _, value := range v {
			if violation := checkContainerBounds(value); violation != "" {
				return violation
			}
		}
	case []any:
		if len(v) > MaxArrayLength {
			return "array_too_long"
		}
		for _, item := range v {
			if violation := checkContainerBounds(item); violation != "" {
				return violation
			}
		}
	case string:
		if len(v) > MaxStringLength {
			return "string_too_long"
		}
	}
	return ""
}

// sqlPatterns mirrors the original's sanitize_string_input regex list.
var sqlPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(SELECT|INSERT|UPDATE|DELETE|DROP|CREATE|ALTER|EXEC|UNION)\b`),
	regexp.MustCompile(`--|#|/\*|\*/`),
	regexp.MustCompile(`(?i)\b(OR|AND)\s+\d+\s*=\s*\d+`),
	regexp.MustCompile(`(?i)\b(OR|AND)\s+'.*'\s*=\s*'.*'`),
	regexp.MustCompile(`(?i)\b(OR|AND)\s+".*"\s*=\s*".*"`),
}

// scriptPattern strips the common HTML-script injection shape; the
// original only targets SQL, this adds the XSS half spec §4.1 calls for
// ("remove substrings matching common SQL-injection and HTML-script
// patterns").
var scriptPattern = regexp.MustCompile(`(?i)<\s*script[^>]*>.*?<\s*/\s*script\s*>`)

// SanitizeCounter tracks how many strings were modified during
// sanitation, for observability — sanitation itself never errors.
type SanitizeCounter struct {
	modified int64
}

// Count returns the number of strings sanitation has modified so far.
func (c *SanitizeCounter) Count() int64 { return c.modified }

// SanitizeTracked behaves like Sanitize but records a hit on c whenever
// the output differs from the input.
func (c *SanitizeCounter) SanitizeTracked(value string, maxLength int) string {
	out := Sanitize(value, maxLength)
	if out != value {
		c.modified++
	}
	return out
}

// Sanitize normalizes a free-form string reaching a tool argument:
// truncate, strip disallowed control characters, strip SQL/XSS
// patterns, then trim. It never rejects — per spec §4.1 and the Open
// Question resolution in SPEC_FULL.md §2, callers needing byte-exact
// input should skip sanitation for that argument.
func Sanitize(value string, maxLength int) string {
	if maxLength <= 0 {
		maxLength = MaxStringLength
	}
	if len(value) > maxLength {
		value = value[:maxLength]
	}

	var b strings.Builder
	b.Grow(len(value))
	for _, r := range value {
		if r >= 32 || r == '\t' || r == '\n' || r == '\r' {
			b.WriteRune(r)
		}
	}
	value = b.String()

	value = scriptPattern.ReplaceAllString(value, "")
	for _, p := range sqlPatterns {
		value = p.ReplaceAllString(value, "")
	}

	return strings.TrimSpace(value)
}

// RequestShape is the minimal structural check for the request /
// response / notification discriminant (spec §3), independent of the
// frame package's richer id-tracking — used here to decide which schema
// applies before handing off to the frame package for full decode.
type RequestShape struct {
	JSONRPC string `json:"jsonrpc"`
	ID      any    `json:"id"`
	Method  string `json:"method"`
}

// ValidateMethodName enforces the method-name shape: non-empty, ≤100
// chars. The original request schema's pattern
// (^[a-zA-Z_][a-zA-Z0-9_.]*$) has no allowance for "/", which would
// reject every normative MCP method name in spec §6 ("tools/list",
// "tools/call") — so "/" is added here as a namespace separator.
var methodNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_./]*$`)

// ValidateMethodName returns an invalid_params error when method does
// not match the JSON-RPC method naming shape.
func ValidateMethodName(method string) *mcperr.StructuredError {
	if method == "" || len(method) > 100 || !methodNamePattern.MatchString(method) {
		return mcperr.New(mcperr.CodeInvalidParams, "malformed method name", mcperr.WithPointer("/method"))
	}
	return nil
}
