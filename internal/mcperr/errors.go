// Package mcperr taxonomizes errors into stable JSON-RPC error objects
// (spec §4.7, §7). The functional-options shape — StructuredError plus
// With* option functions applied over per-code retry defaults — is kept
// from brennhill-gasoline-mcp-ai-devtools/internal/mcp/errors.go; the
// error codes and numeric JSON-RPC mapping are the spec's own taxonomy.
package mcperr

import "fmt"

// Code is one of the eight stable taxonomy members from spec §4.7.
type Code string

const (
	CodeInvalidParams      Code = "invalid_params"
	CodeUnknownTool        Code = "unknown_tool"
	CodeFeatureUnavailable Code = "feature_unavailable"
	CodeTimeout            Code = "timeout"
	CodeUpstreamUnavailable Code = "upstream_unavailable"
	CodeRateLimited        Code = "rate_limited"
	CodeInvalidCursor      Code = "invalid_cursor"
	CodeInternal           Code = "internal"
)

// jsonRPCCode maps each taxonomy member to a stable JSON-RPC numeric
// error code. The standard JSON-RPC reserved range is -32768..-32000;
// invalid_params and unknown_tool reuse the standard -32602 and -32601,
// the other members live in -32000..-32099, one code per taxonomy
// member, and no code changes once assigned.
var jsonRPCCode = map[Code]int{
	CodeInvalidParams:       -32602, // JSON-RPC standard "Invalid params"
	CodeUnknownTool:         -32601, // JSON-RPC standard "Method not found"
	CodeFeatureUnavailable:  -32001,
	CodeTimeout:             -32002,
	CodeUpstreamUnavailable: -32003,
	CodeRateLimited:         -32004,
	CodeInvalidCursor:       -32005,
	CodeInternal:            -32000,
}

// JSONRPCCode returns the stable numeric code for c.
func (c Code) JSONRPCCode() int { return jsonRPCCode[c] }

// StructuredError is the `data` payload of a JSON-RPC error object.
// Fields are redaction-safe by construction: callers must never put a
// stack trace, credential, or raw index name into Detail.
type StructuredError struct {
	Code         Code   `json:"code"`
	Message      string `json:"message"`
	Param        string `json:"param,omitempty"`
	Pointer      string `json:"pointer,omitempty"`
	Retryable    bool   `json:"retryable"`
	RetryAfterMs int    `json:"retry_after_ms,omitempty"`
	Detail       string `json:"detail,omitempty"`
}

// Error implements the error interface so StructuredError can travel
// through normal Go error-handling paths before being surfaced on the wire.
func (e *StructuredError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Option mutates a StructuredError under construction.
type Option func(*StructuredError)

// WithParam names the offending top-level argument.
func WithParam(p string) Option { return func(e *StructuredError) { e.Param = p } }

// WithPointer names the failing JSON pointer within arguments, required
// for invalid_params per spec §7 ("includes the failing JSON pointer").
func WithPointer(ptr string) Option { return func(e *StructuredError) { e.Pointer = ptr } }

// WithRetryable overrides the code's default retryability.
func WithRetryable(r bool) Option { return func(e *StructuredError) { e.Retryable = r } }

// WithRetryAfterMs sets the suggested client backoff.
func WithRetryAfterMs(ms int) Option { return func(e *StructuredError) { e.RetryAfterMs = ms } }

// WithDetail attaches a redacted, user-safe detail string. Never pass a
// raw error, stack trace, credential, or unredacted index/IP here.
func WithDetail(d string) Option { return func(e *StructuredError) { e.Detail = d } }

// retryDefaults applies the per-code retry policy from spec §7: transient
// upstream/rate-limit/timeout conditions are retryable, malformed input
// and fatal internal errors are not.
func retryDefaults(code Code) []Option {
	switch code {
	case CodeUpstreamUnavailable:
		return []Option{WithRetryable(true), WithRetryAfterMs(2000)}
	case CodeRateLimited:
		return []Option{WithRetryable(true), WithRetryAfterMs(1000)}
	case CodeTimeout:
		return []Option{WithRetryable(true), WithRetryAfterMs(500)}
	case CodeInvalidCursor:
		return []Option{WithRetryable(false)}
	default:
		return []Option{WithRetryable(false)}
	}
}

// New builds a StructuredError for code, applying the code's retry
// defaults first so callers can still override them via opts.
func New(code Code, message string, opts ...Option) *StructuredError {
	e := &StructuredError{Code: code, Message: message}
	for _, d := range retryDefaults(code) {
		d(e)
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Counters tracks per-category error counts for observability (spec §7:
// "every error increments a per-category counter").
type Counters struct {
	counts map[Code]int64
}

// NewCounters returns an empty counter set.
func NewCounters() *Counters { return &Counters{counts: make(map[Code]int64)} }

// Increment records one occurrence of code.
func (c *Counters) Increment(code Code) { c.counts[code]++ }

// Snapshot returns a copy of the current counts, keyed by code.
func (c *Counters) Snapshot() map[Code]int64 {
	out := make(map[Code]int64, len(c.counts))
	for k, v := range c.counts {
		out[k] = v
	}
	return out
}
