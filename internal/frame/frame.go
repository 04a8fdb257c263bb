// Package frame implements the Frame data model (spec §3): one JSON-RPC
// 2.0 message, discriminated into request / response / notification by
// the presence of id and method. The custom UnmarshalJSON that tracks
// whether id was present, explicitly null, or malformed is kept from
// brennhill-gasoline-mcp-ai-devtools/internal/mcp/protocol.go — the
// discrimination logic is identical, only the payload types differ.
package frame

import (
	"bytes"

	json "github.com/goccy/go-json"
)

// Kind discriminates a parsed Frame.
type Kind int

const (
	KindInvalid Kind = iota
	KindRequest
	KindResponse
	KindNotification
)

// Request is an inbound JSON-RPC 2.0 request or notification.
// Discriminant: HasID() true ⇒ request, false ⇒ notification.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`

	idPresent       bool
	idExplicitNull  bool
	idInvalidFormat bool
}

// UnmarshalJSON captures id presence/nullness/validity alongside the
// normal field decode, so the caller can tell "no id" from "id: null"
// from "id: {}" (the last two are protocol errors, not notifications).
func (r *Request) UnmarshalJSON(data []byte) error {
	type rawRequest struct {
		JSONRPC string          `json:"jsonrpc"`
		Method  string          `json:"method"`
		Params  json.RawMessage `json:"params,omitempty"`
	}

	var raw rawRequest
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var object map[string]json.RawMessage
	if err := json.Unmarshal(data, &object); err != nil {
		return err
	}

	r.JSONRPC = raw.JSONRPC
	r.Method = raw.Method
	r.Params = raw.Params
	r.ID = nil
	_, r.idPresent = object["id"]
	r.idExplicitNull = false
	r.idInvalidFormat = false

	rawID, ok := object["id"]
	if !ok {
		return nil
	}

	trimmed := bytes.TrimSpace(rawID)
	if bytes.Equal(trimmed, []byte("null")) {
		r.idExplicitNull = true
		return nil
	}

	var parsedID any
	if err := json.Unmarshal(trimmed, &parsedID); err != nil {
		return err
	}
	switch parsedID.(type) {
	case string, float64:
		r.ID = parsedID
	default:
		r.idInvalidFormat = true
	}
	return nil
}

// HasID reports whether this frame carries a usable (non-null,
// string-or-number) id, i.e. is a request rather than a notification.
func (r Request) HasID() bool {
	return r.idPresent && !r.idExplicitNull && !r.idInvalidFormat && r.ID != nil
}

// HasInvalidID reports an explicitly-null or malformed id field — a
// protocol error distinct from "no id at all".
func (r Request) HasInvalidID() bool {
	return r.idExplicitNull || r.idInvalidFormat
}

// Kind classifies the frame per spec §3's discriminant.
func (r Request) Kind() Kind {
	switch {
	case r.Method == "":
		return KindInvalid
	case r.HasInvalidID():
		return KindInvalid
	case r.HasID():
		return KindRequest
	default:
		return KindNotification
	}
}

// Response is an outbound JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is the wire shape of a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Notification is an outbound JSON-RPC 2.0 notification (no id).
type Notification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// NewResponse builds a successful response for the given request id.
func NewResponse(id any, result any) (*Response, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return &Response{JSONRPC: "2.0", ID: id, Result: raw}, nil
}

// NewErrorResponse builds an error response for the given request id.
func NewErrorResponse(id any, code int, message string, data any) *Response {
	return &Response{JSONRPC: "2.0", ID: id, Error: &RPCError{Code: code, Message: message, Data: data}}
}

// NewNotification builds a notification frame.
func NewNotification(method string, params any) *Notification {
	return &Notification{JSONRPC: "2.0", Method: method, Params: params}
}
