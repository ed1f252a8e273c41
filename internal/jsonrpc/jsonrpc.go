// Package jsonrpc implements JSON-RPC 2.0 message framing for the MCP
// protocol: request/response/notification types, the standard error-code
// table, and constructors for the envelopes the router emits.
package jsonrpc

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Version is the JSON-RPC protocol version. Every message carries it.
const Version = "2.0"

// Standard JSON-RPC 2.0 error codes.
const (
	ParseError     = -32700 // Invalid JSON
	InvalidRequest = -32600 // Invalid Request object
	MethodNotFound = -32601 // Method doesn't exist
	InvalidParams  = -32602 // Invalid method params
	InternalError  = -32603 // Internal server error
)

// MCP-specific error codes (reserved server range: -32000 to -32099).
const (
	ServerNotInitialized = -32002 // Request before initialize handshake
	SessionError         = -32001 // Missing or unknown session
	ServerShuttingDown   = -32003 // Server is draining
)

// Sentinel errors for message validation.
var (
	ErrInvalidVersion = errors.New(`message must carry "jsonrpc":"2.0"`)
	ErrMissingMethod  = errors.New("request has no method")
	ErrBatchRejected  = errors.New("batch requests are not supported")
)

// Message is a decoded JSON-RPC 2.0 frame. It covers all four shapes:
// request (ID + Method), notification (Method, no ID), success response
// (ID + Result) and error response (ID + Error).
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ErrorDetail    `json:"error,omitempty"`
}

// Response is an outbound JSON-RPC 2.0 response envelope.
//
// Exactly one of Result and Error is set. Result uses a non-pointer any so
// explicit null results still serialize.
type Response struct {
	JSONRPC string       `json:"jsonrpc"`
	ID      any          `json:"id"`
	Result  any          `json:"result,omitempty"`
	Error   *ErrorDetail `json:"error,omitempty"`
}

// Notification is an outbound JSON-RPC 2.0 notification. It never carries
// an id and never receives a response.
type Notification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// ErrorDetail is the JSON-RPC 2.0 error object.
type ErrorDetail struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Error implements the error interface so ErrorDetail can travel through
// error returns inside the server.
func (e *ErrorDetail) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// Decode parses a single JSON-RPC frame from raw bytes.
//
// Batch requests (JSON arrays) are rejected with ErrBatchRejected; a
// conformant MCP server is not required to support them. A frame without
// "jsonrpc":"2.0" is rejected with ErrInvalidVersion.
func Decode(data []byte) (*Message, error) {
	trimmed := firstNonSpace(data)
	if trimmed == '[' {
		return nil, ErrBatchRejected
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("parsing frame: %w", err)
	}
	if msg.JSONRPC != Version {
		return nil, ErrInvalidVersion
	}
	if msg.Method == "" && msg.Result == nil && msg.Error == nil {
		return nil, ErrMissingMethod
	}

	// JSON numbers decode as float64; normalize integral ids so they
	// round-trip without a fractional part.
	if f, ok := msg.ID.(float64); ok && f == float64(int64(f)) {
		msg.ID = int64(f)
	}

	return &msg, nil
}

// firstNonSpace returns the first non-whitespace byte, or 0.
func firstNonSpace(data []byte) byte {
	for _, b := range data {
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return b
	}
	return 0
}

// IsRequest reports whether the message expects a response.
func (m *Message) IsRequest() bool {
	return m.Method != "" && m.ID != nil
}

// IsNotification reports whether the message is a notification.
func (m *Message) IsNotification() bool {
	return m.Method != "" && m.ID == nil
}

// IsResponse reports whether the message is a response frame.
func (m *Message) IsResponse() bool {
	return m.Method == "" && (m.Result != nil || m.Error != nil)
}

// NewResponse builds a success response for the given request id.
func NewResponse(id, result any) *Response {
	return &Response{
		JSONRPC: Version,
		ID:      id,
		Result:  result,
	}
}

// NewError builds an error response with optional structured data.
func NewError(id any, code int, message string, data any) *Response {
	return &Response{
		JSONRPC: Version,
		ID:      id,
		Error: &ErrorDetail{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// NewDecodeError maps a Decode failure onto the wire error envelope:
// structurally invalid frames get invalid-request, everything else is a
// parse error. The id is always null; an undecodable frame has none.
func NewDecodeError(err error) *Response {
	switch {
	case errors.Is(err, ErrBatchRejected),
		errors.Is(err, ErrInvalidVersion),
		errors.Is(err, ErrMissingMethod):
		return NewError(nil, InvalidRequest, err.Error(), nil)
	default:
		return NewError(nil, ParseError, "Parse error", nil)
	}
}

// NewMethodNotFound builds the canonical method-not-found response.
func NewMethodNotFound(id any, method string) *Response {
	return NewError(id, MethodNotFound, fmt.Sprintf("method not found: %s", method),
		map[string]any{"method": method})
}

// NewNotification builds an outbound notification.
func NewNotification(method string, params any) *Notification {
	return &Notification{
		JSONRPC: Version,
		Method:  method,
		Params:  params,
	}
}

// Encode serializes any envelope to a single JSON frame.
func Encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding frame: %w", err)
	}
	return data, nil
}
