// Package rpc implements a full-duplex JSON-RPC 2.0 peer over a framed
// byte stream: method dispatch, request/response correlation, inbound
// notification fan-out, and cooperative termination.
package rpc

import (
	"encoding/json"

	jsoniter "github.com/json-iterator/go"
)

// wireJSON is json-iterator/go's drop-in, encoding/json-compatible
// codec; every Marshal/Unmarshal in this package goes through it, while
// the "encoding/json" import above supplies the RawMessage and
// Marshaler types jsoniter understands natively.
var wireJSON = jsoniter.ConfigCompatibleWithStandardLibrary

const jsonrpcVersion = "2.0"

// Standard JSON-RPC 2.0 error codes (spec.md §4.2).
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// ID identifies a request. A nil ID marks a notification. IDs are
// JSON numbers or strings on the wire; this peer only ever emits
// integer IDs but accepts either shape from a peer.
type ID struct {
	set    bool
	number int64
	str    string
	isStr  bool
}

// NewIntID wraps an integer request id.
func NewIntID(v int64) ID { return ID{set: true, number: v} }

// IsZero reports whether the ID is absent (a notification).
func (id ID) IsZero() bool { return !id.set }

// Int64 returns the numeric value of the id. Valid only when the id
// was not a string (callers constructing requests only ever use
// NewIntID, so this is always valid for outbound correlation).
func (id ID) Int64() int64 { return id.number }

func (id ID) MarshalJSON() ([]byte, error) {
	if !id.set {
		return []byte("null"), nil
	}
	if id.isStr {
		return wireJSON.Marshal(id.str)
	}
	return wireJSON.Marshal(id.number)
}

func (id *ID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*id = ID{}
		return nil
	}
	var n int64
	if err := wireJSON.Unmarshal(data, &n); err == nil {
		*id = ID{set: true, number: n}
		return nil
	}
	var s string
	if err := wireJSON.Unmarshal(data, &s); err != nil {
		return err
	}
	*id = ID{set: true, str: s, isStr: true}
	return nil
}

// Request is a JSON-RPC 2.0 request or notification (when ID is zero).
type Request struct {
	JSONRPC string          `json:"jsonrpc,omitempty"`
	ID      ID              `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Result is a JSON-RPC 2.0 successful response, recognized by the
// presence of the "result" key.
type Result struct {
	JSONRPC string          `json:"jsonrpc,omitempty"`
	ID      ID              `json:"id"`
	Value   json.RawMessage `json:"result"`
}

// Error is a JSON-RPC 2.0 error response, recognized by the presence
// of the "error" key. It also implements the error interface so it can
// be returned directly from an outbound Call.
type Error struct {
	JSONRPC string    `json:"jsonrpc,omitempty"`
	ID      ID        `json:"id"`
	Payload ErrorBody `json:"error"`
}

// ErrorBody is the {code, message, data} object inside an Error.
type ErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

func (e *Error) Error() string {
	if e.Payload.Data != "" {
		return e.Payload.Message + ": " + e.Payload.Data
	}
	return e.Payload.Message
}

// NewError builds an Error response for the given request id.
func NewError(id ID, code int, message, data string) *Error {
	return &Error{
		JSONRPC: jsonrpcVersion,
		ID:      id,
		Payload: ErrorBody{Code: code, Message: message, Data: data},
	}
}

// classified is the result of inspecting one decoded frame.
type classified struct {
	request *Request
	result  *Result
	errResp *Error
}

// probe is the minimal shape used to decide which of Request, Result,
// or Error a raw frame represents, without committing to any one
// struct's stricter unmarshal rules up front.
type probe struct {
	Method *string         `json:"method"`
	Error  json.RawMessage `json:"error"`
	Result json.RawMessage `json:"result"`
}

// classify decodes one newline-delimited JSON frame and determines its
// shape, trying Request, then Error, then Result, in that order (spec.md
// §4.2). A frame that matches none of the three produces an
// invalid-request Error carrying the raw frame in Data, with the id
// copied through when one could be recovered.
func classify(line []byte) classified {
	var p probe
	if err := wireJSON.Unmarshal(line, &p); err != nil {
		return classified{errResp: NewError(ID{}, CodeInvalidRequest, "invalid request", string(line))}
	}

	if p.Method != nil {
		var req Request
		if err := wireJSON.Unmarshal(line, &req); err == nil {
			req.JSONRPC = jsonrpcVersion
			return classified{request: &req}
		}
	}

	if p.Error != nil {
		var e Error
		if err := wireJSON.Unmarshal(line, &e); err == nil {
			return classified{errResp: &e}
		}
	}

	if p.Result != nil {
		var r Result
		if err := wireJSON.Unmarshal(line, &r); err == nil {
			return classified{result: &r}
		}
	}

	id := ID{}
	var withID struct {
		ID *ID `json:"id"`
	}
	if err := wireJSON.Unmarshal(line, &withID); err == nil && withID.ID != nil {
		id = *withID.ID
	}
	return classified{errResp: NewError(id, CodeInvalidRequest, "invalid request", string(line))}
}

func encode(v any) ([]byte, error) {
	data, err := wireJSON.Marshal(v)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}
