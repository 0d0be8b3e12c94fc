package rpc

import (
	"encoding/json"
	"testing"
)

func TestClassifyRequest(t *testing.T) {
	line := []byte(`{"jsonrpc":"2.0","method":"add","params":[1,2],"id":5}` + "\n")
	c := classify(line)
	if c.request == nil {
		t.Fatalf("expected a request, got %+v", c)
	}
	if c.request.Method != "add" || c.request.ID.Int64() != 5 {
		t.Errorf("unexpected request: %+v", c.request)
	}
}

func TestClassifyNotification(t *testing.T) {
	line := []byte(`{"jsonrpc":"2.0","method":"send","params":[17]}` + "\n")
	c := classify(line)
	if c.request == nil {
		t.Fatalf("expected a request, got %+v", c)
	}
	if !c.request.ID.IsZero() {
		t.Errorf("expected a null id (notification), got %v", c.request.ID)
	}
}

func TestClassifyResult(t *testing.T) {
	line := []byte(`{"jsonrpc":"2.0","result":3,"id":1}` + "\n")
	c := classify(line)
	if c.result == nil {
		t.Fatalf("expected a result, got %+v", c)
	}
	if string(c.result.Value) != "3" {
		t.Errorf("result value = %s, want 3", c.result.Value)
	}
}

func TestClassifyError(t *testing.T) {
	line := []byte(`{"jsonrpc":"2.0","error":{"code":-32601,"message":"method not found"},"id":2}` + "\n")
	c := classify(line)
	if c.errResp == nil {
		t.Fatalf("expected an error, got %+v", c)
	}
	if c.errResp.Payload.Code != CodeMethodNotFound {
		t.Errorf("code = %d, want %d", c.errResp.Payload.Code, CodeMethodNotFound)
	}
}

func TestClassifyUnrecognizedIsInvalidRequest(t *testing.T) {
	line := []byte(`{"foo":"bar"}` + "\n")
	c := classify(line)
	if c.errResp == nil {
		t.Fatalf("expected an invalid-request error, got %+v", c)
	}
	if c.errResp.Payload.Code != CodeInvalidRequest {
		t.Errorf("code = %d, want %d", c.errResp.Payload.Code, CodeInvalidRequest)
	}
	if c.errResp.Payload.Data == "" {
		t.Error("expected the raw frame to be carried in Data")
	}
}

func TestRequestRoundTrip(t *testing.T) {
	original := &Request{JSONRPC: jsonrpcVersion, ID: NewIntID(42), Method: "name", Params: json.RawMessage(`["x"]`)}
	data, err := encode(original)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	c := classify(data)
	if c.request == nil {
		t.Fatalf("expected a request after round-trip, got %+v", c)
	}
	if c.request.Method != original.Method || c.request.ID.Int64() != original.ID.Int64() {
		t.Errorf("round-trip mismatch: got %+v, want %+v", c.request, original)
	}
}

func TestErrorImplementsError(t *testing.T) {
	e := NewError(NewIntID(1), CodeInternalError, "internal error", "boom")
	if e.Error() != "internal error: boom" {
		t.Errorf("Error() = %q, want %q", e.Error(), "internal error: boom")
	}

	bare := NewError(NewIntID(1), CodeMethodNotFound, "method not found", "")
	if bare.Error() != "method not found" {
		t.Errorf("Error() = %q, want %q", bare.Error(), "method not found")
	}
}
