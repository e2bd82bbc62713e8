package httpx

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
)

func TestErrorResponse_NullFields(t *testing.T) {
	rec := httptest.NewRecorder()
	ErrorResponse(rec, ErrorOptions{
		Error:       "invalid_request",
		Description: "bad things",
		Status:      400,
		State:       "S",
	})

	if rec.Code != 400 {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Fatalf("unexpected content type %q", ct)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["error"] != "invalid_request" || body["error_description"] != "bad things" || body["state"] != "S" {
		t.Fatalf("unexpected body: %v", body)
	}
	// los campos ausentes viajan como null, nunca se omiten
	if v, present := body["error_uri"]; !present || v != nil {
		t.Fatalf("expected error_uri null, got %v (present=%v)", v, present)
	}
}

func TestErrorResponse_DefaultStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	ErrorResponse(rec, ErrorOptions{Error: "server_error"})
	if rec.Code != 500 {
		t.Fatalf("expected default 500, got %d", rec.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"error", "error_description", "error_uri", "state"} {
		if _, present := body[key]; !present {
			t.Fatalf("expected key %q present", key)
		}
	}
}
