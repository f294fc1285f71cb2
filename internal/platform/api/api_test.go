package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWriteError_Envelope(t *testing.T) {
	rr := httptest.NewRecorder()
	BadRequest(rr, "INVALID_RATING", "rating must be between 1 and 5", "rid-1", map[string]any{"rating": 9})

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Fatalf("unexpected content type %q", ct)
	}
	var body ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error.Code != "INVALID_RATING" || body.Error.RequestID != "rid-1" {
		t.Fatalf("unexpected error body: %+v", body.Error)
	}
	if _, ok := body.Error.Details["rating"]; !ok {
		t.Fatal("expected details to carry the offending field")
	}
}

func TestInternal_HidesMessage(t *testing.T) {
	rr := httptest.NewRecorder()
	Internal(rr, "rid-2")
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	var body ErrorResponse
	_ = json.Unmarshal(rr.Body.Bytes(), &body)
	if body.Error.Code != "INTERNAL" {
		t.Fatalf("expected INTERNAL, got %q", body.Error.Code)
	}
}

func TestWriteJSON_NilBody(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteJSON(rr, http.StatusNoContent, nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if rr.Body.Len() != 0 {
		t.Fatalf("expected empty body, got %q", rr.Body.String())
	}
}

func TestFail(t *testing.T) {
	rr := httptest.NewRecorder()
	wrapped := fmt.Errorf("create: %w", NewError(http.StatusUnprocessableEntity, "NO_RECIPIENTS", "nobody to notify", nil))
	if !Fail(rr, "rid-3", wrapped) {
		t.Fatal("expected typed error to be reported as handled")
	}
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rr.Code)
	}
	var body ErrorResponse
	_ = json.Unmarshal(rr.Body.Bytes(), &body)
	if body.Error.Code != "NO_RECIPIENTS" || body.Error.RequestID != "rid-3" {
		t.Fatalf("unexpected error body: %+v", body.Error)
	}

	rr = httptest.NewRecorder()
	if Fail(rr, "rid-4", errors.New("boom")) {
		t.Fatal("plain error must not be reported as handled")
	}
	if rr.Code != http.StatusInternalServerError || strings.Contains(rr.Body.String(), "boom") {
		t.Fatalf("expected opaque 500, got %d %s", rr.Code, rr.Body.String())
	}
}
