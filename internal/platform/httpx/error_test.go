package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/partshub/api/internal/platform/requestctx"
)

func TestWriteErrorEnvelope(t *testing.T) {
	ctx := requestctx.WithTrace(context.Background(), requestctx.TraceInfo{TraceID: "trace-1"})
	rec := httptest.NewRecorder()

	WriteError(ctx, rec, NewError("closing_already_exists", "closing already\nrecorded", http.StatusConflict).
		WithDetail("date", "2025-06-03").
		WithDetail("status", 999))

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type %q", ct)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["error"] != "closing_already_exists" || body["message"] != "closing already recorded" {
		t.Fatalf("unexpected body %#v", body)
	}
	if body["trace_id"] != "trace-1" || body["date"] != "2025-06-03" {
		t.Fatalf("expected trace and detail fields, got %#v", body)
	}
	if body["status"].(float64) != http.StatusConflict {
		t.Fatalf("details must not override status, got %#v", body["status"])
	}
}

func TestNewErrorDefaultsStatus(t *testing.T) {
	if got := NewError("x", "y", 0).Status; got != http.StatusInternalServerError {
		t.Fatalf("expected 500 default, got %d", got)
	}
}
