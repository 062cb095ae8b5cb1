package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/partshub/api/internal/platform/requestctx"
)

func TestParseCloudTraceContext(t *testing.T) {
	sc, ok := parseCloudTraceContext("105445aa7843bc8bf206b12000100000/1;o=1")
	if !ok {
		t.Fatalf("expected header to parse")
	}
	if sc.TraceID().String() != "105445aa7843bc8bf206b12000100000" {
		t.Fatalf("unexpected trace id %s", sc.TraceID())
	}
	if sc.SpanID().String() != "0000000000000001" {
		t.Fatalf("unexpected span id %s", sc.SpanID())
	}
	if !sc.IsSampled() || !sc.IsRemote() {
		t.Fatalf("expected sampled remote span context")
	}

	for _, header := range []string{"", "abc/1", "105445aa7843bc8bf206b12000100000", "105445aa7843bc8bf206b12000100000/zz-top"} {
		if _, ok := parseCloudTraceContext(header); ok {
			t.Fatalf("expected %q to be rejected", header)
		}
	}
}

func TestEventLoggerPrefersRequestLogger(t *testing.T) {
	baseCore, baseLogs := observer.New(zap.InfoLevel)
	reqCore, reqLogs := observer.New(zap.InfoLevel)

	log := EventLogger(zap.New(baseCore))
	log(context.Background(), "closing.shift_closed", map[string]any{"date": "2025-06-03"})
	log(requestctx.WithLogger(context.Background(), zap.New(reqCore)), "closing.event_publish_failed", map[string]any{"error": "boom"})

	if baseLogs.Len() != 1 || baseLogs.All()[0].ContextMap()["date"] != "2025-06-03" {
		t.Fatalf("expected base logger entry, got %#v", baseLogs.All())
	}
	entries := reqLogs.All()
	if len(entries) != 1 || entries[0].Level != zap.WarnLevel {
		t.Fatalf("expected warn entry on request logger, got %#v", entries)
	}
}

func TestMiddlewareChainRecoversPanics(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	handler := InjectLoggerMiddleware(zap.New(core))(
		TraceMiddleware("test-project")(
			OperatorMiddleware(
				RequestLoggerMiddleware(
					RecoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
						panic("boom")
					})),
				),
			),
		),
	)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/closings", nil)
	req.Header.Set(OperatorHeader, "Rina\n")
	req.Header.Set(cloudTraceHeader, "105445aa7843bc8bf206b12000100000/1;o=1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if got := rec.Header().Get(cloudTraceHeader); got != "105445aa7843bc8bf206b12000100000/0000000000000001;o=1" {
		t.Fatalf("expected propagated trace header, got %q", got)
	}
	var completed bool
	for _, entry := range logs.All() {
		if entry.Message == "request completed" {
			completed = true
			if entry.ContextMap()["operator"] != "Rina" {
				t.Fatalf("expected sanitized operator field, got %#v", entry.ContextMap())
			}
		}
	}
	if !completed {
		t.Fatalf("expected completion log, got %#v", logs.All())
	}
}

func TestNewLoggerDefaultsLevel(t *testing.T) {
	logger, err := NewLogger("")
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	if !logger.Core().Enabled(zap.InfoLevel) || logger.Core().Enabled(zap.DebugLevel) {
		t.Fatalf("expected info level default")
	}
}
