package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

func TestTracingMiddlewareGeneratesAndEchoesID(t *testing.T) {
	var seen string
	h := TracingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = ExtractTraceID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/events/recent", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if seen == "" {
		t.Fatal("trace id must be generated and reachable from the context")
	}
	if got := rec.Header().Get("X-Trace-ID"); got != seen {
		t.Fatalf("response header must echo the trace id: header %q, context %q", got, seen)
	}
}

func TestTracingMiddlewareKeepsIncomingID(t *testing.T) {
	var seen string
	h := TracingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = ExtractTraceID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/events/recent", nil)
	req.Header.Set("X-Trace-ID", "trace-from-proxy")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if seen != "trace-from-proxy" {
		t.Fatalf("incoming trace id must be preserved, got %q", seen)
	}
}

func TestExtractTraceIDFallback(t *testing.T) {
	if got := ExtractTraceID(context.Background()); got != "00000000-0000-0000-0000-000000000000" {
		t.Fatalf("expected zero-uuid fallback, got %q", got)
	}
}

func TestRequestLogMiddlewarePreservesStatus(t *testing.T) {
	h := RequestLogMiddleware(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/events/recent", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusTeapot {
		t.Fatalf("middleware must not alter the response status, got %d", rec.Code)
	}
}
