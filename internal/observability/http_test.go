package observability

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/datawise/datawise/internal/config"
)

func TestTraceMiddlewarePreservesIncomingTraceID(t *testing.T) {
	h := TraceMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := TraceIDFromContext(r.Context()); got != "trace-1" {
			t.Fatalf("TraceIDFromContext() = %q", got)
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	req.Header.Set(traceHeader, "trace-1")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if got := rr.Header().Get(traceHeader); got != "trace-1" {
		t.Fatalf("trace header = %q", got)
	}
}

func TestTraceMiddlewareGeneratesTraceID(t *testing.T) {
	h := TraceMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if TraceIDFromContext(r.Context()) == "" {
			t.Fatal("expected generated trace id")
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/health", nil))

	if rr.Header().Get(traceHeader) == "" {
		t.Fatal("expected X-Trace-ID header")
	}
}

func TestRequestAttrsCarryTraceAndSession(t *testing.T) {
	ctx := ContextWithSessionID(ContextWithTraceID(context.Background(), "abc123"), "s-1")
	if got := TraceIDFromContext(ctx); got != "abc123" {
		t.Fatalf("TraceIDFromContext() = %q", got)
	}
	if got := SessionIDFromContext(ctx); got != "s-1" {
		t.Fatalf("SessionIDFromContext() = %q", got)
	}
	if got := len(RequestAttrs(ctx)); got != 2 {
		t.Fatalf("RequestAttrs() len = %d", got)
	}
	if got := len(RequestAttrs(context.Background())); got != 0 {
		t.Fatalf("RequestAttrs() len = %d", got)
	}
	ctx = ContextWithDatasetID(ctx, "ds-9")
	if got := DatasetIDFromContext(ctx); got != "ds-9" {
		t.Fatalf("DatasetIDFromContext() = %q", got)
	}
	if got := len(RequestAttrs(ctx)); got != 3 {
		t.Fatalf("RequestAttrs() len = %d", got)
	}
}

func TestLoggingMiddlewareRecordsMatchedRoute(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/sessions/{id}/summary", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})
	h := LoggingMiddleware(logger)(mux)
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/sessions/s-1/summary", nil))

	if !strings.Contains(buf.String(), `"route":"GET /v1/sessions/{id}/summary"`) {
		t.Fatalf("log line = %s", buf.String())
	}
	if !strings.Contains(buf.String(), `"status":202`) {
		t.Fatalf("log line = %s", buf.String())
	}
}

func TestRecoverMiddlewareReturns500(t *testing.T) {
	h := RecoverMiddleware(nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/x", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestNewLoggerSelectsHandler(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.Config{Profile: config.ProfileTest, Service: config.ServiceConfig{Name: "datawise-api"}}
	cfg.Observability.LogJSON = true
	NewLogger(cfg, &buf).Info("hello")
	if !strings.Contains(buf.String(), `"service":"datawise-api"`) {
		t.Fatalf("json log = %s", buf.String())
	}

	buf.Reset()
	cfg.Observability.LogJSON = false
	NewLogger(cfg, &buf).Info("hello")
	if !strings.Contains(buf.String(), "service=datawise-api") {
		t.Fatalf("text log = %s", buf.String())
	}

	NewLogger(cfg, nil).Info("dropped")
	LoggerOrDiscard(nil).Info("dropped")
}
