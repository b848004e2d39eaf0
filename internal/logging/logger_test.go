package logging

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type captureWriter struct {
	bytes.Buffer
}

func (*captureWriter) Sync() error { return nil }

func newCaptureLogger(level Level) (*Logger, *captureWriter) {
	w := &captureWriter{}
	return &Logger{level: level, writer: w, fields: map[string]any{"service": "coolcache"}}, w
}

func TestLoggerFiltersBelowLevel(t *testing.T) {
	logger, w := newCaptureLogger(WarnLevel)
	logger.Debug("dropped")
	logger.Info("dropped too")
	logger.Warn("kept")
	lines := strings.Split(strings.TrimSpace(w.String()), "\n")
	if len(lines) != 1 || !strings.Contains(lines[0], "kept") {
		t.Fatalf("unexpected output: %q", w.String())
	}
}

func TestLoggerWithFieldsAppearInPayload(t *testing.T) {
	logger, w := newCaptureLogger(DebugLevel)
	logger.With(String("conn_id", "abc"), Int("port", 6379)).Info("hello")

	var payload map[string]any
	if err := json.Unmarshal(w.Bytes(), &payload); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, w.String())
	}
	if payload["conn_id"] != "abc" || payload["port"] != float64(6379) {
		t.Fatalf("contextual fields missing: %v", payload)
	}
	if payload["service"] != "coolcache" || payload["message"] != "hello" {
		t.Fatalf("base fields missing: %v", payload)
	}
}

func TestHTTPTraceMiddlewarePropagatesTraceID(t *testing.T) {
	logger, _ := newCaptureLogger(InfoLevel)
	var seen string
	handler := HTTPTraceMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = TraceIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(TraceIDHeader, "trace-123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if seen != "trace-123" {
		t.Fatalf("expected caller's trace id in context, got %q", seen)
	}
	if got := rec.Header().Get(TraceIDHeader); got != "trace-123" {
		t.Fatalf("expected trace id echoed in response header, got %q", got)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Header().Get(TraceIDHeader) == "" {
		t.Fatal("expected a generated trace id when the caller sent none")
	}
}
