package observability

import (
	"context"
	"log/slog"
	"net/http/httptest"
	"sync"
	"testing"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

type capturingHandler struct {
	mu      sync.Mutex
	records []slog.Record
}

func (h *capturingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *capturingHandler) Handle(_ context.Context, rec slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, rec.Clone())
	return nil
}

func (h *capturingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *capturingHandler) WithGroup(string) slog.Handler      { return h }

func (h *capturingHandler) attr(t *testing.T, key string) string {
	t.Helper()
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.records) != 1 {
		t.Fatalf("expected one audit record, got %d", len(h.records))
	}
	var got string
	h.records[0].Attrs(func(a slog.Attr) bool {
		if a.Key == key {
			got = a.Value.String()
			return false
		}
		return true
	})
	return got
}

func swapDefaultLogger(t *testing.T) *capturingHandler {
	t.Helper()
	h := &capturingHandler{}
	prev := slog.Default()
	slog.SetDefault(slog.New(h))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return h
}

func TestAuditUsesServerMintedRequestID(t *testing.T) {
	h := swapDefaultLogger(t)

	r := httptest.NewRequest("POST", "/api/v1/auth/login", nil)
	r.Header.Set("X-Request-Id", "spoofed-by-client")
	ctx := context.WithValue(r.Context(), chimiddleware.RequestIDKey, "req-42")
	r = r.WithContext(ctx)

	Audit(r, "login_failed", "email", "x@y.com")

	if got := h.attr(t, "request_id"); got != "req-42" {
		t.Fatalf("request_id = %q, want %q", got, "req-42")
	}
	if got := h.attr(t, "event"); got != "login_failed" {
		t.Fatalf("event = %q, want %q", got, "login_failed")
	}
}

func TestAuditFallsBackToHeaderRequestID(t *testing.T) {
	h := swapDefaultLogger(t)

	r := httptest.NewRequest("POST", "/api/v1/auth/login", nil)
	r.Header.Set("X-Request-Id", "hdr-7")

	Audit(r, "login_failed")

	if got := h.attr(t, "request_id"); got != "hdr-7" {
		t.Fatalf("request_id = %q, want %q", got, "hdr-7")
	}
}
