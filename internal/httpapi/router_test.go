package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

type fakeMCPRouter struct{}

func (fakeMCPRouter) Routes() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
}

func TestNewRouter_Health(t *testing.T) {
	r := NewRouter(fakeMCPRouter{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestNewRouter_MountsMCPHandler(t *testing.T) {
	r := NewRouter(fakeMCPRouter{})

	req := httptest.NewRequest(http.MethodPost, "/mcp/app-1", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusTeapot {
		t.Fatalf("expected mounted handler status 418, got %d", rec.Code)
	}
}

func TestNewRouter_AssignsCorrelationID(t *testing.T) {
	r := NewRouter(fakeMCPRouter{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Header().Get("X-Correlation-ID") == "" {
		t.Fatal("expected a generated X-Correlation-ID header")
	}
}
