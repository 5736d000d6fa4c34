package adapters

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/ultralight/host/internal/codecache"
)

func TestHTTPObjectStore_Get(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/bucket/apps/a1/index.ts":
			_, _ = w.Write([]byte("export default () => {}"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	store := NewHTTPObjectStore(server.URL+"/bucket", zerolog.Nop())

	data, err := store.Get(context.Background(), "apps/a1/index.ts")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != "export default () => {}" {
		t.Errorf("unexpected body: %s", data)
	}
}

func TestHTTPObjectStore_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	store := NewHTTPObjectStore(server.URL, zerolog.Nop())
	_, err := store.Get(context.Background(), "missing/index.ts")
	if !errors.Is(err, codecache.ErrNotFound) {
		t.Fatalf("expected codecache.ErrNotFound, got %v", err)
	}
}
