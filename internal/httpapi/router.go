// Package httpapi composes the MCP transport, discovery document, and
// ambient HTTP concerns (correlation ids, request logging, health)
// into one handler for cmd/server to serve.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// MCPRouter is the subset of internal/mcpserver.Server's surface the
// outer router needs: a mountable handler for /mcp/{appId} and the
// per-app discovery document.
type MCPRouter interface {
	Routes() http.Handler
}

// NewRouter builds the top-level handler.
func NewRouter(mcp MCPRouter) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(CorrelationMiddleware)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", handleHealth)
	r.Mount("/", mcp.Routes())

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
