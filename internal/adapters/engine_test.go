package adapters

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/ultralight/host/internal/sandbox"
)

func TestRemoteEngine_Invoke(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req engineWireRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.ExecutionID != "exec-1" || req.FunctionName != "run" {
			t.Errorf("unexpected wire request: %+v", req)
		}
		_ = json.NewEncoder(w).Encode(sandbox.EngineResult{Success: true, Result: map[string]any{"ok": true}})
	}))
	defer server.Close()

	engine := NewRemoteEngine(server.URL, zerolog.Nop())
	result, err := engine.Invoke(context.Background(), sandbox.EngineRequest{
		ExecutionID:  "exec-1",
		Source:       "export default () => {}",
		FunctionName: "run",
		Args:         []any{map[string]any{}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success {
		t.Errorf("expected success result, got %+v", result)
	}
}

func TestRemoteEngine_NonOKStatusErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	engine := NewRemoteEngine(server.URL, zerolog.Nop())
	_, err := engine.Invoke(context.Background(), sandbox.EngineRequest{ExecutionID: "exec-2"})
	if err == nil {
		t.Fatal("expected an error for non-200 status")
	}
}
