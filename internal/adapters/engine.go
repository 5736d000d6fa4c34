package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/ultralight/host/internal/sandbox"
)

// RemoteEngine implements sandbox.Engine by forwarding an
// EngineRequest as JSON to an out-of-process sandbox execution
// service. The sandbox engine itself — the interpreter that actually
// restricts what user code can do — is out of scope here; this client
// only carries the request/response contract across the wire per
// spec.md §4.7/§4.8.
type RemoteEngine struct {
	client *http.Client
	url    string
	log    zerolog.Logger
}

// NewRemoteEngine builds a RemoteEngine posting to url (the sandbox
// execution service's invoke endpoint).
func NewRemoteEngine(url string, log zerolog.Logger) *RemoteEngine {
	return &RemoteEngine{
		client: &http.Client{Timeout: 2 * time.Minute},
		url:    url,
		log:    log,
	}
}

// Invoke implements sandbox.Engine.
func (e *RemoteEngine) Invoke(ctx context.Context, req sandbox.EngineRequest) (sandbox.EngineResult, error) {
	body, err := json.Marshal(engineWireRequest{
		ExecutionID:  req.ExecutionID,
		Source:       req.Source,
		FunctionName: req.FunctionName,
		Args:         req.Args,
		Permissions:  req.Permissions,
	})
	if err != nil {
		return sandbox.EngineResult{}, fmt.Errorf("adapters: encode engine request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return sandbox.EngineResult{}, fmt.Errorf("adapters: build engine request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return sandbox.EngineResult{}, fmt.Errorf("adapters: engine invoke %s: %w", req.ExecutionID, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return sandbox.EngineResult{}, fmt.Errorf("adapters: read engine response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return sandbox.EngineResult{}, fmt.Errorf("adapters: engine status %d for %s: %s", resp.StatusCode, req.ExecutionID, data)
	}

	var out sandbox.EngineResult
	if err := json.Unmarshal(data, &out); err != nil {
		return sandbox.EngineResult{}, fmt.Errorf("adapters: decode engine response: %w", err)
	}
	return out, nil
}

// engineWireRequest omits sandbox.EngineRequest's Surface field: the
// capability surface is bound host-side by the caller that embeds it,
// not serialized to the remote engine process. The out-of-process
// engine is handed only what it needs to run the code and report back.
type engineWireRequest struct {
	ExecutionID  string   `json:"executionId"`
	Source       string   `json:"source"`
	FunctionName string   `json:"functionName"`
	Args         []any    `json:"args"`
	Permissions  []string `json:"permissions"`
}
