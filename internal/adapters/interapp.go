package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ultralight/host/internal/sandbox"
)

// LoopbackCaller is the inter-app invocation adapter (ultralight.call).
// Rather than short-circuiting into the dispatcher in-process, it
// issues a real JSON-RPC tools/call HTTP request back against this
// same host's /mcp/{appId} endpoint, forwarding the caller's bearer
// token so the target app's admission chain runs exactly as it would
// for an external caller (spec.md §4.7).
type LoopbackCaller struct {
	client  *http.Client
	baseURL string
	log     zerolog.Logger
}

// NewLoopbackCaller builds a LoopbackCaller that targets baseURL (this
// host's own externally-reachable address, e.g. "http://127.0.0.1:8080").
func NewLoopbackCaller(baseURL string, log zerolog.Logger) *LoopbackCaller {
	return &LoopbackCaller{
		client:  &http.Client{Timeout: 30 * time.Second},
		baseURL: baseURL,
		log:     log,
	}
}

// Bind returns an InterAppCaller closed over the calling request's
// Authorization header value.
func (c *LoopbackCaller) Bind(bearerCredential string) sandbox.InterAppCaller {
	return &boundInterAppCaller{client: c, bearerCredential: bearerCredential}
}

type boundInterAppCaller struct {
	client           *LoopbackCaller
	bearerCredential string
}

type loopbackToolCallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

type loopbackRPCRequest struct {
	JSONRPC string                 `json:"jsonrpc"`
	ID      string                 `json:"id"`
	Method  string                 `json:"method"`
	Params  loopbackToolCallParams `json:"params"`
}

type loopbackRPCResponse struct {
	Result *struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		IsError bool `json:"isError"`
	} `json:"result"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Call implements sandbox.InterAppCaller. It unwraps the target app's
// MCP content envelope back down to a plain map, re-parsing the first
// text content block as JSON (the convention every ultralight SDK tool
// result already follows).
func (b *boundInterAppCaller) Call(ctx context.Context, appID, functionName string, args map[string]any) (map[string]any, error) {
	reqBody, err := json.Marshal(loopbackRPCRequest{
		JSONRPC: "2.0",
		ID:      uuid.NewString(),
		Method:  "tools/call",
		Params: loopbackToolCallParams{
			Name:      functionName,
			Arguments: args,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("adapters: encode inter-app call: %w", err)
	}

	url := b.client.baseURL + "/mcp/" + appID
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("adapters: build inter-app request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if b.bearerCredential != "" {
		httpReq.Header.Set("Authorization", b.bearerCredential)
	}

	resp, err := b.client.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("adapters: inter-app call to %s: %w", appID, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("adapters: read inter-app response: %w", err)
	}

	var parsed loopbackRPCResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("adapters: decode inter-app response: %w", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("adapters: inter-app call %s/%s: %s", appID, functionName, parsed.Error.Message)
	}
	if parsed.Result == nil || len(parsed.Result.Content) == 0 {
		return map[string]any{}, nil
	}
	if parsed.Result.IsError {
		return nil, fmt.Errorf("adapters: inter-app call %s/%s failed: %s", appID, functionName, parsed.Result.Content[0].Text)
	}

	var out map[string]any
	if err := json.Unmarshal([]byte(parsed.Result.Content[0].Text), &out); err != nil {
		return map[string]any{"text": parsed.Result.Content[0].Text}, nil
	}
	return out, nil
}
