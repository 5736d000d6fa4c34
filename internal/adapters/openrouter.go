package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/ultralight/host/internal/sandbox"
)

const openRouterChatURL = "https://openrouter.ai/api/v1/chat/completions"

// OpenRouterCaller is the BYOK AI adapter (ultralight.ai). One instance
// is shared process-wide; Bind produces a per-request sandbox.AiCaller
// closed over the caller's decrypted key.
type OpenRouterCaller struct {
	client  *http.Client
	chatURL string
	log     zerolog.Logger
}

// NewOpenRouterCaller builds an OpenRouterCaller with a bounded-timeout
// HTTP client, per spec.md §5 ("all remote calls MUST have finite
// timeouts").
func NewOpenRouterCaller(log zerolog.Logger) *OpenRouterCaller {
	return &OpenRouterCaller{
		client:  &http.Client{Timeout: 60 * time.Second},
		chatURL: openRouterChatURL,
		log:     log,
	}
}

// Bind returns an AiCaller closed over one request's BYOK provider and
// decrypted key. An unrecognized (non-legacy, non-OpenRouter) provider
// still routes to OpenRouter per the "canonical target" language in
// spec.md §4.7 — OpenRouter's own model namespacing already prefixes
// by upstream provider.
func (c *OpenRouterCaller) Bind(provider, decryptedKey string) sandbox.AiCaller {
	return &boundAiCaller{client: c, provider: provider, key: decryptedKey}
}

type boundAiCaller struct {
	client   *OpenRouterCaller
	provider string
	key      string
}

type openRouterRequest struct {
	Model       string                  `json:"model,omitempty"`
	Messages    []sandbox.AiMessage     `json:"messages"`
	Temperature float64                 `json:"temperature,omitempty"`
	MaxTokens   int                     `json:"max_tokens,omitempty"`
	Tools       []map[string]any        `json:"tools,omitempty"`
}

type openRouterResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int     `json:"prompt_tokens"`
		CompletionTokens int     `json:"completion_tokens"`
		TotalCostCredits float64 `json:"cost,omitempty"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Call implements sandbox.AiCaller. Per spec.md §4.7 it never returns
// a Go error for an absent/invalid key or an upstream failure — those
// surface as AiResponse.Error with zero cost, so the sandboxed app can
// branch on it rather than the call throwing.
func (b *boundAiCaller) Call(ctx context.Context, req sandbox.AiRequest) (sandbox.AiResponse, error) {
	if b.key == "" {
		return sandbox.AiResponse{Error: "BYOK not configured"}, nil
	}

	body, err := json.Marshal(openRouterRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Tools:       req.Tools,
	})
	if err != nil {
		return sandbox.AiResponse{Error: fmt.Sprintf("encode request: %v", err)}, nil
	}

	var parsed openRouterResponse
	callErr := backoff.Retry(func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.client.chatURL, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+b.key)

		resp, err := b.client.client.Do(httpReq)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode >= 500 {
			return fmt.Errorf("openrouter: upstream status %d", resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			return backoff.Permanent(fmt.Errorf("openrouter: upstream status %d: %s", resp.StatusCode, data))
		}
		return json.Unmarshal(data, &parsed)
	}, backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2))

	if callErr != nil {
		b.client.log.Warn().Err(callErr).Msg("openrouter call failed")
		return sandbox.AiResponse{Error: callErr.Error()}, nil
	}
	if parsed.Error != nil {
		return sandbox.AiResponse{Error: parsed.Error.Message}, nil
	}

	content := ""
	if len(parsed.Choices) > 0 {
		content = parsed.Choices[0].Message.Content
	}

	return sandbox.AiResponse{
		Content: content,
		Model:   parsed.Model,
		Usage: sandbox.AiUsage{
			InputTokens:  parsed.Usage.PromptTokens,
			OutputTokens: parsed.Usage.CompletionTokens,
			CostCents:    int64(parsed.Usage.TotalCostCredits * 100),
		},
	}, nil
}
