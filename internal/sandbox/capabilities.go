// Package sandbox implements the Sandbox Gateway (C8): building the
// ultralight.* capability surface and invoking the sandbox engine with
// it. See spec.md §4.7. The sandbox engine itself — the code
// interpreter that actually restricts what user code can do — is
// specified elsewhere; this package treats it as a black box behind
// the Engine interface.
package sandbox

import "context"

// KVStore is the per-user, per-app key-value surface
// (ultralight.store/load/list/query/remove).
type KVStore interface {
	Store(ctx context.Context, key string, value any) error
	Load(ctx context.Context, key string) (any, bool, error)
	List(ctx context.Context, prefix string) ([]string, error)
	Query(ctx context.Context, prefix string, limit, offset int) ([]any, error)
	Remove(ctx context.Context, key string) error
}

// MemoryStore is the cross-app memory surface
// (ultralight.remember/recall). scope defaults to "app:<appId>"; scope
// "user" shares across every app the caller uses.
type MemoryStore interface {
	Remember(ctx context.Context, key string, value any, scope string) error
	Recall(ctx context.Context, key string, scope string) (any, bool, error)
}

// AiMessage is one chat message passed to ultralight.ai.
type AiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// AiRequest is the ultralight.ai({...}) argument shape.
type AiRequest struct {
	Messages    []AiMessage      `json:"messages"`
	Model       string           `json:"model,omitempty"`
	Temperature float64          `json:"temperature,omitempty"`
	MaxTokens   int              `json:"max_tokens,omitempty"`
	Tools       []map[string]any `json:"tools,omitempty"`
}

// AiUsage reports token counts and the BYOK cost charged for one call.
type AiUsage struct {
	InputTokens  int   `json:"input_tokens"`
	OutputTokens int   `json:"output_tokens"`
	CostCents    int64 `json:"cost_cents"`
}

// AiResponse is what ultralight.ai(...) resolves to. A non-empty Error
// with zero Usage means "BYOK not configured" or similar — the call
// site never throws (spec.md §4.7).
type AiResponse struct {
	Content string  `json:"content"`
	Model   string  `json:"model"`
	Usage   AiUsage `json:"usage"`
	Error   string  `json:"error,omitempty"`
}

// AiCaller is the BYOK-bound LLM adapter (ultralight.ai).
type AiCaller interface {
	Call(ctx context.Context, req AiRequest) (AiResponse, error)
}

// InterAppCaller is the inter-app invocation surface (ultralight.call).
// Implementations MUST forward the caller's own bearer token so the
// target app sees the same user identity.
type InterAppCaller interface {
	Call(ctx context.Context, appID, functionName string, args map[string]any) (map[string]any, error)
}

// Surface is the passive capability object handed to the sandbox
// engine. The engine, not this object, is responsible for restricting
// what user code can do with it.
type Surface struct {
	KV       KVStore
	Memory   MemoryStore
	AI       AiCaller
	InterApp InterAppCaller
	Env      map[string]string
	AppScope string // "app:<appId>", the default MemoryStore scope
}

// BuildSurface assembles a Surface bound to appID, defaulting
// AppScope to "app:<appId>" per spec.md §4.7.
func BuildSurface(appID string, kv KVStore, memory MemoryStore, ai AiCaller, interApp InterAppCaller, env map[string]string) *Surface {
	return &Surface{
		KV:       kv,
		Memory:   memory,
		AI:       ai,
		InterApp: interApp,
		Env:      env,
		AppScope: "app:" + appID,
	}
}

// NoBYOKAiCaller is a stub AiCaller used when the caller has
// byok_enabled but no decryptable key, or no BYOK provider configured
// at all. It returns the "BYOK not configured" response spec.md §4.6
// requires rather than failing the call.
type NoBYOKAiCaller struct{}

func (NoBYOKAiCaller) Call(ctx context.Context, req AiRequest) (AiResponse, error) {
	return AiResponse{Error: "BYOK not configured"}, nil
}
