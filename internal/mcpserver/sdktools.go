package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/ultralight/host/internal/sandbox"
)

// sdkCallContext is what an SDK tool handler needs: the capability
// surface bound to this request, plus identifiers for ultralight.call's
// inter-app forwarding.
type sdkCallContext struct {
	surface *sandbox.Surface
	appID   string
	userID  string
}

type sdkHandler func(ctx context.Context, sc *sdkCallContext, args json.RawMessage) (any, error)

type sdkTool struct {
	descriptor toolDescriptorJSON
	handler    sdkHandler
}

// toolDescriptorJSON is the tools/list shape for one tool, per spec.md §6.
type toolDescriptorJSON struct {
	Name         string         `json:"name"`
	Title        string         `json:"title,omitempty"`
	Description  string         `json:"description"`
	InputSchema  map[string]any `json:"inputSchema"`
	OutputSchema map[string]any `json:"outputSchema,omitempty"`
}

func schema(props map[string]any, required ...string) map[string]any {
	s := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// sdkTools is the fixed ultralight.* tool surface present in every app's
// tools/list response, per spec.md §6.
var sdkTools = buildSDKTools()

func buildSDKTools() map[string]sdkTool {
	tools := map[string]sdkTool{
		"ultralight.getSkills": {
			descriptor: toolDescriptorJSON{
				Name:        "ultralight.getSkills",
				Description: "Returns this app's id. The app's documentation is not included; resources/read serves it as skills.md.",
				InputSchema: schema(map[string]any{}),
			},
			handler: handleGetSkills,
		},
		"ultralight.store": {
			descriptor: toolDescriptorJSON{
				Name:        "ultralight.store",
				Description: "Stores a JSON-serializable value under a per-user, per-app key.",
				InputSchema: schema(map[string]any{
					"key":   map[string]any{"type": "string"},
					"value": map[string]any{},
				}, "key", "value"),
			},
			handler: handleStore,
		},
		"ultralight.load": {
			descriptor: toolDescriptorJSON{
				Name:        "ultralight.load",
				Description: "Loads the value stored under key, if any.",
				InputSchema: schema(map[string]any{
					"key": map[string]any{"type": "string"},
				}, "key"),
			},
			handler: handleLoad,
		},
		"ultralight.list": {
			descriptor: toolDescriptorJSON{
				Name:        "ultralight.list",
				Description: "Lists stored keys under an optional prefix.",
				InputSchema: schema(map[string]any{
					"prefix": map[string]any{"type": "string"},
				}),
			},
			handler: handleList,
		},
		"ultralight.query": {
			descriptor: toolDescriptorJSON{
				Name:        "ultralight.query",
				Description: "Queries stored values under a prefix with pagination.",
				InputSchema: schema(map[string]any{
					"prefix": map[string]any{"type": "string"},
					"limit":  map[string]any{"type": "integer"},
					"offset": map[string]any{"type": "integer"},
				}, "prefix"),
			},
			handler: handleQuery,
		},
		"ultralight.remove": {
			descriptor: toolDescriptorJSON{
				Name:        "ultralight.remove",
				Description: "Removes a stored key.",
				InputSchema: schema(map[string]any{
					"key": map[string]any{"type": "string"},
				}, "key"),
			},
			handler: handleRemove,
		},
		"ultralight.remember": {
			descriptor: toolDescriptorJSON{
				Name:        "ultralight.remember",
				Description: "Stores a value in cross-app memory. scope defaults to this app; scope \"user\" shares across apps.",
				InputSchema: schema(map[string]any{
					"key":   map[string]any{"type": "string"},
					"value": map[string]any{},
					"scope": map[string]any{"type": "string"},
				}, "key", "value"),
			},
			handler: handleRemember,
		},
		"ultralight.recall": {
			descriptor: toolDescriptorJSON{
				Name:        "ultralight.recall",
				Description: "Recalls a value from cross-app memory.",
				InputSchema: schema(map[string]any{
					"key":   map[string]any{"type": "string"},
					"scope": map[string]any{"type": "string"},
				}, "key"),
			},
			handler: handleRecall,
		},
		"ultralight.ai": {
			descriptor: toolDescriptorJSON{
				Name:        "ultralight.ai",
				Description: "Calls an LLM via the caller's BYOK provider.",
				InputSchema: schema(map[string]any{
					"messages":    map[string]any{"type": "array"},
					"model":       map[string]any{"type": "string"},
					"temperature": map[string]any{"type": "number"},
					"max_tokens":  map[string]any{"type": "integer"},
					"tools":       map[string]any{"type": "array"},
				}, "messages"),
			},
			handler: handleAI,
		},
		"ultralight.call": {
			descriptor: toolDescriptorJSON{
				Name:        "ultralight.call",
				Description: "Invokes a function on another app as this same caller.",
				InputSchema: schema(map[string]any{
					"app_id":        map[string]any{"type": "string"},
					"function_name": map[string]any{"type": "string"},
					"args":          map[string]any{"type": "object"},
				}, "app_id", "function_name"),
			},
			handler: handleInterAppCall,
		},
	}
	return tools
}

// sdkToolNames lists the fixed ultralight.* tool names, for the
// discovery document's sdk_tools field.
func sdkToolNames() []string {
	names := make([]string, 0, len(sdkTools))
	for name := range sdkTools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func handleGetSkills(ctx context.Context, sc *sdkCallContext, args json.RawMessage) (any, error) {
	return map[string]any{"appId": sc.appID}, nil
}

func handleStore(ctx context.Context, sc *sdkCallContext, args json.RawMessage) (any, error) {
	var p struct {
		Key   string `json:"key"`
		Value any    `json:"value"`
	}
	if err := json.Unmarshal(args, &p); err != nil {
		return nil, newRPCError(CodeInvalidParams, "invalid arguments")
	}
	if err := sc.surface.KV.Store(ctx, p.Key, p.Value); err != nil {
		return nil, err
	}
	return map[string]any{"ok": true}, nil
}

func handleLoad(ctx context.Context, sc *sdkCallContext, args json.RawMessage) (any, error) {
	var p struct {
		Key string `json:"key"`
	}
	if err := json.Unmarshal(args, &p); err != nil {
		return nil, newRPCError(CodeInvalidParams, "invalid arguments")
	}
	value, found, err := sc.surface.KV.Load(ctx, p.Key)
	if err != nil {
		return nil, err
	}
	return map[string]any{"value": value, "found": found}, nil
}

func handleList(ctx context.Context, sc *sdkCallContext, args json.RawMessage) (any, error) {
	var p struct {
		Prefix string `json:"prefix"`
	}
	_ = json.Unmarshal(args, &p)
	keys, err := sc.surface.KV.List(ctx, p.Prefix)
	if err != nil {
		return nil, err
	}
	return map[string]any{"keys": keys}, nil
}

func handleQuery(ctx context.Context, sc *sdkCallContext, args json.RawMessage) (any, error) {
	var p struct {
		Prefix string `json:"prefix"`
		Limit  int    `json:"limit"`
		Offset int    `json:"offset"`
	}
	if err := json.Unmarshal(args, &p); err != nil {
		return nil, newRPCError(CodeInvalidParams, "invalid arguments")
	}
	values, err := sc.surface.KV.Query(ctx, p.Prefix, p.Limit, p.Offset)
	if err != nil {
		return nil, err
	}
	return map[string]any{"values": values}, nil
}

func handleRemove(ctx context.Context, sc *sdkCallContext, args json.RawMessage) (any, error) {
	var p struct {
		Key string `json:"key"`
	}
	if err := json.Unmarshal(args, &p); err != nil {
		return nil, newRPCError(CodeInvalidParams, "invalid arguments")
	}
	if err := sc.surface.KV.Remove(ctx, p.Key); err != nil {
		return nil, err
	}
	return map[string]any{"ok": true}, nil
}

func handleRemember(ctx context.Context, sc *sdkCallContext, args json.RawMessage) (any, error) {
	var p struct {
		Key   string `json:"key"`
		Value any    `json:"value"`
		Scope string `json:"scope"`
	}
	if err := json.Unmarshal(args, &p); err != nil {
		return nil, newRPCError(CodeInvalidParams, "invalid arguments")
	}
	if p.Scope == "" {
		p.Scope = sc.surface.AppScope
	}
	if err := sc.surface.Memory.Remember(ctx, p.Key, p.Value, p.Scope); err != nil {
		return nil, err
	}
	return map[string]any{"ok": true}, nil
}

func handleRecall(ctx context.Context, sc *sdkCallContext, args json.RawMessage) (any, error) {
	var p struct {
		Key   string `json:"key"`
		Scope string `json:"scope"`
	}
	if err := json.Unmarshal(args, &p); err != nil {
		return nil, newRPCError(CodeInvalidParams, "invalid arguments")
	}
	if p.Scope == "" {
		p.Scope = sc.surface.AppScope
	}
	value, found, err := sc.surface.Memory.Recall(ctx, p.Key, p.Scope)
	if err != nil {
		return nil, err
	}
	return map[string]any{"value": value, "found": found}, nil
}

func handleAI(ctx context.Context, sc *sdkCallContext, args json.RawMessage) (any, error) {
	var req sandbox.AiRequest
	if err := json.Unmarshal(args, &req); err != nil {
		return nil, newRPCError(CodeInvalidParams, "invalid arguments")
	}
	return sc.surface.AI.Call(ctx, req)
}

func handleInterAppCall(ctx context.Context, sc *sdkCallContext, args json.RawMessage) (any, error) {
	var p struct {
		AppID        string         `json:"app_id"`
		FunctionName string         `json:"function_name"`
		Args         map[string]any `json:"args"`
	}
	if err := json.Unmarshal(args, &p); err != nil {
		return nil, newRPCError(CodeInvalidParams, "invalid arguments")
	}
	if p.AppID == "" || p.FunctionName == "" {
		return nil, newRPCError(CodeInvalidParams, "app_id and function_name are required")
	}
	result, err := sc.surface.InterApp.Call(ctx, p.AppID, p.FunctionName, p.Args)
	if err != nil {
		return nil, fmt.Errorf("inter-app call failed: %w", err)
	}
	return result, nil
}
