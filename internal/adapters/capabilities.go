// Package adapters implements the Supporting services (C14): thin,
// narrow-interface clients that bind the Sandbox Gateway's capability
// surface to concrete backends — a BYOK AI adapter, an inter-app
// JSON-RPC loopback caller, and the per-request KV/memory stores — plus
// the object-store client the Code Cache fetches through on a miss. See
// spec.md §4.7 and §2's "Supporting services" row.
package adapters

import (
	"github.com/rs/zerolog"

	"github.com/ultralight/host/internal/sandbox"
	"github.com/ultralight/host/internal/setup"
	"github.com/ultralight/host/internal/storepg"
)

// Capabilities implements internal/mcpserver.CapabilityProvider,
// binding each per-request capability to its concrete backend.
type Capabilities struct {
	repo     *storepg.Repository
	ai       *OpenRouterCaller
	interApp *LoopbackCaller
	log      zerolog.Logger
}

// New builds a Capabilities provider. repo backs KV/memory storage, ai
// is the BYOK LLM client, interApp forwards ultralight.call invocations
// as local JSON-RPC requests against this same host.
func New(repo *storepg.Repository, ai *OpenRouterCaller, interApp *LoopbackCaller, log zerolog.Logger) *Capabilities {
	return &Capabilities{repo: repo, ai: ai, interApp: interApp, log: log}
}

// KVStore implements internal/mcpserver.CapabilityProvider.
func (c *Capabilities) KVStore(appID, userID string) sandbox.KVStore {
	return storepg.NewKVStore(c.repo, appID, userID)
}

// MemoryStore implements internal/mcpserver.CapabilityProvider.
func (c *Capabilities) MemoryStore(userID string) sandbox.MemoryStore {
	return storepg.NewMemoryStore(c.repo, userID)
}

// InterAppCaller implements internal/mcpserver.CapabilityProvider.
// bearerCredential is the caller's own Authorization header value,
// forwarded verbatim so the target app resolves the same identity
// (spec.md §4.7).
func (c *Capabilities) InterAppCaller(bearerCredential string) sandbox.InterAppCaller {
	return c.interApp.Bind(bearerCredential)
}

// AiCaller implements internal/mcpserver.CapabilityProvider. Only
// called when the caller's profile has a decryptable BYOK key; the
// dispatcher substitutes sandbox.NoBYOKAiCaller otherwise.
func (c *Capabilities) AiCaller(profile *setup.UserProfile, decryptedKey string) sandbox.AiCaller {
	return c.ai.Bind(profile.BYOKProvider, decryptedKey)
}
