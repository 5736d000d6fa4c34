package auth

import (
	"context"

	"github.com/ultralight/host/internal/model"
)

// Store is the relational-store surface the Token Verifier needs. The
// concrete implementation lives in internal/storepg; tests supply a
// fake.
type Store interface {
	// FindAPIToken looks up an API token by the SHA-256 hash of its full
	// value. Returns nil, nil when no row matches.
	FindAPIToken(ctx context.Context, tokenHash string) (*model.APIToken, error)

	// TouchAPITokenLastUsed updates last_used_at. Callers treat failure
	// as best-effort per spec.md §4.2 and never fail the request on it.
	TouchAPITokenLastUsed(ctx context.Context, tokenHash string) error

	// GetUser fetches the stable identity row for userID. Returns nil,
	// nil when absent (a platform JWT may reference a user not yet
	// upserted locally).
	GetUser(ctx context.Context, userID string) (*model.User, error)

	// EnsureUser upserts a minimal user row from JWT claims. Best-effort:
	// a failure here must not fail the calling request (a later write
	// will retry).
	EnsureUser(ctx context.Context, userID, email string) error
}
