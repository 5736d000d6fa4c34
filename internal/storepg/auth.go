package storepg

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ultralight/host/internal/model"
)

// FindAPIToken implements internal/auth.Store. A missing row yields
// (nil, nil), per spec.md §4.2.
func (r *Repository) FindAPIToken(ctx context.Context, tokenHash string) (*model.APIToken, error) {
	var (
		t             model.APIToken
		appIDsJSON    []byte
		functionsJSON []byte
	)
	err := r.DB.QueryRow(ctx, `
		SELECT token_hash, token_prefix, user_id, app_ids, function_names, expires_at, revoked_at
		FROM api_tokens
		WHERE token_hash = $1
	`, tokenHash).Scan(&t.TokenHash, &t.TokenPrefix, &t.UserID, &appIDsJSON, &functionsJSON, &t.ExpiresAt, &t.RevokedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storepg: find api token: %w", err)
	}
	if err := unmarshalIfPresent(appIDsJSON, &t.AppIDs); err != nil {
		return nil, fmt.Errorf("storepg: decode api_tokens.app_ids: %w", err)
	}
	if err := unmarshalIfPresent(functionsJSON, &t.FunctionNames); err != nil {
		return nil, fmt.Errorf("storepg: decode api_tokens.function_names: %w", err)
	}
	return &t, nil
}

// TouchAPITokenLastUsed implements internal/auth.Store. Best-effort per
// spec.md §4.2 — callers never fail the request on this error.
func (r *Repository) TouchAPITokenLastUsed(ctx context.Context, tokenHash string) error {
	_, err := r.DB.Exec(ctx, `UPDATE api_tokens SET last_used_at = now() WHERE token_hash = $1`, tokenHash)
	return err
}

// GetUser implements internal/auth.Store. A missing row yields (nil,
// nil) — a platform JWT may reference a user not yet upserted locally.
func (r *Repository) GetUser(ctx context.Context, userID string) (*model.User, error) {
	var (
		u                model.User
		autoTopup        *int64
		byokEnabled      *bool
		tierStr          string
	)
	err := r.DB.QueryRow(ctx, `
		SELECT id, email, tier, tier_expires_at, balance_cents, auto_topup_cents, byok_enabled
		FROM users
		WHERE id = $1
	`, userID).Scan(&u.ID, &u.Email, &tierStr, &u.TierExpiresAt, &u.BalanceCents, &autoTopup, &byokEnabled)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storepg: get user: %w", err)
	}
	u.Tier = model.Tier(tierStr)
	if autoTopup != nil {
		u.AutoTopupCents = *autoTopup
	}
	if byokEnabled != nil {
		u.BYOKEnabled = *byokEnabled
	}
	return &u, nil
}

// EnsureUser implements internal/auth.Store: a minimal upsert from JWT
// claims. Best-effort — the verifier logs and proceeds on failure.
func (r *Repository) EnsureUser(ctx context.Context, userID, email string) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO users (id, email, tier, balance_cents)
		VALUES ($1, $2, 'free', 0)
		ON CONFLICT (id) DO UPDATE SET email = EXCLUDED.email
	`, userID, email)
	return err
}
