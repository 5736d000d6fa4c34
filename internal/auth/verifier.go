// Package auth implements the Token Verifier (C1): classifying a bearer
// credential as an ultralight API token or a platform-issued JWT, and
// resolving it to a caller identity. See spec.md §4.2.
package auth

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ultralight/host/internal/model"
)

// Identity is what the verifier hands the rest of the pipeline. Empty
// AppScope/FunctionScope mean "unrestricted" (platform JWTs carry no
// scope narrowing; API tokens may).
type Identity struct {
	UserID        string
	Tier          model.Tier
	AppScope      []string
	FunctionScope []string
}

// Verifier resolves bearer credentials against Store.
type Verifier struct {
	store Store
	log   zerolog.Logger
	now   func() time.Time
}

// New builds a Verifier. log should already be bound with component
// context (e.g. log.With().Str("component", "auth").Logger()).
func New(store Store, log zerolog.Logger) *Verifier {
	return &Verifier{store: store, log: log, now: time.Now}
}

// Verify classifies and resolves the Authorization header value.
func (v *Verifier) Verify(ctx context.Context, authHeader string) (*Identity, error) {
	credential, err := extractBearer(authHeader)
	if err != nil {
		return nil, err
	}

	if isAPIToken(credential) {
		return v.verifyAPIToken(ctx, credential)
	}
	return v.verifyJWT(ctx, credential)
}

func extractBearer(authHeader string) (string, error) {
	if authHeader == "" {
		return "", newVerifyError(AuthMissingToken, "Missing or invalid authorization header")
	}

	scheme, token, found := strings.Cut(authHeader, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", newVerifyError(AuthMissingToken, "Missing or invalid authorization header")
	}
	return token, nil
}

func (v *Verifier) verifyAPIToken(ctx context.Context, credential string) (*Identity, error) {
	hash := hashAPIToken(credential)

	tok, err := v.store.FindAPIToken(ctx, hash)
	if err != nil {
		return nil, err
	}
	if tok == nil || tok.RevokedAt != nil {
		return nil, newVerifyError(AuthAPITokenInvalid, "API token not found or revoked")
	}

	now := v.now()
	if tok.Expired(now) {
		return nil, newVerifyError(AuthTokenExpired, "API token expired")
	}

	if err := v.store.TouchAPITokenLastUsed(ctx, hash); err != nil {
		v.log.Warn().Err(err).Str("userId", tok.UserID).Msg("best-effort last_used_at touch failed")
	}

	tier := v.resolveTier(ctx, tok.UserID)
	return &Identity{
		UserID:        tok.UserID,
		Tier:          tier,
		AppScope:      tok.AppIDs,
		FunctionScope: tok.FunctionNames,
	}, nil
}

func (v *Verifier) verifyJWT(ctx context.Context, credential string) (*Identity, error) {
	claims, err := decodeJWTPayload(credential)
	if err != nil {
		return nil, err
	}

	expVal, ok := claims["exp"].(float64)
	if !ok {
		return nil, newVerifyError(AuthInvalidToken, "token missing exp claim")
	}
	if int64(expVal*1000) < v.now().UnixMilli() {
		return nil, newVerifyError(AuthTokenExpired, "token expired")
	}

	sub, _ := claims["sub"].(string)
	email, _ := claims["email"].(string)
	if sub == "" || email == "" {
		return nil, newVerifyError(AuthInvalidToken, "token missing sub or email claim")
	}

	if err := v.store.EnsureUser(ctx, sub, email); err != nil {
		v.log.Warn().Err(err).Str("userId", sub).Msg("best-effort user upsert failed")
	}

	return &Identity{UserID: sub, Tier: v.resolveTier(ctx, sub)}, nil
}

func (v *Verifier) resolveTier(ctx context.Context, userID string) model.Tier {
	user, err := v.store.GetUser(ctx, userID)
	if err != nil || user == nil {
		return model.TierFree
	}
	return user.Tier
}
