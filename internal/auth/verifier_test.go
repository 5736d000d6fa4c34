package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ultralight/host/internal/model"
)

type fakeStore struct {
	tokens        map[string]*model.APIToken
	users         map[string]*model.User
	touchErr      error
	ensureErr     error
	findTokenErr  error
	touchedHashes []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		tokens: make(map[string]*model.APIToken),
		users:  make(map[string]*model.User),
	}
}

func (f *fakeStore) FindAPIToken(ctx context.Context, hash string) (*model.APIToken, error) {
	if f.findTokenErr != nil {
		return nil, f.findTokenErr
	}
	return f.tokens[hash], nil
}

func (f *fakeStore) TouchAPITokenLastUsed(ctx context.Context, hash string) error {
	f.touchedHashes = append(f.touchedHashes, hash)
	return f.touchErr
}

func (f *fakeStore) GetUser(ctx context.Context, userID string) (*model.User, error) {
	return f.users[userID], nil
}

func (f *fakeStore) EnsureUser(ctx context.Context, userID, email string) error {
	if f.ensureErr != nil {
		return f.ensureErr
	}
	if _, ok := f.users[userID]; !ok {
		f.users[userID] = &model.User{ID: userID, Email: email, Tier: model.TierFree}
	}
	return nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func buildJWT(t *testing.T, claims map[string]any) string {
	t.Helper()
	header := base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString([]byte(`{"alg":"none","typ":"JWT"}`))
	body, err := json.Marshal(claims)
	if err != nil {
		t.Fatalf("marshal claims: %v", err)
	}
	payload := base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(body)
	return fmt.Sprintf("%s.%s.sig", header, payload)
}

func TestVerify_MissingAuth(t *testing.T) {
	v := New(newFakeStore(), zerolog.Nop())
	_, err := v.Verify(context.Background(), "")
	assertSubtype(t, err, AuthMissingToken)
}

func TestVerify_MalformedScheme(t *testing.T) {
	v := New(newFakeStore(), zerolog.Nop())
	_, err := v.Verify(context.Background(), "Basic abc123")
	assertSubtype(t, err, AuthMissingToken)
}

func TestVerify_APIToken_Valid(t *testing.T) {
	store := newFakeStore()
	credential := "ul_abcdefgh"
	hash := hashAPIToken(credential)
	store.tokens[hash] = &model.APIToken{
		TokenHash: hash,
		UserID:    "user-1",
		AppIDs:    []string{"app-a"},
	}
	store.users["user-1"] = &model.User{ID: "user-1", Tier: model.TierPro}

	v := New(store, zerolog.Nop())
	id, err := v.Verify(context.Background(), "Bearer "+credential)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if id.UserID != "user-1" || id.Tier != model.TierPro {
		t.Errorf("got %+v", id)
	}
	if len(store.touchedHashes) != 1 {
		t.Errorf("expected last_used_at touch, got %d touches", len(store.touchedHashes))
	}
}

func TestVerify_APIToken_NotFound(t *testing.T) {
	v := New(newFakeStore(), zerolog.Nop())
	_, err := v.Verify(context.Background(), "Bearer ul_nonexistent")
	assertSubtype(t, err, AuthAPITokenInvalid)
}

func TestVerify_APIToken_Revoked(t *testing.T) {
	store := newFakeStore()
	credential := "ul_revoked"
	hash := hashAPIToken(credential)
	now := time.Now()
	store.tokens[hash] = &model.APIToken{TokenHash: hash, UserID: "user-1", RevokedAt: &now}

	v := New(store, zerolog.Nop())
	_, err := v.Verify(context.Background(), "Bearer "+credential)
	assertSubtype(t, err, AuthAPITokenInvalid)
}

func TestVerify_APIToken_Expired(t *testing.T) {
	store := newFakeStore()
	credential := "ul_expired"
	hash := hashAPIToken(credential)
	past := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	store.tokens[hash] = &model.APIToken{TokenHash: hash, UserID: "user-1", ExpiresAt: &past}

	v := New(store, zerolog.Nop())
	v.now = fixedClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	_, err := v.Verify(context.Background(), "Bearer "+credential)
	assertSubtype(t, err, AuthTokenExpired)
}

func TestVerify_APIToken_TouchFailureIsBestEffort(t *testing.T) {
	store := newFakeStore()
	credential := "ul_touchfail"
	hash := hashAPIToken(credential)
	store.tokens[hash] = &model.APIToken{TokenHash: hash, UserID: "user-1"}
	store.touchErr = errors.New("write timeout")

	v := New(store, zerolog.Nop())
	id, err := v.Verify(context.Background(), "Bearer "+credential)
	if err != nil {
		t.Fatalf("expected touch failure to not abort the call, got %v", err)
	}
	if id.UserID != "user-1" {
		t.Errorf("got %+v", id)
	}
}

func TestVerify_JWT_Valid(t *testing.T) {
	v := New(newFakeStore(), zerolog.Nop())
	v.now = fixedClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	token := buildJWT(t, map[string]any{
		"sub":   "user-42",
		"email": "user42@example.com",
		"exp":   float64(time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC).Unix()),
	})

	id, err := v.Verify(context.Background(), "Bearer "+token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if id.UserID != "user-42" {
		t.Errorf("got UserID=%q", id.UserID)
	}
}

func TestVerify_JWT_Expired(t *testing.T) {
	v := New(newFakeStore(), zerolog.Nop())
	v.now = fixedClock(time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC))

	token := buildJWT(t, map[string]any{
		"sub":   "user-42",
		"email": "user42@example.com",
		"exp":   float64(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Unix()),
	})

	_, err := v.Verify(context.Background(), "Bearer "+token)
	assertSubtype(t, err, AuthTokenExpired)
}

func TestVerify_JWT_MissingClaims(t *testing.T) {
	cases := []struct {
		name   string
		claims map[string]any
	}{
		{"missing sub", map[string]any{"email": "a@example.com", "exp": float64(9999999999)}},
		{"missing email", map[string]any{"sub": "user-1", "exp": float64(9999999999)}},
		{"missing exp", map[string]any{"sub": "user-1", "email": "a@example.com"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := New(newFakeStore(), zerolog.Nop())
			token := buildJWT(t, tc.claims)
			_, err := v.Verify(context.Background(), "Bearer "+token)
			assertSubtype(t, err, AuthInvalidToken)
		})
	}
}

func TestVerify_JWT_MalformedSegments(t *testing.T) {
	v := New(newFakeStore(), zerolog.Nop())
	_, err := v.Verify(context.Background(), "Bearer not.a.jwt.really")
	assertSubtype(t, err, AuthInvalidToken)
}

func TestVerify_JWT_EnsureUserFailureIsBestEffort(t *testing.T) {
	store := newFakeStore()
	store.ensureErr = errors.New("db unavailable")
	v := New(store, zerolog.Nop())
	v.now = fixedClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	token := buildJWT(t, map[string]any{
		"sub":   "user-7",
		"email": "user7@example.com",
		"exp":   float64(time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC).Unix()),
	})

	id, err := v.Verify(context.Background(), "Bearer "+token)
	if err != nil {
		t.Fatalf("expected EnsureUser failure to not abort the call, got %v", err)
	}
	if id.UserID != "user-7" {
		t.Errorf("got %+v", id)
	}
}

func assertSubtype(t *testing.T, err error, want Subtype) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error with subtype %s, got nil", want)
	}
	var verr *VerifyError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *VerifyError, got %T: %v", err, err)
	}
	if verr.Subtype != want {
		t.Errorf("subtype = %s, want %s", verr.Subtype, want)
	}
}
