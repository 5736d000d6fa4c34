package permissions

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/ultralight/host/internal/model"
)

type fakeStore struct {
	rows        map[string][]*model.PermissionRow
	fetchCalls  int
	fetchErr    error
	incrementCalls []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: make(map[string][]*model.PermissionRow)}
}

func (f *fakeStore) FetchPermissionRows(ctx context.Context, userID, appID string) ([]*model.PermissionRow, error) {
	f.fetchCalls++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.rows[cacheKey(userID, appID)], nil
}

func (f *fakeStore) PersistBudgetIncrement(ctx context.Context, userID, appID, functionName string) error {
	f.incrementCalls = append(f.incrementCalls, cacheKey(userID, appID)+":"+functionName)
	return nil
}

func TestResolve_OwnerHasNoRestrictions(t *testing.T) {
	r := New(newFakeStore(), zerolog.Nop())
	app := &model.App{ID: "app-1", OwnerID: "owner-1", Visibility: model.VisibilityPrivate}

	resolved, err := r.Resolve(context.Background(), "owner-1", app)
	if err != nil || resolved != nil {
		t.Errorf("expected nil/nil for owner, got %+v, %v", resolved, err)
	}
}

func TestResolve_PublicAppHasNoRestrictions(t *testing.T) {
	r := New(newFakeStore(), zerolog.Nop())
	app := &model.App{ID: "app-1", OwnerID: "owner-1", Visibility: model.VisibilityPublic}

	resolved, err := r.Resolve(context.Background(), "someone-else", app)
	if err != nil || resolved != nil {
		t.Errorf("expected nil/nil for public app, got %+v, %v", resolved, err)
	}
}

func TestResolve_PrivateAppFetchesAndCaches(t *testing.T) {
	store := newFakeStore()
	app := &model.App{ID: "app-1", OwnerID: "owner-1", Visibility: model.VisibilityPrivate}
	store.rows[cacheKey("u1", "app-1")] = []*model.PermissionRow{
		{GrantedToUser: "u1", AppID: "app-1", FunctionName: "doThing", Allowed: true},
	}

	r := New(store, zerolog.Nop())
	resolved, err := r.Resolve(context.Background(), "u1", app)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if !resolved.CanCall("doThing") {
		t.Error("expected doThing to be callable")
	}

	// Second call must be served from cache, not re-fetch.
	if _, err := r.Resolve(context.Background(), "u1", app); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if store.fetchCalls != 1 {
		t.Errorf("expected 1 fetch (cached on 2nd call), got %d", store.fetchCalls)
	}
}

func TestResolve_DeniedUserIsCached(t *testing.T) {
	store := newFakeStore()
	app := &model.App{ID: "app-1", OwnerID: "owner-1", Visibility: model.VisibilityPrivate}
	// No rows at all for this user — empty allowed set.

	r := New(store, zerolog.Nop())
	resolved, err := r.Resolve(context.Background(), "intruder", app)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if resolved.CanCall("anything") {
		t.Error("expected no functions callable")
	}
	r.Resolve(context.Background(), "intruder", app)
	if store.fetchCalls != 1 {
		t.Errorf("expected denial to be cached, got %d fetches", store.fetchCalls)
	}
}

func TestResolve_StoreErrorFailsClosed(t *testing.T) {
	store := newFakeStore()
	store.fetchErr = errors.New("connection refused")
	app := &model.App{ID: "app-1", OwnerID: "owner-1", Visibility: model.VisibilityPrivate}

	r := New(store, zerolog.Nop())
	resolved, err := r.Resolve(context.Background(), "u1", app)
	if err != nil {
		t.Fatalf("expected fail-closed (no error), got %v", err)
	}
	if resolved.CanCall("anything") {
		t.Error("expected fail-closed resolver to deny everything")
	}
}

func TestInvalidate(t *testing.T) {
	store := newFakeStore()
	app := &model.App{ID: "app-1", OwnerID: "owner-1", Visibility: model.VisibilityPrivate}
	store.rows[cacheKey("u1", "app-1")] = []*model.PermissionRow{
		{GrantedToUser: "u1", AppID: "app-1", FunctionName: "doThing", Allowed: true},
	}

	r := New(store, zerolog.Nop())
	r.Resolve(context.Background(), "u1", app)
	r.Invalidate("u1", "app-1")
	r.Resolve(context.Background(), "u1", app)

	if store.fetchCalls != 2 {
		t.Errorf("expected invalidation to force a re-fetch, got %d fetches", store.fetchCalls)
	}
}

func TestIncrementBudget(t *testing.T) {
	store := newFakeStore()
	limit := int64(10)
	app := &model.App{ID: "app-1", OwnerID: "owner-1", Visibility: model.VisibilityPrivate}
	store.rows[cacheKey("u1", "app-1")] = []*model.PermissionRow{
		{GrantedToUser: "u1", AppID: "app-1", FunctionName: "doThing", Allowed: true, BudgetLimit: &limit, BudgetUsed: 9},
	}

	r := New(store, zerolog.Nop())
	resolved, _ := r.Resolve(context.Background(), "u1", app)
	r.IncrementBudget(context.Background(), "u1", "app-1", "doThing")

	if resolved.RowFor("doThing").BudgetUsed != 10 {
		t.Errorf("expected in-place mutation to raise BudgetUsed to 10, got %d", resolved.RowFor("doThing").BudgetUsed)
	}
	if len(store.incrementCalls) != 1 {
		t.Errorf("expected best-effort persist call, got %d", len(store.incrementCalls))
	}

	cached, _ := r.Resolve(context.Background(), "u1", app)
	if cached.RowFor("doThing").BudgetUsed != 10 {
		t.Error("expected cached entry to reflect the increment")
	}
}
