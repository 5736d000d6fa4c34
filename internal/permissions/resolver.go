package permissions

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/ultralight/host/internal/lrucache"
	"github.com/ultralight/host/internal/model"
)

const (
	cacheCapacity = 10_000
	cacheTTL      = 60 * time.Second
)

// Resolver implements the Permission Resolver (C3), cache-backed per
// spec.md §4.4.
type Resolver struct {
	store Store
	cache *lrucache.Cache[string, *model.ResolvedPermissions]
	log   zerolog.Logger
}

// New builds a Resolver with the spec-default cache bounds (TTL ~60s,
// LRU capacity in the 1-10K range).
func New(store Store, log zerolog.Logger) *Resolver {
	return &Resolver{
		store: store,
		cache: lrucache.New[string, *model.ResolvedPermissions](cacheCapacity, cacheTTL, nil),
		log:   log,
	}
}

func cacheKey(userID, appID string) string {
	return userID + "\x00" + appID
}

// Resolve returns nil (no restrictions) when userID owns app or app is
// public/unlisted; otherwise it returns the cached-or-fetched set of
// permission rows governing userID's calls against app.
func (r *Resolver) Resolve(ctx context.Context, userID string, app *model.App) (*model.ResolvedPermissions, error) {
	if userID == app.OwnerID {
		return nil, nil
	}
	if app.Visibility == model.VisibilityPublic || app.Visibility == model.VisibilityUnlisted {
		return nil, nil
	}

	key := cacheKey(userID, app.ID)
	if cached, ok := r.cache.Get(key); ok {
		return cached, nil
	}

	rows, err := r.store.FetchPermissionRows(ctx, userID, app.ID)
	if err != nil {
		// Fail-closed per spec.md §5: on a permission-store failure the
		// caller sees an empty allowed set, never an open one.
		r.log.Warn().Err(err).Str("userId", userID).Str("appId", app.ID).
			Msg("permission fetch failed, failing closed")
		return &model.ResolvedPermissions{Allowed: map[string]struct{}{}}, nil
	}

	resolved := buildResolved(rows)
	r.cache.Put(key, resolved)
	return resolved, nil
}

func buildResolved(rows []*model.PermissionRow) *model.ResolvedPermissions {
	allowed := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		if row.Allowed {
			allowed[row.FunctionName] = struct{}{}
		}
	}
	return &model.ResolvedPermissions{Allowed: allowed, Rows: rows}
}

// Invalidate drops the cached entry for (userID, appID), called on any
// write through the permissions admin API.
func (r *Resolver) Invalidate(userID, appID string) {
	r.cache.Delete(cacheKey(userID, appID))
}

// IncrementBudget bumps the cached row's budget_used by one in place
// (preserving its TTL/LRU position) and best-effort persists the same
// increment to the store. For a (userID, appID, function) with no
// cached entry or no matching budgeted row the cache is left untouched;
// the store increment is issued in every case.
func (r *Resolver) IncrementBudget(ctx context.Context, userID, appID, functionName string) {
	key := cacheKey(userID, appID)

	r.cache.MutateInPlace(key, func(rp **model.ResolvedPermissions) {
		if *rp == nil {
			return
		}
		row := (*rp).RowFor(functionName)
		if row != nil && row.BudgetLimit != nil {
			row.BudgetUsed++
		}
	})

	if err := r.store.PersistBudgetIncrement(ctx, userID, appID, functionName); err != nil {
		r.log.Warn().Err(err).Str("userId", userID).Str("appId", appID).
			Str("function", functionName).Msg("best-effort budget increment persist failed")
	}
}
