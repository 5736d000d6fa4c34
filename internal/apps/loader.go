// Package apps implements the App Loader (C2): fetching an immutable
// app snapshot by id or (owner, slug). See spec.md §4.3.
package apps

import (
	"context"

	"github.com/ultralight/host/internal/model"
)

// Store is the relational-store surface the loader needs.
type Store interface {
	// FindAppByID returns nil, nil when no app has that id.
	FindAppByID(ctx context.Context, id string) (*model.App, error)
	// FindAppBySlug returns nil, nil when no app matches.
	FindAppBySlug(ctx context.Context, ownerID, slug string) (*model.App, error)
}

// Loader resolves apps to frozen snapshots. It performs no visibility
// check — that is the Permission Resolver's job (spec.md §4.3).
type Loader struct {
	store Store
}

// New builds a Loader over store.
func New(store Store) *Loader {
	return &Loader{store: store}
}

// FindByID resolves an app by its id.
func (l *Loader) FindByID(ctx context.Context, id string) (*model.App, error) {
	return l.store.FindAppByID(ctx, id)
}

// FindBySlug resolves an app by its owner and slug.
func (l *Loader) FindBySlug(ctx context.Context, ownerID, slug string) (*model.App, error) {
	return l.store.FindAppBySlug(ctx, ownerID, slug)
}
