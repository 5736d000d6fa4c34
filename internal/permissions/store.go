package permissions

import (
	"context"

	"github.com/ultralight/host/internal/model"
)

// Store is the relational-store surface the resolver needs.
type Store interface {
	// FetchPermissionRows returns every permission row granted to userID
	// for appID. A private app with no rows yields an empty, non-nil
	// slice and a nil error.
	FetchPermissionRows(ctx context.Context, userID, appID string) ([]*model.PermissionRow, error)

	// PersistBudgetIncrement best-effort persists a budget_used += 1 for
	// the given row. Failure is logged, never surfaced to the caller.
	PersistBudgetIncrement(ctx context.Context, userID, appID, functionName string) error
}
