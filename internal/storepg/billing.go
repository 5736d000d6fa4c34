package storepg

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// TransferBalance implements internal/billing.Store by calling the
// relational store's transfer_balance stored procedure, per spec.md
// §4.8 and Design Notes §9. The procedure is expected to run the debit,
// credit, and insufficient-funds check atomically and return whether
// the transfer was applied.
func (r *Repository) TransferBalance(ctx context.Context, fromUserID, toUserID string, amountCents int64) (bool, error) {
	var ok bool
	err := r.DB.QueryRow(ctx, `SELECT transfer_balance($1, $2, $3)`, fromUserID, toUserID, amountCents).Scan(&ok)
	if err != nil {
		if err == pgx.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("storepg: transfer_balance: %w", err)
	}
	return ok, nil
}
