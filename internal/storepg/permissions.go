package storepg

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ultralight/host/internal/model"
)

// FetchPermissionRows implements internal/permissions.Store. A private
// app with no rows yields an empty, non-nil slice.
func (r *Repository) FetchPermissionRows(ctx context.Context, userID, appID string) ([]*model.PermissionRow, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT
			granted_to_user, app_id, function_name, allowed, allowed_ips,
			time_window_start_hour, time_window_end_hour, time_window_days, time_window_timezone,
			budget_limit, budget_used, budget_period, expires_at, allowed_args
		FROM permission_rows
		WHERE granted_to_user = $1 AND app_id = $2
	`, userID, appID)
	if err != nil {
		return nil, fmt.Errorf("storepg: fetch permission rows: %w", err)
	}
	defer rows.Close()

	result := make([]*model.PermissionRow, 0)
	for rows.Next() {
		row, err := scanPermissionRow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

func scanPermissionRow(rows pgx.Rows) (*model.PermissionRow, error) {
	var (
		p                                model.PermissionRow
		allowedIPs                       []string
		startHour, endHour               *int
		days                             []int
		timezone                         *string
		budgetPeriod                     string
		allowedArgsJSON                  []byte
	)

	if err := rows.Scan(
		&p.GrantedToUser, &p.AppID, &p.FunctionName, &p.Allowed, &allowedIPs,
		&startHour, &endHour, &days, &timezone,
		&p.BudgetLimit, &p.BudgetUsed, &budgetPeriod, &p.ExpiresAt, &allowedArgsJSON,
	); err != nil {
		return nil, fmt.Errorf("storepg: scan permission row: %w", err)
	}

	p.AllowedIPs = allowedIPs
	p.BudgetPeriod = model.BudgetPeriod(budgetPeriod)

	if startHour != nil && endHour != nil {
		tz := ""
		if timezone != nil {
			tz = *timezone
		}
		p.TimeWindow = &model.TimeWindow{
			StartHour: *startHour,
			EndHour:   *endHour,
			Days:      days,
			Timezone:  tz,
		}
	}

	if err := unmarshalIfPresent(allowedArgsJSON, &p.AllowedArgs); err != nil {
		return nil, fmt.Errorf("storepg: decode permission_rows.allowed_args: %w", err)
	}

	return &p, nil
}

// PersistBudgetIncrement implements internal/permissions.Store:
// best-effort persistence of a budget_used += 1, mirroring the
// resolver's in-place cache mutation.
func (r *Repository) PersistBudgetIncrement(ctx context.Context, userID, appID, functionName string) error {
	_, err := r.DB.Exec(ctx, `
		UPDATE permission_rows
		SET budget_used = budget_used + 1
		WHERE granted_to_user = $1 AND app_id = $2 AND function_name = $3
	`, userID, appID, functionName)
	return err
}
