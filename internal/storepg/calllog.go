package storepg

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ultralight/host/internal/calllog"
)

// PersistCallLog implements internal/calllog.Store. Called only from
// the Logger's background worker — never on the request path.
func (r *Repository) PersistCallLog(ctx context.Context, rec calllog.Record) error {
	argsJSON, err := json.Marshal(rec.InputArgs)
	if err != nil {
		return fmt.Errorf("storepg: marshal call log args: %w", err)
	}

	_, err = r.DB.Exec(ctx, `
		INSERT INTO call_logs (
			ts, user_id, app_id, app_name, app_version, function_name, method,
			success, duration_ms, error_message, input_args, output, tier,
			ai_cost_cents, session_id, sequence_number, user_query,
			response_bytes, execution_cost_cents, charge_cents
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11, $12, $13,
			$14, $15, $16, $17,
			$18, $19, $20
		)
	`,
		rec.Timestamp, rec.UserID, rec.AppID, rec.AppName, rec.AppVersion, rec.FunctionName, rec.Method,
		rec.Success, rec.DurationMs, rec.ErrorMessage, argsJSON, rec.Output, rec.Tier,
		rec.AICostCents, rec.SessionID, rec.SequenceNumber, rec.UserQuery,
		rec.ResponseBytes, rec.ExecutionCostCents, rec.ChargeCents,
	)
	if err != nil {
		return fmt.Errorf("storepg: persist call log: %w", err)
	}
	return nil
}
