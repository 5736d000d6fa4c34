package storepg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// MemoryStore implements sandbox.MemoryStore (ultralight.remember/
// recall): cross-app memory keyed by (userID, scope, key), where scope
// defaults to "app:<appId>" and "user" shares across every app the
// caller uses (spec.md §4.7).
type MemoryStore struct {
	repo   *Repository
	userID string
}

// NewMemoryStore builds a MemoryStore bound to userID.
func NewMemoryStore(repo *Repository, userID string) *MemoryStore {
	return &MemoryStore{repo: repo, userID: userID}
}

func (m *MemoryStore) Remember(ctx context.Context, key string, value any, scope string) error {
	valueJSON, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("storepg: marshal memory value: %w", err)
	}
	_, err = m.repo.DB.Exec(ctx, `
		INSERT INTO user_memory (user_id, scope, key, value_json, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (user_id, scope, key) DO UPDATE SET
			value_json = EXCLUDED.value_json, updated_at = EXCLUDED.updated_at
	`, m.userID, scope, key, valueJSON)
	if err != nil {
		return fmt.Errorf("storepg: remember: %w", err)
	}
	return nil
}

func (m *MemoryStore) Recall(ctx context.Context, key string, scope string) (any, bool, error) {
	var raw []byte
	err := m.repo.DB.QueryRow(ctx, `
		SELECT value_json FROM user_memory WHERE user_id = $1 AND scope = $2 AND key = $3
	`, m.userID, scope, key).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("storepg: recall: %w", err)
	}
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, false, fmt.Errorf("storepg: decode memory value: %w", err)
	}
	return value, true, nil
}
