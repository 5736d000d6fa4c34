package storepg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// KVStore implements sandbox.KVStore against a per-user, per-app
// key-value table. One instance is bound per request by
// internal/adapters.Capabilities.KVStore.
type KVStore struct {
	repo   *Repository
	appID  string
	userID string
}

// NewKVStore builds a KVStore bound to (appID, userID).
func NewKVStore(repo *Repository, appID, userID string) *KVStore {
	return &KVStore{repo: repo, appID: appID, userID: userID}
}

func (k *KVStore) Store(ctx context.Context, key string, value any) error {
	valueJSON, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("storepg: marshal kv value: %w", err)
	}
	_, err = k.repo.DB.Exec(ctx, `
		INSERT INTO app_kv_store (app_id, user_id, key, value_json, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (app_id, user_id, key) DO UPDATE SET
			value_json = EXCLUDED.value_json, updated_at = EXCLUDED.updated_at
	`, k.appID, k.userID, key, valueJSON)
	if err != nil {
		return fmt.Errorf("storepg: store kv: %w", err)
	}
	return nil
}

func (k *KVStore) Load(ctx context.Context, key string) (any, bool, error) {
	var raw []byte
	err := k.repo.DB.QueryRow(ctx, `
		SELECT value_json FROM app_kv_store WHERE app_id = $1 AND user_id = $2 AND key = $3
	`, k.appID, k.userID, key).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("storepg: load kv: %w", err)
	}
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, false, fmt.Errorf("storepg: decode kv value: %w", err)
	}
	return value, true, nil
}

func (k *KVStore) List(ctx context.Context, prefix string) ([]string, error) {
	rows, err := k.repo.DB.Query(ctx, `
		SELECT key FROM app_kv_store
		WHERE app_id = $1 AND user_id = $2 AND key LIKE $3 || '%'
		ORDER BY key
	`, k.appID, k.userID, prefix)
	if err != nil {
		return nil, fmt.Errorf("storepg: list kv keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("storepg: scan kv key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (k *KVStore) Query(ctx context.Context, prefix string, limit, offset int) ([]any, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := k.repo.DB.Query(ctx, `
		SELECT value_json FROM app_kv_store
		WHERE app_id = $1 AND user_id = $2 AND key LIKE $3 || '%'
		ORDER BY key
		LIMIT $4 OFFSET $5
	`, k.appID, k.userID, prefix, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("storepg: query kv values: %w", err)
	}
	defer rows.Close()

	var values []any
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("storepg: scan kv value: %w", err)
		}
		var value any
		if err := json.Unmarshal(raw, &value); err != nil {
			return nil, fmt.Errorf("storepg: decode kv value: %w", err)
		}
		values = append(values, value)
	}
	return values, rows.Err()
}

func (k *KVStore) Remove(ctx context.Context, key string) error {
	_, err := k.repo.DB.Exec(ctx, `
		DELETE FROM app_kv_store WHERE app_id = $1 AND user_id = $2 AND key = $3
	`, k.appID, k.userID, key)
	if err != nil {
		return fmt.Errorf("storepg: remove kv: %w", err)
	}
	return nil
}
