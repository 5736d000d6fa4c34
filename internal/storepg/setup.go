package storepg

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ultralight/host/internal/model"
	"github.com/ultralight/host/internal/setup"
)

// FetchPerUserSecrets implements internal/setup.SecretsStore. Values
// are returned still encrypted; the orchestrator decrypts them after
// the join (spec.md §4.6).
func (r *Repository) FetchPerUserSecrets(ctx context.Context, userID, appID string) (map[string]string, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT key, encrypted_value FROM user_app_secrets WHERE user_id = $1 AND app_id = $2
	`, userID, appID)
	if err != nil {
		return nil, fmt.Errorf("storepg: fetch per-user secrets: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("storepg: scan per-user secret: %w", err)
		}
		out[key] = value
	}
	return out, rows.Err()
}

// FetchUserProfile implements internal/setup.ProfileStore.
func (r *Repository) FetchUserProfile(ctx context.Context, userID string) (*setup.UserProfile, error) {
	var (
		p               setup.UserProfile
		provider        *string
		keyEncrypted    *string
	)
	err := r.DB.QueryRow(ctx, `
		SELECT byok_enabled, byok_provider, byok_key_encrypted FROM users WHERE id = $1
	`, userID).Scan(&p.BYOKEnabled, &provider, &keyEncrypted)
	if errors.Is(err, pgx.ErrNoRows) {
		return &setup.UserProfile{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storepg: fetch user profile: %w", err)
	}
	if provider != nil {
		p.BYOKProvider = *provider
	}
	if keyEncrypted != nil {
		p.BYOKKeyEncrypted = *keyEncrypted
	}
	return &p, nil
}

// Resolve implements internal/setup.DBConfigResolver, following the
// priority order of spec.md §4.6 item 5: explicit per-app config id,
// then the app's legacy encrypted config, then the caller's own
// platform-level config, then none.
func (r *Repository) Resolve(ctx context.Context, app *model.App, userID string) (*setup.DBConfig, error) {
	if app.UpstreamDBConfigID != "" {
		cfg, err := r.dbConfigByID(ctx, app.UpstreamDBConfigID)
		if err != nil {
			return nil, err
		}
		if cfg != nil {
			return cfg, nil
		}
	}

	if cfg, err := r.legacyAppDBConfig(ctx, app.ID); err != nil {
		return nil, err
	} else if cfg != nil {
		return cfg, nil
	}

	if cfg, err := r.userPlatformDBConfig(ctx, userID); err != nil {
		return nil, err
	} else if cfg != nil {
		return cfg, nil
	}

	return nil, nil
}

func (r *Repository) dbConfigByID(ctx context.Context, id string) (*setup.DBConfig, error) {
	var cfg setup.DBConfig
	err := r.DB.QueryRow(ctx, `
		SELECT id, conn_string FROM upstream_db_configs WHERE id = $1
	`, id).Scan(&cfg.ID, &cfg.ConnString)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storepg: resolve db config by id: %w", err)
	}
	return &cfg, nil
}

func (r *Repository) legacyAppDBConfig(ctx context.Context, appID string) (*setup.DBConfig, error) {
	var encrypted *string
	err := r.DB.QueryRow(ctx, `
		SELECT legacy_db_config_encrypted FROM apps WHERE id = $1
	`, appID).Scan(&encrypted)
	if errors.Is(err, pgx.ErrNoRows) || encrypted == nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storepg: resolve legacy app db config: %w", err)
	}
	connString, _, err := r.envelope.Decrypt(*encrypted)
	if err != nil {
		return nil, fmt.Errorf("storepg: decrypt legacy app db config: %w", err)
	}
	return &setup.DBConfig{ID: appID, ConnString: connString}, nil
}

func (r *Repository) userPlatformDBConfig(ctx context.Context, userID string) (*setup.DBConfig, error) {
	var cfg setup.DBConfig
	err := r.DB.QueryRow(ctx, `
		SELECT id, conn_string FROM upstream_db_configs WHERE owner_user_id = $1 AND is_default = true
	`, userID).Scan(&cfg.ID, &cfg.ConnString)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storepg: resolve user platform db config: %w", err)
	}
	return &cfg, nil
}
