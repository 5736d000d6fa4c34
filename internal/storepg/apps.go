package storepg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ultralight/host/internal/model"
)

const appColumns = `
	id, slug, owner_id, visibility, storage_key, manifest, skills_parsed,
	skills_md, current_version, env_vars, env_schema, rate_limit_calls_per_minute,
	rate_limit_calls_per_day, pricing_config, hosting_suspended, upstream_db_config_id
`

// FindAppByID implements internal/apps.Store. A missing row yields
// (nil, nil), not an error, per spec.md §4.3.
func (r *Repository) FindAppByID(ctx context.Context, id string) (*model.App, error) {
	row := r.DB.QueryRow(ctx, `SELECT `+appColumns+` FROM apps WHERE id = $1`, id)
	return scanApp(row)
}

// FindAppBySlug implements internal/apps.Store.
func (r *Repository) FindAppBySlug(ctx context.Context, ownerID, slug string) (*model.App, error) {
	row := r.DB.QueryRow(ctx, `SELECT `+appColumns+` FROM apps WHERE owner_id = $1 AND slug = $2`, ownerID, slug)
	return scanApp(row)
}

func scanApp(row pgx.Row) (*model.App, error) {
	var (
		a                        model.App
		manifestJSON             []byte
		skillsParsedJSON         []byte
		envVarsJSON              []byte
		envSchemaJSON            []byte
		pricingConfigJSON        []byte
		callsPerMinute           *int
		callsPerDay              *int
		upstreamDBConfigID       *string
	)

	err := row.Scan(
		&a.ID, &a.Slug, &a.OwnerID, &a.Visibility, &a.StorageKey, &manifestJSON,
		&skillsParsedJSON, &a.SkillsMD, &a.CurrentVersion, &envVarsJSON, &envSchemaJSON,
		&callsPerMinute, &callsPerDay, &pricingConfigJSON, &a.HostingSuspended, &upstreamDBConfigID,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storepg: scan app: %w", err)
	}

	if err := unmarshalIfPresent(manifestJSON, &a.Manifest); err != nil {
		return nil, fmt.Errorf("storepg: decode app.manifest: %w", err)
	}
	if err := unmarshalIfPresent(skillsParsedJSON, &a.SkillsParsed); err != nil {
		return nil, fmt.Errorf("storepg: decode app.skills_parsed: %w", err)
	}
	if err := unmarshalIfPresent(envVarsJSON, &a.EnvVars); err != nil {
		return nil, fmt.Errorf("storepg: decode app.env_vars: %w", err)
	}
	if err := unmarshalIfPresent(envSchemaJSON, &a.EnvSchema); err != nil {
		return nil, fmt.Errorf("storepg: decode app.env_schema: %w", err)
	}
	if err := unmarshalIfPresent(pricingConfigJSON, &a.PricingConfig); err != nil {
		return nil, fmt.Errorf("storepg: decode app.pricing_config: %w", err)
	}

	if callsPerMinute != nil {
		a.RateLimitConfig.CallsPerMinute = *callsPerMinute
	}
	if callsPerDay != nil {
		a.RateLimitConfig.CallsPerDay = *callsPerDay
	}
	if upstreamDBConfigID != nil {
		a.UpstreamDBConfigID = *upstreamDBConfigID
	}

	return &a, nil
}

func unmarshalIfPresent(raw []byte, dest any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dest)
}
