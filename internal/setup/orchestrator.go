// Package setup implements the Setup Orchestrator (C7): the parallel
// fan-out of code fetch, env decryption, per-user secrets, user
// profile, and upstream DB config resolution that must all join
// before a tools/call is handed to the sandbox. See spec.md §4.6.
package setup

import (
	"context"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ultralight/host/internal/cryptoenv"
	"github.com/ultralight/host/internal/model"
)

// UserProfile carries the caller's BYOK configuration.
type UserProfile struct {
	BYOKEnabled      bool
	BYOKProvider     string
	BYOKKeyEncrypted string
}

// DBConfig is an upstream database config reference resolved per the
// priority order in spec.md §4.6 item 5.
type DBConfig struct {
	ID         string
	ConnString string
}

// CodeFetcher resolves an app's entry-point source text.
type CodeFetcher interface {
	Fetch(ctx context.Context, appID, storageKey string) (string, error)
}

// SecretsStore fetches per-user secrets, each still in encrypted form.
type SecretsStore interface {
	FetchPerUserSecrets(ctx context.Context, userID, appID string) (map[string]string, error)
}

// ProfileStore fetches the caller's BYOK profile.
type ProfileStore interface {
	FetchUserProfile(ctx context.Context, userID string) (*UserProfile, error)
}

// DBConfigResolver resolves the upstream DB config per spec.md §4.6
// item 5's priority order.
type DBConfigResolver interface {
	Resolve(ctx context.Context, app *model.App, userID string) (*DBConfig, error)
}

// Result is everything execution needs, once every leg has joined.
type Result struct {
	Source   string
	Env      map[string]string // merged universal + decrypted per-user secrets
	Profile  *UserProfile
	DBConfig *DBConfig
}

// Orchestrator runs the five setup legs in parallel.
type Orchestrator struct {
	code     CodeFetcher
	secrets  SecretsStore
	profiles ProfileStore
	dbConfig DBConfigResolver
	envelope *cryptoenv.Envelope
	log      zerolog.Logger
}

// New builds an Orchestrator from its collaborators.
func New(code CodeFetcher, secrets SecretsStore, profiles ProfileStore, dbConfig DBConfigResolver, envelope *cryptoenv.Envelope, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{code: code, secrets: secrets, profiles: profiles, dbConfig: dbConfig, envelope: envelope, log: log}
}

// Run fans out the five setup legs and joins them. It returns
// ErrMissingCode if the code fetch leg yields no source, and
// *MissingSecretsError if any required per-user secret is absent after
// the join.
func (o *Orchestrator) Run(ctx context.Context, app *model.App, userID string) (*Result, error) {
	g, gctx := errgroup.WithContext(ctx)

	var source string
	g.Go(func() error {
		s, err := o.code.Fetch(gctx, app.ID, app.StorageKey)
		source = s
		return err
	})

	var universalEnv map[string]string
	g.Go(func() error {
		universalEnv = o.decryptUniversalEnv(app.EnvVars)
		return nil
	})

	var perUserSecrets map[string]string
	if app.HasPerUserSecrets() {
		g.Go(func() error {
			encrypted, err := o.secrets.FetchPerUserSecrets(gctx, userID, app.ID)
			if err != nil {
				return err
			}
			perUserSecrets = o.decryptMap(encrypted)
			return nil
		})
	}

	var profile *UserProfile
	g.Go(func() error {
		p, err := o.profiles.FetchUserProfile(gctx, userID)
		profile = p
		return err
	})

	var dbConfig *DBConfig
	g.Go(func() error {
		d, err := o.dbConfig.Resolve(gctx, app, userID)
		dbConfig = d
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	if source == "" {
		return nil, ErrMissingCode
	}

	mergedEnv := mergeEnv(universalEnv, perUserSecrets)
	if missing := missingRequiredSecrets(app, mergedEnv); len(missing) > 0 {
		return nil, &MissingSecretsError{Missing: missing}
	}

	return &Result{Source: source, Env: mergedEnv, Profile: profile, DBConfig: dbConfig}, nil
}

func (o *Orchestrator) decryptUniversalEnv(encrypted map[string]string) map[string]string {
	return o.decryptMap(encrypted)
}

func (o *Orchestrator) decryptMap(encrypted map[string]string) map[string]string {
	out := make(map[string]string, len(encrypted))
	for key, blob := range encrypted {
		plain, _, err := o.envelope.Decrypt(blob)
		if err != nil {
			o.log.Warn().Err(err).Str("key", key).Msg("env var decryption failed, omitting")
			continue
		}
		out[key] = plain
	}
	return out
}

// mergeEnv merges universal and per-user env maps; a per-user key
// overrides a universal one of the same name (spec.md §4.7).
func mergeEnv(universal, perUser map[string]string) map[string]string {
	merged := make(map[string]string, len(universal)+len(perUser))
	for k, v := range universal {
		merged[k] = v
	}
	for k, v := range perUser {
		merged[k] = v
	}
	return merged
}

func missingRequiredSecrets(app *model.App, env map[string]string) []string {
	var missing []string
	for _, key := range app.RequiredPerUserKeys() {
		if _, ok := env[key]; !ok {
			missing = append(missing, key)
		}
	}
	return missing
}
