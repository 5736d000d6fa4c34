package model

// Visibility controls who may call an app's functions absent an explicit
// permission row.
type Visibility string

const (
	VisibilityPublic   Visibility = "public"
	VisibilityUnlisted Visibility = "unlisted"
	VisibilityPrivate  Visibility = "private"
)

// SecretScope describes whether an env-var key is shared by all callers
// or scoped to a single (user, app) pair.
type SecretScope string

const (
	ScopeUniversal SecretScope = "universal"
	ScopePerUser   SecretScope = "per_user"
)

// EnvSchemaEntry documents one declared environment key.
type EnvSchemaEntry struct {
	Scope       SecretScope
	Required    bool
	Description string
}

// ToolDescriptor is one function the app advertises, parsed from either
// the structured manifest or the legacy skills parser.
type ToolDescriptor struct {
	Name         string
	Title        string
	Description  string
	InputSchema  map[string]any
	OutputSchema map[string]any
}

// App is an immutable snapshot, frozen for the life of one request. It is
// never mutated after App Loader returns it.
type App struct {
	ID                string
	Slug              string
	OwnerID           string
	Visibility        Visibility
	StorageKey        string
	Manifest          []ToolDescriptor
	SkillsParsed      []ToolDescriptor
	SkillsMD          string
	CurrentVersion    string
	EnvVars           map[string]string // key -> encrypted blob
	EnvSchema         map[string]EnvSchemaEntry
	RateLimitConfig   RateLimitConfig
	PricingConfig     map[string]int64 // function name -> cents; "default" fallback
	HostingSuspended  bool
	UpstreamDBConfigID string
}

// RateLimitConfig is the app-level override of the per-app rate limits
// (C5(c)/(d)). Zero values mean "no app-specific limit configured".
type RateLimitConfig struct {
	CallsPerMinute int
	CallsPerDay    int
}

// Tools returns the function list used for tools/list: the manifest when
// present, else the legacy parsed skills.
func (a *App) Tools() []ToolDescriptor {
	if len(a.Manifest) > 0 {
		return a.Manifest
	}
	return a.SkillsParsed
}

// PriceForFunction resolves pricing_config[name] falling back to
// pricing_config["default"], then 0.
func (a *App) PriceForFunction(name string) int64 {
	if p, ok := a.PricingConfig[name]; ok {
		return p
	}
	if p, ok := a.PricingConfig["default"]; ok {
		return p
	}
	return 0
}

// RequiredPerUserKeys returns the env_schema keys that are per-user scoped
// and required.
func (a *App) RequiredPerUserKeys() []string {
	var keys []string
	for k, entry := range a.EnvSchema {
		if entry.Scope == ScopePerUser && entry.Required {
			keys = append(keys, k)
		}
	}
	return keys
}

// HasPerUserSecrets reports whether the env_schema declares any per_user
// scoped keys at all (required or not) — gates the Setup Orchestrator's
// per-user secrets fetch.
func (a *App) HasPerUserSecrets() bool {
	for _, entry := range a.EnvSchema {
		if entry.Scope == ScopePerUser {
			return true
		}
	}
	return false
}
