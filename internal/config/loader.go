package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Load loads configuration from an optional JSON file and then applies
// environment variable overrides. Validation is deferred to the caller
// (Validate) so CLI flags can still override values first.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath != "" {
		fileCfg, err := loadFromFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
		cfg = fileCfg
	}

	applyEnvironmentOverrides(cfg)

	return cfg, nil
}

func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigFileNotFound
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfigFormat, err)
	}

	return cfg, nil
}

func applyEnvironmentOverrides(cfg *Config) {
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv("BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("SANDBOX_ENGINE_URL"); v != "" {
		cfg.SandboxEngineURL = v
	}
	if v := os.Getenv("ENCRYPTION_MASTER_KEY"); v != "" {
		cfg.EncryptionMasterKey = v
	}
	if v := os.Getenv("OBJECT_STORE_ENDPOINT"); v != "" {
		cfg.ObjectStore.Endpoint = v
	}
	if v := os.Getenv("OBJECT_STORE_BUCKET"); v != "" {
		cfg.ObjectStore.Bucket = v
	}
	if v := os.Getenv("OBJECT_STORE_ACCESS_KEY"); v != "" {
		cfg.ObjectStore.AccessKey = v
	}
	if v := os.Getenv("OBJECT_STORE_SECRET_KEY"); v != "" {
		cfg.ObjectStore.SecretKey = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("DEV_MODE"); v == "true" || v == "1" {
		cfg.DevMode = true
	}
	if v := os.Getenv("DEBUG"); v == "true" || v == "1" {
		cfg.Debug = true
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}

// Validate checks that the configuration is safe to run with. It never
// substitutes an insecure default for the encryption key — a missing key
// is a startup error.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return ErrMissingDatabaseURL
	}
	if c.EncryptionMasterKey == "" {
		return ErrMissingEncryptionKey
	}
	if c.ObjectStore.Endpoint == "" || c.ObjectStore.Bucket == "" {
		return ErrMissingObjectStore
	}
	if c.SandboxEngineURL == "" {
		return ErrMissingSandboxEngineURL
	}
	return nil
}
