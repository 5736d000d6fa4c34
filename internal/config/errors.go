package config

import "errors"

var (
	// ErrMissingDatabaseURL indicates the relational store is unconfigured.
	ErrMissingDatabaseURL = errors.New("databaseUrl is required")

	// ErrMissingEncryptionKey indicates no master key was supplied for the
	// crypto envelope. The host MUST NOT substitute an insecure default.
	ErrMissingEncryptionKey = errors.New("encryption master key is required")

	// ErrMissingObjectStore indicates the object store endpoint/bucket is
	// unconfigured.
	ErrMissingObjectStore = errors.New("objectStore.endpoint and objectStore.bucket are required")

	// ErrMissingSandboxEngineURL indicates the sandbox execution service
	// address is unconfigured.
	ErrMissingSandboxEngineURL = errors.New("sandboxEngineUrl is required")

	// ErrConfigFileNotFound indicates that the config file was not found.
	ErrConfigFileNotFound = errors.New("configuration file not found")

	// ErrInvalidConfigFormat indicates that the config file has invalid JSON.
	ErrInvalidConfigFormat = errors.New("invalid configuration file format")
)
