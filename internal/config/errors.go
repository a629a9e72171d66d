package config

import "errors"

// Validation errors returned by Config.Validate.
var (
	ErrMissingBackendURL     = errors.New("backend url is required: set NEXT_PUBLIC_BACKEND_URL or backend_url")
	ErrInvalidPollInterval   = errors.New("invalid poll interval: must be positive")
	ErrInvalidRedirectDelay  = errors.New("invalid redirect delay: must be non-negative")
	ErrInvalidErrorLimit     = errors.New("invalid max consecutive errors: must be non-negative")
	ErrUnknownDatabaseDriver = errors.New("unknown database driver: use sqlite or postgres")
	ErrMissingDatabaseURL    = errors.New("database url is required")
)

// ErrConfigNotFound is returned when an explicitly named config file does
// not exist.
var ErrConfigNotFound = errors.New("configuration file not found")
