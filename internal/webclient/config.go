package webclient

import "time"

type Config struct {
	// Timeout bounds a whole request including the body read. Zero means 30s.
	Timeout time.Duration

	UserAgent string

	// MaxBodySize caps how much of a response body is read. Zero means 5MB.
	MaxBodySize int64

	// Tracing wraps the transport with OpenTelemetry instrumentation.
	Tracing bool
}

const (
	defaultTimeout     = 30 * time.Second
	defaultMaxBodySize = 5 * 1024 * 1024
	DefaultUserAgent   = "scanzie/1.0 (+https://scanzie.app)"
)

func DefaultConfig() Config {
	return Config{
		Timeout:     defaultTimeout,
		UserAgent:   DefaultUserAgent,
		MaxBodySize: defaultMaxBodySize,
		Tracing:     true,
	}
}
