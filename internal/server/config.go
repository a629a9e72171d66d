package server

import (
	"time"

	"github.com/scanzie/smeal/internal/logging"
)

type Config struct {
	// ListenAddr is the HTTP listen address for the API server.
	ListenAddr string

	// AllowedOrigins may call the API from a browser. "*" allows any
	// origin, without credentials.
	AllowedOrigins []string

	// ShutdownTimeout bounds graceful shutdown in Run. Zero means 15s.
	ShutdownTimeout time.Duration

	Logger logging.Logger
}
