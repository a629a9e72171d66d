package app

import (
	"time"

	"github.com/scanzie/smeal/internal/poller"
)

// Config tunes the watch orchestrator.
type Config struct {
	// Poll is handed to every poller the orchestrator starts.
	Poll poller.Config

	// WatchRetention is how long finished watches stay queryable.
	WatchRetention time.Duration

	// EventBuffer sizes each watch's event channel. Events are dropped, not
	// queued, once it is full.
	EventBuffer int
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Poll:           poller.DefaultConfig(),
		WatchRetention: 10 * time.Minute,
		EventBuffer:    64,
	}
}
