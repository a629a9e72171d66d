package demobackend

import "time"

// Config holds configuration for the demo analysis backend.
type Config struct {
	// ListenAddr is the address the backend listens on.
	ListenAddr string

	// StepDelay is the pause before each category analysis starts. It makes
	// progress observable; zero runs the three categories back to back.
	StepDelay time.Duration

	// UserAgent is sent when fetching pages, robots.txt and sitemaps, and
	// is the group robots.txt rules are matched against.
	UserAgent string

	// SessionRetention is how long finished sessions stay queryable.
	SessionRetention time.Duration

	// ServeSampleSite mounts a small static site at / so analyses can run
	// without network access.
	ServeSampleSite bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ListenAddr:       ":8080",
		StepDelay:        1500 * time.Millisecond,
		UserAgent:        "ScanzieBot/1.0",
		SessionRetention: 30 * time.Minute,
		ServeSampleSite:  true,
	}
}
