package config

import (
	"time"
)

// Config holds rate limiting configuration.
type Config struct {
	// Per-client request window
	RequestsPerWindow int
	Window            time.Duration

	// Login lockout
	LoginMaxAttempts int
	LoginLockout     time.Duration

	// How often the in-memory backend evicts idle records
	CleanupInterval time.Duration
}

// DefaultConfig returns the production defaults: 60 requests per minute and
// a 15 minute lockout after 5 failed logins.
func DefaultConfig() *Config {
	return &Config{
		RequestsPerWindow: 60,
		Window:            time.Minute,
		LoginMaxAttempts:  5,
		LoginLockout:      15 * time.Minute,
		CleanupInterval:   5 * time.Minute,
	}
}

// IdleTTL is how long a record must be untouched before eviction cannot
// change any future decision.
func (c *Config) IdleTTL() time.Duration {
	if c.LoginLockout > c.Window {
		return c.LoginLockout
	}
	return c.Window
}

// WithDefaults fills zero fields from DefaultConfig.
func (c Config) WithDefaults() *Config {
	d := DefaultConfig()
	if c.RequestsPerWindow <= 0 {
		c.RequestsPerWindow = d.RequestsPerWindow
	}
	if c.Window <= 0 {
		c.Window = d.Window
	}
	if c.LoginMaxAttempts <= 0 {
		c.LoginMaxAttempts = d.LoginMaxAttempts
	}
	if c.LoginLockout <= 0 {
		c.LoginLockout = d.LoginLockout
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = d.CleanupInterval
	}
	return &c
}
