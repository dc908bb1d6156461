package lobby

import (
	"fmt"
	"time"
)

// Config holds the per-session rules.
type Config struct {
	Kind            string        `json:"kind"`
	MinParticipants int           `json:"min_participants"`
	Capacity        int           `json:"capacity"`
	FormingWindow   time.Duration `json:"forming_window"`
	// Selections is the number of valid selection values, [0, Selections).
	Selections int   `json:"selections"`
	MinStake   int64 `json:"min_stake"`
	// MaxStake of zero means unbounded.
	MaxStake int64 `json:"max_stake"`
}

// Validate checks the config for internal consistency.
func (c Config) Validate() error {
	switch {
	case c.MinParticipants < 1:
		return fmt.Errorf("%w: min participants must be at least 1", ErrInvalidConfig)
	case c.Capacity < c.MinParticipants:
		return fmt.Errorf("%w: capacity %d below minimum %d", ErrInvalidConfig, c.Capacity, c.MinParticipants)
	case c.FormingWindow <= 0:
		return fmt.Errorf("%w: forming window must be positive", ErrInvalidConfig)
	case c.Selections < 1:
		return fmt.Errorf("%w: at least one selection is required", ErrInvalidConfig)
	case c.MinStake < 0:
		return fmt.Errorf("%w: negative min stake", ErrInvalidConfig)
	case c.MaxStake != 0 && c.MaxStake < c.MinStake:
		return fmt.Errorf("%w: max stake %d below min stake %d", ErrInvalidConfig, c.MaxStake, c.MinStake)
	}
	return nil
}

// SessionOption overrides game defaults for a single session.
type SessionOption func(*Config)

// WithFormingWindow sets how long the session accepts participants.
func WithFormingWindow(d time.Duration) SessionOption {
	return func(c *Config) { c.FormingWindow = d }
}

// WithMinParticipants sets the start threshold.
func WithMinParticipants(n int) SessionOption {
	return func(c *Config) { c.MinParticipants = n }
}

// WithCapacity sets the maximum number of participants.
func WithCapacity(n int) SessionOption {
	return func(c *Config) { c.Capacity = n }
}

// WithStakeBounds sets the allowed stake range. A zero max means unbounded.
func WithStakeBounds(min, max int64) SessionOption {
	return func(c *Config) {
		c.MinStake = min
		c.MaxStake = max
	}
}
