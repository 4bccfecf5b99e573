// Package ratecontrol owns the adaptive delay inserted before every chat API call.
package ratecontrol

import "time"

// Config bounds and tunes the adaptive delay.
type Config struct {
	InitialDelay time.Duration
	MinDelay     time.Duration
	MaxDelay     time.Duration
	// Multiplier grows the delay after a failure. Must be > 1.
	Multiplier float64
	// Decrease shrinks the delay after a success. Must be in (0, 1).
	Decrease float64
}

// DefaultConfig returns the defaults used by the CLI.
func DefaultConfig() Config {
	return Config{
		InitialDelay: time.Second,
		MinDelay:     100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   1.5,
		Decrease:     0.9,
	}
}

// Controller tracks the current delay and the success/failure streaks.
// It is not safe for concurrent use; the engine's single worker owns it.
type Controller struct {
	cfg                  Config
	current              time.Duration
	consecutiveSuccesses int
	consecutiveFailures  int
}

// New creates a Controller starting at cfg.InitialDelay, clamped to the bounds.
func New(cfg Config) *Controller {
	c := &Controller{cfg: cfg}
	c.current = c.clamp(cfg.InitialDelay)
	return c
}

// Adjust feeds one call outcome into the controller and returns the new delay.
func (c *Controller) Adjust(success bool) time.Duration {
	if success {
		c.consecutiveSuccesses++
		c.consecutiveFailures = 0
		c.current = c.clamp(scale(c.current, c.cfg.Decrease))
	} else {
		c.consecutiveFailures++
		c.consecutiveSuccesses = 0
		c.current = c.clamp(scale(c.current, c.cfg.Multiplier))
	}
	return c.current
}

// Delay returns the current delay.
func (c *Controller) Delay() time.Duration { return c.current }

// ConsecutiveSuccesses returns the current success streak.
func (c *Controller) ConsecutiveSuccesses() int { return c.consecutiveSuccesses }

// ConsecutiveFailures returns the current failure streak.
func (c *Controller) ConsecutiveFailures() int { return c.consecutiveFailures }

func (c *Controller) clamp(d time.Duration) time.Duration {
	if d < c.cfg.MinDelay {
		return c.cfg.MinDelay
	}
	if d > c.cfg.MaxDelay {
		return c.cfg.MaxDelay
	}
	return d
}

func scale(d time.Duration, factor float64) time.Duration {
	return time.Duration(float64(d) * factor)
}
