// Package health aggregates readiness checks for the control API.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/chatpurge/internal/purge"
)

// Status represents the health status of a dependency.
type Status string

const (
	StatusOK       Status = "ok"
	StatusDegraded Status = "degraded"
	StatusDown     Status = "down"
)

// CheckFunc is a function that checks a dependency's health.
type CheckFunc func(ctx context.Context) Status

// Report is the outcome of one readiness evaluation.
type Report struct {
	Ready  bool              `json:"ready"`
	Checks map[string]Status `json:"checks"`
}

// Checker runs named checks concurrently, each bounded by a timeout.
type Checker struct {
	mu      sync.RWMutex
	checks  map[string]CheckFunc
	timeout time.Duration
	logger  zerolog.Logger
}

// NewChecker creates a new health checker.
func NewChecker(logger zerolog.Logger) *Checker {
	return &Checker{
		checks:  make(map[string]CheckFunc),
		timeout: 5 * time.Second,
		logger:  logger.With().Str("component", "health").Logger(),
	}
}

// Register adds a named health check.
func (c *Checker) Register(name string, fn CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = fn
}

// Check runs every check. Degraded checks do not make the report unready.
func (c *Checker) Check(ctx context.Context) Report {
	c.mu.RLock()
	checks := make(map[string]CheckFunc, len(c.checks))
	for k, v := range c.checks {
		checks[k] = v
	}
	c.mu.RUnlock()

	report := Report{Ready: true, Checks: make(map[string]Status, len(checks))}
	var wg sync.WaitGroup
	var mu sync.Mutex

	for name, fn := range checks {
		wg.Add(1)
		go func(n string, f CheckFunc) {
			defer wg.Done()
			checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()
			s := f(checkCtx)

			mu.Lock()
			defer mu.Unlock()
			report.Checks[n] = s
			if s == StatusDown {
				report.Ready = false
				c.logger.Warn().Str("check", n).Msg("health check down")
			}
		}(name, fn)
	}

	wg.Wait()
	return report
}

// PingCheck adapts a ping function (such as a database ping) into a check.
func PingCheck(ping func(ctx context.Context) error) CheckFunc {
	return func(ctx context.Context) Status {
		if err := ping(ctx); err != nil {
			return StatusDown
		}
		return StatusOK
	}
}

// RunStateCheck reports a paused run as degraded and a stopped run as down.
func RunStateCheck(state func() purge.RunState) CheckFunc {
	return func(context.Context) Status {
		switch state() {
		case purge.Running:
			return StatusOK
		case purge.Paused:
			return StatusDegraded
		}
		return StatusDown
	}
}
