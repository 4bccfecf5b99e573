package purge

import (
	"sync"
	"time"

	"github.com/p-blackswan/chatpurge/internal/ratecontrol"
)

// Snapshot is a read-only view of a run for display and reporting.
type Snapshot struct {
	TotalDeleted         int           `json:"total_deleted"`
	TotalProcessed       int           `json:"total_processed"`
	CurrentDelay         time.Duration `json:"current_delay"`
	ConsecutiveSuccesses int           `json:"consecutive_successes"`
	ConsecutiveFailures  int           `json:"consecutive_failures"`
	Boundary             string        `json:"boundary,omitempty"`
	State                RunState      `json:"state"`
	// Reason is set once the run has ended.
	Reason string `json:"reason,omitempty"`
	// Err is the fatal error text, if the run ended on one.
	Err string `json:"error,omitempty"`
}

// Session is the mutable record of one run. The worker goroutine is its only
// writer; the mutex lets control goroutines take consistent snapshots.
type Session struct {
	mu             sync.Mutex
	rate           *ratecontrol.Controller
	totalDeleted   int
	totalProcessed int
	boundary       string
	reason         string
	err            error
}

// NewSession creates a session with the delay at its initial value and no boundary.
func NewSession(rate ratecontrol.Config) *Session {
	return &Session{rate: ratecontrol.New(rate)}
}

// Adjust feeds a call outcome to the rate controller.
func (s *Session) Adjust(success bool) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rate.Adjust(success)
}

// Delay returns the current adaptive delay.
func (s *Session) Delay() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rate.Delay()
}

func (s *Session) recordPage(size int, boundary string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalProcessed += size
	s.boundary = boundary
}

func (s *Session) recordDeleted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalDeleted++
}

func (s *Session) finish(reason string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reason != "" {
		return
	}
	s.reason = reason
	s.err = err
}

// Snapshot copies the session together with the given run state.
func (s *Session) Snapshot(state RunState) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		TotalDeleted:         s.totalDeleted,
		TotalProcessed:       s.totalProcessed,
		CurrentDelay:         s.rate.Delay(),
		ConsecutiveSuccesses: s.rate.ConsecutiveSuccesses(),
		ConsecutiveFailures:  s.rate.ConsecutiveFailures(),
		Boundary:             s.boundary,
		State:                state,
		Reason:               s.reason,
	}
	if s.err != nil {
		snap.Err = s.err.Error()
	}
	return snap
}
