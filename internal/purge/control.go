package purge

import (
	"context"
	"fmt"
	"sync"
)

// RunState is the execution state of a run.
type RunState int

const (
	Running RunState = iota
	Paused
	Stopped
)

func (s RunState) String() string {
	switch s {
	case Running:
		return "running"
	case Paused:
		return "paused"
	case Stopped:
		return "stopped"
	}
	return "unknown"
}

// MarshalText renders the state by name in JSON snapshots.
func (s RunState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name.
func (s *RunState) UnmarshalText(text []byte) error {
	switch string(text) {
	case "running":
		*s = Running
	case "paused":
		*s = Paused
	case "stopped":
		*s = Stopped
	default:
		return fmt.Errorf("unknown run state %q", text)
	}
	return nil
}

// StateMachine gates the engine's progress. Running and Paused toggle freely;
// Stopped is terminal. Transitions may come from any goroutine.
type StateMachine struct {
	mu       sync.Mutex
	state    RunState
	changed  chan struct{} // closed and replaced on every transition
	stopped  chan struct{} // closed once, on Stop
	onChange []func(RunState)
}

// NewStateMachine returns a machine in the Running state.
func NewStateMachine() *StateMachine {
	return &StateMachine{
		state:   Running,
		changed: make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// OnChange registers fn to be called after every transition, outside the lock.
func (m *StateMachine) OnChange(fn func(RunState)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = append(m.onChange, fn)
}

// State returns the current state.
func (m *StateMachine) State() RunState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Done is closed once the machine reaches Stopped.
func (m *StateMachine) Done() <-chan struct{} {
	return m.stopped
}

// Pause moves Running to Paused. It reports whether a transition happened.
func (m *StateMachine) Pause() bool {
	return m.transition(func(s RunState) (RunState, bool) {
		return Paused, s == Running
	})
}

// Resume moves Paused to Running. It reports whether a transition happened.
func (m *StateMachine) Resume() bool {
	return m.transition(func(s RunState) (RunState, bool) {
		return Running, s == Paused
	})
}

// Toggle flips between Running and Paused and returns the resulting state.
// It has no effect once Stopped.
func (m *StateMachine) Toggle() RunState {
	m.transition(func(s RunState) (RunState, bool) {
		switch s {
		case Running:
			return Paused, true
		case Paused:
			return Running, true
		}
		return s, false
	})
	return m.State()
}

// Stop moves the machine to Stopped. It reports whether a transition happened.
func (m *StateMachine) Stop() bool {
	return m.transition(func(s RunState) (RunState, bool) {
		return Stopped, s != Stopped
	})
}

// Wait blocks while the machine is Paused and returns the first non-paused
// state it observes. It returns early with ctx.Err() if ctx is cancelled.
func (m *StateMachine) Wait(ctx context.Context) (RunState, error) {
	for {
		m.mu.Lock()
		state, changed := m.state, m.changed
		m.mu.Unlock()

		if state != Paused {
			return state, nil
		}

		select {
		case <-changed:
		case <-ctx.Done():
			return state, ctx.Err()
		}
	}
}

func (m *StateMachine) transition(next func(RunState) (RunState, bool)) bool {
	m.mu.Lock()
	to, ok := next(m.state)
	if !ok {
		m.mu.Unlock()
		return false
	}
	m.state = to
	close(m.changed)
	m.changed = make(chan struct{})
	if to == Stopped {
		close(m.stopped)
	}
	listeners := append([]func(RunState){}, m.onChange...)
	m.mu.Unlock()

	for _, fn := range listeners {
		fn(to)
	}
	return true
}
