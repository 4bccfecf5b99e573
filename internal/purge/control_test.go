package purge

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateMachine_Transitions(t *testing.T) {
	m := NewStateMachine()
	assert.Equal(t, Running, m.State())

	assert.False(t, m.Resume())
	assert.True(t, m.Pause())
	assert.Equal(t, Paused, m.State())
	assert.False(t, m.Pause())
	assert.True(t, m.Resume())

	assert.Equal(t, Paused, m.Toggle())
	assert.Equal(t, Running, m.Toggle())

	assert.True(t, m.Stop())
	assert.False(t, m.Stop())
	assert.Equal(t, Stopped, m.State())
}

func TestStateMachine_StoppedIsTerminal(t *testing.T) {
	m := NewStateMachine()
	m.Pause()
	m.Stop()

	assert.False(t, m.Resume())
	assert.False(t, m.Pause())
	assert.Equal(t, Stopped, m.Toggle())

	select {
	case <-m.Done():
	default:
		t.Fatal("Done should be closed after Stop")
	}
}

func TestStateMachine_OnChange(t *testing.T) {
	m := NewStateMachine()
	var seen []RunState
	m.OnChange(func(s RunState) { seen = append(seen, s) })

	m.Pause()
	m.Pause()
	m.Resume()
	m.Stop()

	assert.Equal(t, []RunState{Paused, Running, Stopped}, seen)
}

func TestStateMachine_WaitBlocksWhilePaused(t *testing.T) {
	m := NewStateMachine()
	m.Pause()

	got := make(chan RunState, 1)
	go func() {
		s, _ := m.Wait(context.Background())
		got <- s
	}()

	select {
	case <-got:
		t.Fatal("Wait returned while paused")
	case <-time.After(30 * time.Millisecond):
	}

	m.Resume()
	select {
	case s := <-got:
		assert.Equal(t, Running, s)
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after Resume")
	}
}

func TestStateMachine_WaitReturnsOnStop(t *testing.T) {
	m := NewStateMachine()
	m.Pause()
	go func() {
		time.Sleep(10 * time.Millisecond)
		m.Stop()
	}()

	s, err := m.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stopped, s)
}

func TestStateMachine_WaitHonoursContext(t *testing.T) {
	m := NewStateMachine()
	m.Pause()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunState_MarshalText(t *testing.T) {
	b, err := Paused.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "paused", string(b))
}

func TestRunState_UnmarshalText(t *testing.T) {
	for _, s := range []RunState{Running, Paused, Stopped} {
		b, err := s.MarshalText()
		require.NoError(t, err)

		var got RunState
		require.NoError(t, got.UnmarshalText(b))
		assert.Equal(t, s, got)
	}

	var bad RunState
	assert.Error(t, bad.UnmarshalText([]byte("exploded")))
}
