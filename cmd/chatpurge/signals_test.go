package main

import (
	"context"
	"syscall"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/p-blackswan/chatpurge/internal/purge"
)

func TestHandleSignal_StopThenAbort(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	states := purge.NewStateMachine()

	handleSignal(syscall.SIGINT, cancel, states, zerolog.Nop())
	assert.Equal(t, purge.Stopped, states.State())
	assert.NoError(t, ctx.Err(), "first signal only stops")

	handleSignal(syscall.SIGTERM, cancel, states, zerolog.Nop())
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}

func TestHandleSignal_Toggle(t *testing.T) {
	if len(toggleSignals) == 0 {
		t.Skip("no toggle signal on this platform")
	}
	_, cancel := context.WithCancel(context.Background())
	defer cancel()
	states := purge.NewStateMachine()

	handleSignal(toggleSignals[0], cancel, states, zerolog.Nop())
	assert.Equal(t, purge.Paused, states.State())
	handleSignal(toggleSignals[0], cancel, states, zerolog.Nop())
	assert.Equal(t, purge.Running, states.State())
}

func TestIsToggleSignal(t *testing.T) {
	assert.False(t, isToggleSignal(syscall.SIGINT))
	for _, s := range toggleSignals {
		assert.True(t, isToggleSignal(s))
	}
}
