package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/chatpurge/internal/purge"
)

// watchSignals maps OS signals onto the run's state machine: the first
// SIGINT/SIGTERM requests a graceful stop, a second one cancels the context,
// and the toggle signal (SIGUSR1 where available) flips pause.
func watchSignals(ctx context.Context, cancel context.CancelFunc, states *purge.StateMachine, logger zerolog.Logger) func() {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, append([]os.Signal{syscall.SIGINT, syscall.SIGTERM}, toggleSignals...)...)

	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case sig := <-sigCh:
				handleSignal(sig, cancel, states, logger)
			}
		}
	}()

	return func() {
		signal.Stop(sigCh)
		close(done)
	}
}

func handleSignal(sig os.Signal, cancel context.CancelFunc, states *purge.StateMachine, logger zerolog.Logger) {
	if isToggleSignal(sig) {
		state := states.Toggle()
		logger.Info().Str("signal", sig.String()).Str("state", state.String()).Msg("pause toggled")
		return
	}
	if states.Stop() {
		logger.Info().Str("signal", sig.String()).Msg("stopping after the current call; signal again to abort")
		return
	}
	logger.Warn().Str("signal", sig.String()).Msg("aborting")
	cancel()
}

func isToggleSignal(sig os.Signal) bool {
	for _, s := range toggleSignals {
		if s == sig {
			return true
		}
	}
	return false
}
