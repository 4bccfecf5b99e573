package main

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/p-blackswan/chatpurge/internal/config"
	"github.com/p-blackswan/chatpurge/internal/purge"
)

// newLogger builds the process logger: JSON on stdout, console output in
// development.
func newLogger(cfg *config.Config, out io.Writer) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(out).With().Timestamp().Logger()

	if cfg.Environment == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err == nil && level != zerolog.NoLevel {
		logger = logger.Level(level)
	}

	log.Logger = logger
	return logger
}

// newProgressLogger returns a sink that logs state changes at info and every
// other snapshot at debug. The engine serializes calls.
func newProgressLogger(logger zerolog.Logger) purge.SinkFunc {
	logger = logger.With().Str("component", "progress").Logger()
	var (
		lastState purge.RunState
		started   bool
	)
	return func(snap purge.Snapshot) {
		ev := logger.Debug()
		if !started || snap.State != lastState {
			ev = logger.Info()
		}
		started = true
		lastState = snap.State

		ev.Str("state", snap.State.String()).
			Int("deleted", snap.TotalDeleted).
			Int("processed", snap.TotalProcessed).
			Dur("delay", snap.CurrentDelay).
			Msg("progress")
	}
}
