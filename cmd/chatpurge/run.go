package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/p-blackswan/chatpurge/internal/config"
	"github.com/p-blackswan/chatpurge/internal/control"
	"github.com/p-blackswan/chatpurge/internal/health"
	"github.com/p-blackswan/chatpurge/internal/journal"
	"github.com/p-blackswan/chatpurge/internal/metrics"
	"github.com/p-blackswan/chatpurge/internal/purge"
	"github.com/p-blackswan/chatpurge/internal/slack"
)

type runOptions struct {
	channel     string
	backend     string
	journal     string
	controlAddr string
	debug       bool
}

var runFlags runOptions

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Delete your messages from a channel",
	Long: `Resolve the token's identity, then walk the channel from the newest message
backward, deleting every message you authored. The token is read from
CHATPURGE_TOKEN (or the config file), never from a flag.`,
	RunE: runHandler,
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runFlags.channel, "channel", "", "channel id to purge")
	f.StringVar(&runFlags.backend, "backend", "", "chat service: discord or slack")
	f.StringVar(&runFlags.journal, "journal", "", "path to the SQLite run journal")
	f.StringVar(&runFlags.controlAddr, "control-addr", "", "listen address for the control API")
	f.BoolVarP(&runFlags.debug, "debug", "d", false, "enable debug logging")
}

// applyRunFlags overrides loaded config values with explicitly set flags.
func applyRunFlags(cfg *config.Config) {
	if runFlags.channel != "" {
		cfg.ChannelID = runFlags.channel
	}
	if runFlags.backend != "" {
		cfg.Backend = runFlags.backend
	}
	if runFlags.journal != "" {
		cfg.JournalPath = runFlags.journal
	}
	if runFlags.controlAddr != "" {
		cfg.ControlAddr = runFlags.controlAddr
	}
	if runFlags.debug {
		cfg.LogLevel = "debug"
	}
}

func runHandler(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	applyRunFlags(cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := newLogger(cfg, os.Stdout)
	logger.Info().
		Str("version", Version).
		Str("backend", cfg.Backend).
		Str("channel", cfg.ChannelID).
		Str("token", cfg.MaskedToken()).
		Msg("starting chatpurge")

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	_, err = execute(ctx, cancel, cfg, logger)
	return err
}

// execute runs one purge with every configured side component and returns the
// final snapshot. A stop requested by the user is not an error.
func execute(ctx context.Context, cancel context.CancelFunc, cfg *config.Config, logger zerolog.Logger) (purge.Snapshot, error) {
	api, older, err := newBackend(cfg, logger)
	if err != nil {
		return purge.Snapshot{}, err
	}

	ownerID, err := api.Preflight(ctx, cfg.ChannelID)
	if err != nil {
		return purge.Snapshot{}, fmt.Errorf("preflight: %w", err)
	}
	logger.Info().Str("owner", ownerID).Msg("preflight passed")

	m := metrics.New()
	states := purge.NewStateMachine()
	opts := []purge.Option{
		purge.WithStateMachine(states),
		purge.WithOrdering(older),
		purge.WithObserver(m),
		purge.WithSink(m),
		purge.WithSink(newProgressLogger(logger)),
	}

	checker := health.NewChecker(logger)
	checker.Register("run", health.RunStateCheck(states.State))

	var recorder *journal.Recorder
	if cfg.JournalPath != "" {
		j, err := journal.Open(cfg.JournalPath, logger)
		if err != nil {
			return purge.Snapshot{}, err
		}
		defer j.Close()

		if cfg.JournalRetention > 0 {
			if _, err := j.Prune(ctx, cfg.JournalRetention); err != nil {
				logger.Warn().Err(err).Msg("journal prune failed (non-fatal)")
			}
		}

		recorder, err = j.StartRun(ctx, cfg.Backend, cfg.ChannelID, ownerID)
		if err != nil {
			return purge.Snapshot{}, err
		}
		opts = append(opts, purge.WithObserver(recorder), purge.WithSink(recorder))
		checker.Register("journal", health.PingCheck(j.Ping))
	}

	engine, err := purge.NewEngine(cfg.Engine(), api, cfg.ChannelID, ownerID, logger, opts...)
	if err != nil {
		return purge.Snapshot{}, err
	}

	stopSignals := watchSignals(ctx, cancel, states, logger)
	defer stopSignals()

	var wg sync.WaitGroup
	if cfg.ControlAddr != "" {
		info := control.RunInfo{Backend: cfg.Backend, ChannelID: cfg.ChannelID}
		if recorder != nil {
			info.RunID = recorder.RunID()
		}
		handlers := control.NewHandlers(states, engine.Snapshot, info, checker, logger)
		srv := control.NewServer(control.ServerConfig{
			ListenAddr: cfg.ControlAddr,
			AuthConfig: control.AuthConfig{Mode: cfg.ControlAuthMode, APIKey: cfg.ControlAPIKey},
			RateLimit:  cfg.ControlRateLimit,
		}, handlers, m.Handler(), logger)

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Start(); err != nil {
				logger.Error().Err(err).Msg("control API server error")
			}
		}()
		defer func() {
			if err := srv.Shutdown(); err != nil {
				logger.Error().Err(err).Msg("control API shutdown error")
			}
			wg.Wait()
		}()
	}

	started := time.Now()
	final, runErr := engine.Run(ctx)
	finished := time.Now()

	// Side effects below must outlive a cancelled run context.
	bg, bgCancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer bgCancel()

	summary := slack.RunSummary{
		Backend:  cfg.Backend,
		Channel:  cfg.ChannelID,
		Started:  started,
		Finished: finished,
		Final:    final,
	}
	if recorder != nil {
		summary.RunID = recorder.RunID()
		if err := recorder.Finish(bg, final); err != nil {
			logger.Error().Err(err).Msg("failed to finish journal run")
		}
	}
	if cfg.NotifyEnabled() {
		n := slack.NewNotifier(cfg.NotifySlackToken, cfg.NotifySlackChannel, cfg.SlackAPIURL, logger)
		if err := n.NotifyFinished(bg, summary); err != nil {
			logger.Warn().Err(err).Msg("run summary notification failed (non-fatal)")
		}
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return final, fmt.Errorf("%s: %w", final.Reason, runErr)
	}
	return final, runErr
}
