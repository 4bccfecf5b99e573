package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/chatpurge/internal/config"
	"github.com/p-blackswan/chatpurge/internal/discord"
	"github.com/p-blackswan/chatpurge/internal/purge"
	"github.com/p-blackswan/chatpurge/internal/slack"
)

// backend is a chat service the engine can purge.
type backend interface {
	purge.ChannelAPI
	// Preflight validates the channel and returns the acting user's id.
	Preflight(ctx context.Context, channelID string) (string, error)
}

// newBackend builds the configured backend and its message ordering.
func newBackend(cfg *config.Config, logger zerolog.Logger) (backend, purge.OlderFunc, error) {
	switch cfg.Backend {
	case config.BackendDiscord:
		if err := discord.ValidateToken(cfg.Token); err != nil {
			return nil, nil, err
		}
		return discord.NewClient(cfg.DiscordAPIURL, cfg.Token, logger), discord.Older, nil
	case config.BackendSlack:
		return slack.NewHistory(cfg.Token, cfg.SlackAPIURL, logger), slack.Older, nil
	}
	return nil, nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}
