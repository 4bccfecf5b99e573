// Package config loads chatpurge settings from an optional YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	perrors "github.com/p-blackswan/chatpurge/internal/errors"
	"github.com/p-blackswan/chatpurge/internal/purge"
	"github.com/p-blackswan/chatpurge/internal/ratecontrol"
)

// EnvPrefix prefixes every environment variable (CHATPURGE_TOKEN, ...). The
// unprefixed name is accepted as a fallback.
const EnvPrefix = "CHATPURGE"

// Supported chat backends.
const (
	BackendDiscord = "discord"
	BackendSlack   = "slack"
)

// Config holds all run configuration. Precedence: defaults < YAML file < environment.
type Config struct {
	// General
	Environment string `envconfig:"ENVIRONMENT" yaml:"environment"`
	LogLevel    string `envconfig:"LOG_LEVEL" yaml:"log_level"`

	// Target
	Backend   string `envconfig:"BACKEND" yaml:"backend"`
	Token     string `envconfig:"TOKEN" yaml:"token"`
	ChannelID string `envconfig:"CHANNEL_ID" yaml:"channel_id"`

	// API endpoints (overridable for testing against a stub server)
	DiscordAPIURL string `envconfig:"DISCORD_API_URL" yaml:"discord_api_url"`
	SlackAPIURL   string `envconfig:"SLACK_API_URL" yaml:"slack_api_url"`

	// Engine tuning
	RetryAttempts    int           `envconfig:"RETRY_ATTEMPTS" yaml:"retry_attempts"`
	InitialDelay     time.Duration `envconfig:"INITIAL_DELAY" yaml:"initial_delay"`
	MinDelay         time.Duration `envconfig:"MIN_DELAY" yaml:"min_delay"`
	MaxDelay         time.Duration `envconfig:"MAX_DELAY" yaml:"max_delay"`
	BatchSize        int           `envconfig:"BATCH_SIZE" yaml:"batch_size"`
	DelayMultiplier  float64       `envconfig:"DELAY_MULTIPLIER" yaml:"delay_multiplier"`
	DelayDecrease    float64       `envconfig:"DELAY_DECREASE" yaml:"delay_decrease"`
	BatchDelayFactor float64       `envconfig:"BATCH_DELAY_FACTOR" yaml:"batch_delay_factor"`

	// Run journal (SQLite). Empty disables it. Finished runs older than
	// JournalRetention are pruned at startup; 0 keeps everything.
	JournalPath      string        `envconfig:"JOURNAL_PATH" yaml:"journal_path"`
	JournalRetention time.Duration `envconfig:"JOURNAL_RETENTION" yaml:"journal_retention"`

	// Control API. Empty address disables it.
	ControlAddr     string `envconfig:"CONTROL_ADDR" yaml:"control_addr"`
	ControlAuthMode string `envconfig:"CONTROL_AUTH_MODE" yaml:"control_auth_mode"` // "api-key" or "none"
	ControlAPIKey   string `envconfig:"CONTROL_API_KEY" yaml:"control_api_key"`
	// Requests per minute per client; 0 disables limiting.
	ControlRateLimit int `envconfig:"CONTROL_RATE_LIMIT" yaml:"control_rate_limit"`

	// Slack run-summary notification. Both must be set to enable it.
	NotifySlackToken   string `envconfig:"NOTIFY_SLACK_TOKEN" yaml:"notify_slack_token"`
	NotifySlackChannel string `envconfig:"NOTIFY_SLACK_CHANNEL" yaml:"notify_slack_channel"`
}

// Default returns the built-in defaults.
func Default() Config {
	engine := purge.DefaultConfig()
	return Config{
		Environment:      "production",
		LogLevel:         "info",
		Backend:          BackendDiscord,
		DiscordAPIURL:    "https://discord.com/api/v10",
		RetryAttempts:    engine.RetryAttempts,
		InitialDelay:     engine.Rate.InitialDelay,
		MinDelay:         engine.Rate.MinDelay,
		MaxDelay:         engine.Rate.MaxDelay,
		BatchSize:        engine.BatchSize,
		DelayMultiplier:  engine.Rate.Multiplier,
		DelayDecrease:    engine.Rate.Decrease,
		BatchDelayFactor: engine.BatchDelayFactor,
		JournalRetention: 30 * 24 * time.Hour,
		ControlAuthMode:  "api-key",
		ControlRateLimit: 60,
	}
}

// Load reads the YAML file at path (if non-empty) over the defaults, then applies
// environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	cfg.Backend = strings.ToLower(strings.TrimSpace(cfg.Backend))
	return &cfg, nil
}

// Validate checks that a run can start with this configuration.
func (c *Config) Validate() error {
	var errs []error
	if c.Token == "" {
		errs = append(errs, errors.New("token is required"))
	}
	if c.ChannelID == "" {
		errs = append(errs, errors.New("channel id is required"))
	}
	switch c.Backend {
	case BackendDiscord, BackendSlack:
	default:
		errs = append(errs, fmt.Errorf("unknown backend %q (expected %s or %s)", c.Backend, BackendDiscord, BackendSlack))
	}
	if c.InitialDelay <= 0 {
		errs = append(errs, fmt.Errorf("initial delay must be positive, got %s", c.InitialDelay))
	}
	if err := c.Engine().Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.ControlAddr != "" && c.ControlAuthMode != "none" && c.ControlAPIKey == "" {
		errs = append(errs, errors.New("control api key is required unless control auth mode is none"))
	}
	if c.ControlRateLimit < 0 {
		errs = append(errs, fmt.Errorf("control rate limit must not be negative, got %d", c.ControlRateLimit))
	}
	if c.JournalRetention < 0 {
		errs = append(errs, fmt.Errorf("journal retention must not be negative, got %s", c.JournalRetention))
	}
	if (c.NotifySlackToken == "") != (c.NotifySlackChannel == "") {
		errs = append(errs, errors.New("notify slack token and channel must be set together"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", perrors.ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// Engine returns the engine parameters.
func (c *Config) Engine() purge.Config {
	return purge.Config{
		RetryAttempts: c.RetryAttempts,
		BatchSize:     c.BatchSize,
		Rate: ratecontrol.Config{
			InitialDelay: c.InitialDelay,
			MinDelay:     c.MinDelay,
			MaxDelay:     c.MaxDelay,
			Multiplier:   c.DelayMultiplier,
			Decrease:     c.DelayDecrease,
		},
		BatchDelayFactor: c.BatchDelayFactor,
	}
}

// NotifyEnabled reports whether run summaries should be posted to Slack.
func (c *Config) NotifyEnabled() bool {
	return c.NotifySlackToken != "" && c.NotifySlackChannel != ""
}

// MaskedToken returns the token with everything but its edges hidden, for logs.
func (c *Config) MaskedToken() string {
	return maskSecret(c.Token)
}

func maskSecret(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) < 8 {
		return "***"
	}
	return secret[:4] + strings.Repeat("*", len(secret)-8) + secret[len(secret)-4:]
}
