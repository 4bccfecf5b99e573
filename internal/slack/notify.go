package slack

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"

	"github.com/p-blackswan/chatpurge/internal/purge"
	"github.com/p-blackswan/chatpurge/internal/retry"
)

// PostAPI is the subset of the Slack client used for notifications.
type PostAPI interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

// RunSummary describes a finished purge run for notification.
type RunSummary struct {
	RunID    string
	Backend  string
	Channel  string
	Started  time.Time
	Finished time.Time
	Final    purge.Snapshot
}

// Notifier posts run summaries to a Slack channel.
type Notifier struct {
	api     PostAPI
	channel string
	retry   retry.Config
	logger  zerolog.Logger
}

// NewNotifier creates a notifier using a bot token.
func NewNotifier(token, channel, apiURL string, logger zerolog.Logger) *Notifier {
	var opts []slack.Option
	if apiURL != "" {
		opts = append(opts, slack.OptionAPIURL(strings.TrimSuffix(apiURL, "/")+"/"))
	}
	return NewNotifierWithAPI(slack.New(token, opts...), channel, logger)
}

// NewNotifierWithAPI wraps an existing client.
func NewNotifierWithAPI(api PostAPI, channel string, logger zerolog.Logger) *Notifier {
	return &Notifier{
		api:     api,
		channel: channel,
		retry:   retry.DefaultConfig(),
		logger:  logger.With().Str("component", "notifier").Logger(),
	}
}

// NotifyFinished posts the summary of a finished run, retrying rate limits
// and server errors.
func (n *Notifier) NotifyFinished(ctx context.Context, summary RunSummary) error {
	var ts string
	err := retry.Do(ctx, n.retry, func(ctx context.Context) error {
		var err error
		_, ts, err = n.api.PostMessageContext(ctx, n.channel,
			slack.MsgOptionText(SummaryText(summary), false),
			slack.MsgOptionBlocks(SummaryBlocks(summary)...),
		)
		return translateError(err)
	})
	if err != nil {
		return fmt.Errorf("posting run summary: %w", err)
	}
	n.logger.Debug().Str("channel", n.channel).Str("ts", ts).Msg("run summary posted")
	return nil
}

// SummaryText is the plain-text fallback for notification clients.
func SummaryText(s RunSummary) string {
	return fmt.Sprintf("Purge of %s %s: %s (%d deleted, %d processed)",
		s.Backend, s.Channel, s.Final.Reason, s.Final.TotalDeleted, s.Final.TotalProcessed)
}

// SummaryBlocks renders a run summary as Block Kit blocks.
func SummaryBlocks(s RunSummary) []slack.Block {
	icon := "✅"
	if s.Final.Err != "" {
		icon = "❌"
	} else if s.Final.Reason != purge.ReasonCompleted {
		icon = "⏹"
	}

	fields := []*slack.TextBlockObject{
		slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("*Backend:*\n%s", s.Backend), false, false),
		slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("*Channel:*\n%s", s.Channel), false, false),
		slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("*Deleted:*\n%d", s.Final.TotalDeleted), false, false),
		slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("*Processed:*\n%d", s.Final.TotalProcessed), false, false),
	}
	if !s.Started.IsZero() && !s.Finished.IsZero() {
		fields = append(fields, slack.NewTextBlockObject("mrkdwn",
			fmt.Sprintf("*Duration:*\n%s", s.Finished.Sub(s.Started).Round(time.Second)), false, false))
	}

	blocks := []slack.Block{
		slack.NewHeaderBlock(
			slack.NewTextBlockObject("plain_text", fmt.Sprintf("%s Purge run finished", icon), false, false),
		),
		slack.NewSectionBlock(
			slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("*%s*", s.Final.Reason), false, false),
			fields, nil,
		),
	}

	if s.Final.Err != "" {
		blocks = append(blocks, slack.NewSectionBlock(
			slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("```%s```", truncate(s.Final.Err, 500)), false, false),
			nil, nil,
		))
	}
	if s.RunID != "" {
		blocks = append(blocks, slack.NewContextBlock("",
			slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("run `%s`", s.RunID), false, false),
		))
	}
	return blocks
}

// truncate shortens s to max chars, appending "…" if truncated.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
