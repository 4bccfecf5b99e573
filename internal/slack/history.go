// Package slack adapts the Slack Web API to the deletion engine: conversation
// history is walked with "latest" as the boundary and messages are removed
// with chat.delete.
package slack

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"

	perrors "github.com/p-blackswan/chatpurge/internal/errors"
	"github.com/p-blackswan/chatpurge/internal/purge"
)

const service = "slack"

// API abstracts the Slack client methods the adapter calls, for testing.
type API interface {
	GetConversationHistoryContext(ctx context.Context, params *slack.GetConversationHistoryParameters) (*slack.GetConversationHistoryResponse, error)
	DeleteMessageContext(ctx context.Context, channel, messageTimestamp string) (string, string, error)
	AuthTestContext(ctx context.Context) (*slack.AuthTestResponse, error)
	GetConversationInfoContext(ctx context.Context, input *slack.GetConversationInfoInput) (*slack.Channel, error)
}

// History implements purge.ChannelAPI over a Slack user token.
type History struct {
	api    API
	logger zerolog.Logger
}

// NewHistory creates an adapter. An empty apiURL uses the public Slack endpoint.
func NewHistory(token, apiURL string, logger zerolog.Logger) *History {
	var opts []slack.Option
	if apiURL != "" {
		opts = append(opts, slack.OptionAPIURL(strings.TrimSuffix(apiURL, "/")+"/"))
	}
	return NewHistoryWithAPI(slack.New(token, opts...), logger)
}

// NewHistoryWithAPI wraps an existing client (tests pass a fake).
func NewHistoryWithAPI(api API, logger zerolog.Logger) *History {
	return &History{
		api:    api,
		logger: logger.With().Str("component", "slack").Logger(),
	}
}

// FetchMessages returns up to limit messages older than before (a message ts), newest first.
func (h *History) FetchMessages(ctx context.Context, channelID string, limit int, before string) ([]purge.Message, error) {
	resp, err := h.api.GetConversationHistoryContext(ctx, &slack.GetConversationHistoryParameters{
		ChannelID: channelID,
		Latest:    before,
		Limit:     limit,
		Inclusive: false,
	})
	if err != nil {
		return nil, translateError(err)
	}

	page := make([]purge.Message, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		page = append(page, purge.Message{ID: m.Timestamp, AuthorID: m.User})
	}
	return page, nil
}

// DeleteMessage removes the message with timestamp messageID.
func (h *History) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	if _, _, err := h.api.DeleteMessageContext(ctx, channelID, messageID); err != nil {
		return translateError(err)
	}
	return nil
}

// Preflight checks the conversation and returns the token owner's user id.
func (h *History) Preflight(ctx context.Context, channelID string) (string, error) {
	ch, err := h.api.GetConversationInfoContext(ctx, &slack.GetConversationInfoInput{ChannelID: channelID})
	if err != nil {
		return "", fmt.Errorf("fetching conversation %s: %w", channelID, translateError(err))
	}
	if ch.IsArchived {
		return "", fmt.Errorf("%w: conversation %s is archived", perrors.ErrInvalidInput, channelID)
	}

	auth, err := h.api.AuthTestContext(ctx)
	if err != nil {
		return "", fmt.Errorf("resolving current user: %w", translateError(err))
	}
	h.logger.Info().
		Str("channel", channelID).
		Str("team", auth.Team).
		Str("user", auth.User).
		Msg("preflight passed")
	return auth.UserID, nil
}

// Older reports whether message timestamp a ("seconds.micros") precedes b.
func Older(a, b string) bool {
	as, af, okA := splitTS(a)
	bs, bf, okB := splitTS(b)
	if !okA || !okB {
		return false
	}
	if len(as) != len(bs) {
		return len(as) < len(bs)
	}
	if as != bs {
		return as < bs
	}
	return af < bf
}

func splitTS(ts string) (secs, frac string, ok bool) {
	secs, frac, _ = strings.Cut(ts, ".")
	if secs == "" || strings.TrimLeft(secs, "0123456789") != "" || strings.TrimLeft(frac, "0123456789") != "" {
		return "", "", false
	}
	secs = strings.TrimLeft(secs, "0")
	for len(frac) < 6 {
		frac += "0"
	}
	return secs, frac, true
}

var errorStatus = map[string]int{
	"not_authed":          http.StatusUnauthorized,
	"invalid_auth":        http.StatusUnauthorized,
	"account_inactive":    http.StatusUnauthorized,
	"token_revoked":       http.StatusUnauthorized,
	"token_expired":       http.StatusUnauthorized,
	"missing_scope":       http.StatusForbidden,
	"not_in_channel":      http.StatusForbidden,
	"cant_delete_message": http.StatusForbidden,
	"restricted_action":   http.StatusForbidden,
	"access_denied":       http.StatusForbidden,
	"channel_not_found":   http.StatusNotFound,
	"message_not_found":   http.StatusNotFound,
	"ratelimited":         http.StatusTooManyRequests,
	"internal_error":      http.StatusInternalServerError,
	"fatal_error":         http.StatusInternalServerError,
	"service_unavailable": http.StatusServiceUnavailable,
}

// translateError converts slack-go errors to *errors.APIError so the engine
// can classify them. Transport errors pass through unchanged.
func translateError(err error) error {
	var rateErr *slack.RateLimitedError
	if errors.As(err, &rateErr) {
		return &perrors.APIError{
			Service:    service,
			StatusCode: http.StatusTooManyRequests,
			Message:    "rate limited",
			RetryAfter: rateErr.RetryAfter,
			Err:        err,
		}
	}

	var slackErr slack.SlackErrorResponse
	if errors.As(err, &slackErr) {
		status, ok := errorStatus[slackErr.Err]
		if !ok {
			status = http.StatusBadRequest
		}
		return &perrors.APIError{Service: service, StatusCode: status, Message: slackErr.Err, Err: err}
	}

	var statusErr slack.StatusCodeError
	if errors.As(err, &statusErr) {
		return &perrors.APIError{Service: service, StatusCode: statusErr.Code, Message: statusErr.Status, Err: err}
	}
	return err
}
