// Package discord is a minimal Discord REST client covering channel history,
// message deletion and identity lookup.
package discord

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/rs/zerolog"

	perrors "github.com/p-blackswan/chatpurge/internal/errors"
	"github.com/p-blackswan/chatpurge/internal/purge"
)

const service = "discord"

// DefaultBaseURL is the versioned REST root.
const DefaultBaseURL = "https://discord.com/api/v10"

// HTTPClient abstracts HTTP calls for testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client wraps the Discord REST API for a single token.
type Client struct {
	baseURL    string
	token      string
	httpClient HTTPClient
	logger     zerolog.Logger
}

// NewClient creates a client. An empty baseURL selects DefaultBaseURL.
func NewClient(baseURL, token string, logger zerolog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger.With().Str("component", "discord").Logger(),
	}
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(hc HTTPClient) {
	c.httpClient = hc
}

// ValidateToken rejects values that cannot be a Discord token.
func ValidateToken(token string) error {
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bot "))
	if len(token) < 50 {
		return fmt.Errorf("%w: discord token looks truncated (%d characters)", perrors.ErrInvalidInput, len(token))
	}
	return nil
}

type apiMessage struct {
	ID     snowflake.ID `json:"id"`
	Author struct {
		ID snowflake.ID `json:"id"`
	} `json:"author"`
}

// FetchMessages returns up to limit messages older than before, newest first.
func (c *Client) FetchMessages(ctx context.Context, channelID string, limit int, before string) ([]purge.Message, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	if before != "" {
		q.Set("before", before)
	}

	resp, err := c.do(ctx, http.MethodGet, "/channels/"+url.PathEscape(channelID)+"/messages?"+q.Encode())
	if err != nil {
		return nil, err
	}

	var raw []apiMessage
	if err := decodeResponse(resp, &raw); err != nil {
		return nil, err
	}

	page := make([]purge.Message, 0, len(raw))
	for _, m := range raw {
		page = append(page, purge.Message{ID: m.ID.String(), AuthorID: m.Author.ID.String()})
	}
	return page, nil
}

// DeleteMessage deletes one message. Discord answers 204 on success.
func (c *Client) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	path := "/channels/" + url.PathEscape(channelID) + "/messages/" + url.PathEscape(messageID)
	resp, err := c.do(ctx, http.MethodDelete, path)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// User is the subset of the Discord user object we need.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// CurrentUser resolves the identity behind the token.
func (c *Client) CurrentUser(ctx context.Context) (*User, error) {
	resp, err := c.do(ctx, http.MethodGet, "/users/@me")
	if err != nil {
		return nil, fmt.Errorf("resolving current user: %w", err)
	}
	var u User
	if err := decodeResponse(resp, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Channel is the subset of the Discord channel object we need.
type Channel struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Type    int    `json:"type"`
	GuildID string `json:"guild_id"`
}

// Channel types messages can be purged from.
const (
	ChannelGuildText = 0
	ChannelDM        = 1
	ChannelGroupDM   = 3
)

var channelTypeNames = map[int]string{
	0:  "text channel",
	1:  "direct message",
	2:  "voice channel",
	3:  "group direct message",
	4:  "category",
	5:  "announcement channel",
	10: "announcement thread",
	11: "public thread",
	12: "private thread",
	13: "stage",
	14: "directory",
	15: "forum",
	16: "media channel",
}

// IsText reports whether the channel holds a plain message history.
func (ch *Channel) IsText() bool {
	switch ch.Type {
	case ChannelGuildText, ChannelDM, ChannelGroupDM:
		return true
	}
	return false
}

// TypeName describes the channel type for error messages.
func (ch *Channel) TypeName() string {
	if name, ok := channelTypeNames[ch.Type]; ok {
		return name
	}
	return fmt.Sprintf("unknown type %d", ch.Type)
}

// GetChannel fetches channel metadata.
func (c *Client) GetChannel(ctx context.Context, channelID string) (*Channel, error) {
	resp, err := c.do(ctx, http.MethodGet, "/channels/"+url.PathEscape(channelID))
	if err != nil {
		return nil, fmt.Errorf("fetching channel %s: %w", channelID, err)
	}
	var ch Channel
	if err := decodeResponse(resp, &ch); err != nil {
		return nil, err
	}
	return &ch, nil
}

// Preflight checks that the channel can be purged and returns the acting
// user's id, which is the ownership filter for the run.
func (c *Client) Preflight(ctx context.Context, channelID string) (string, error) {
	ch, err := c.GetChannel(ctx, channelID)
	if err != nil {
		return "", err
	}
	if !ch.IsText() {
		return "", fmt.Errorf("%w: channel %s is a %s, only text channels and direct messages are supported",
			perrors.ErrInvalidInput, channelID, ch.TypeName())
	}

	user, err := c.CurrentUser(ctx)
	if err != nil {
		return "", err
	}
	c.logger.Info().
		Str("channel", ch.ID).
		Str("channel_type", ch.TypeName()).
		Bool("guild", ch.GuildID != "").
		Str("user", user.Username).
		Msg("preflight passed")
	return user.ID, nil
}

// Older reports whether snowflake a was created before snowflake b.
func Older(a, b string) bool {
	x, errA := snowflake.Parse(a)
	y, errB := snowflake.Parse(b)
	if errA != nil || errB != nil {
		return false
	}
	return x < y
}

// do executes an authenticated request and converts error statuses to *errors.APIError.
func (c *Client) do(ctx context.Context, method, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}

	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		apiErr := parseError(resp)
		c.logger.Debug().
			Str("method", method).
			Str("path", req.URL.Path).
			Int("status", resp.StatusCode).
			Dur("retry_after", apiErr.RetryAfter).
			Msg("discord request rejected")
		return nil, apiErr
	}
	return resp, nil
}

type errorBody struct {
	Message    string  `json:"message"`
	Code       int     `json:"code"`
	RetryAfter float64 `json:"retry_after"`
}

func parseError(resp *http.Response) *perrors.APIError {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var body errorBody
	msg := strings.TrimSpace(string(raw))
	if err := json.Unmarshal(raw, &body); err == nil && body.Message != "" {
		msg = body.Message
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}

	apiErr := perrors.NewAPIError(service, resp.StatusCode, msg)
	if resp.StatusCode == http.StatusTooManyRequests {
		apiErr.RetryAfter = retryAfter(resp.Header.Get("Retry-After"), body.RetryAfter)
	}
	return apiErr
}

// retryAfter prefers the header, then the body; both are in (fractional) seconds.
// An unparsable or missing hint yields zero. Discord documents seconds here;
// clients that feed the header straight into a millisecond delay retry 1000x early.
func retryAfter(header string, body float64) time.Duration {
	if header != "" {
		if secs, err := strconv.ParseFloat(strings.TrimSpace(header), 64); err == nil && secs > 0 {
			return time.Duration(secs * float64(time.Second))
		}
	}
	if body > 0 {
		return time.Duration(body * float64(time.Second))
	}
	return 0
}

// decodeResponse reads and decodes a JSON response.
func decodeResponse(resp *http.Response, v interface{}) error {
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("decoding response: empty body")
		}
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
