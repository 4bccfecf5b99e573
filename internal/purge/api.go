// Package purge implements the rate-limited batch deletion engine: it walks a
// channel's history backward one page at a time and deletes the caller's own
// messages sequentially under an adaptive delay.
package purge

import (
	"context"
	"errors"
	"net/http"

	perrors "github.com/p-blackswan/chatpurge/internal/errors"
)

// Message is one chat message as returned by the remote API.
type Message struct {
	// ID is opaque but ordered by creation time and usable as a page boundary.
	ID       string
	AuthorID string
}

// ChannelAPI is the narrow chat-service surface the engine needs.
// Errors should be (or wrap) *errors.APIError so they can be classified.
type ChannelAPI interface {
	// FetchMessages returns up to limit messages older than before, newest first.
	// An empty before means "start from the newest message".
	FetchMessages(ctx context.Context, channelID string, limit int, before string) ([]Message, error)
	// DeleteMessage removes one message.
	DeleteMessage(ctx context.Context, channelID, messageID string) error
}

// DeleteOutcome classifies the result of one delete call.
type DeleteOutcome int

const (
	OutcomeDeleted DeleteOutcome = iota
	OutcomeNotFound
	OutcomeForbidden
	OutcomeFailed
)

func (o DeleteOutcome) String() string {
	switch o {
	case OutcomeDeleted:
		return "deleted"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeForbidden:
		return "forbidden"
	default:
		return "failed"
	}
}

// Success reports whether the outcome counts as a success for the adaptive delay.
// An already-absent message is success-equivalent.
func (o DeleteOutcome) Success() bool {
	return o == OutcomeDeleted || o == OutcomeNotFound
}

// ClassifyDelete maps a DeleteMessage error onto an outcome.
func ClassifyDelete(err error) DeleteOutcome {
	if err == nil {
		return OutcomeDeleted
	}
	switch perrors.StatusCode(err) {
	case http.StatusNotFound:
		return OutcomeNotFound
	case http.StatusForbidden:
		return OutcomeForbidden
	}
	return OutcomeFailed
}

// FetchResult classifies one page-read attempt.
type FetchResult string

const (
	FetchOK          FetchResult = "ok"
	FetchRateLimited FetchResult = "rate_limited"
	FetchFailed      FetchResult = "failed"
	FetchFatal       FetchResult = "fatal"
)

// Observer receives per-call outcomes. Implementations must be safe for use
// from the engine's worker goroutine.
type Observer interface {
	ObserveFetch(result FetchResult, err error)
	ObserveDelete(msg Message, outcome DeleteOutcome, err error)
}

// ProgressSink receives a snapshot after every state change. Publish may be
// called from the worker goroutine and from control goroutines.
type ProgressSink interface {
	Publish(snap Snapshot)
}

// SinkFunc adapts a function to ProgressSink.
type SinkFunc func(snap Snapshot)

// Publish calls f(snap).
func (f SinkFunc) Publish(snap Snapshot) { f(snap) }

var (
	// ErrStopped is returned by waits and page processing interrupted by Stop.
	ErrStopped = errors.New("run stopped")
	// ErrRetriesExhausted wraps the last read failure once every attempt is used up.
	ErrRetriesExhausted = errors.New("page read retries exhausted")
	// ErrCursorStalled is returned when a page would not move the boundary backward.
	ErrCursorStalled = errors.New("pagination boundary did not advance")
)
