package purge

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	perrors "github.com/p-blackswan/chatpurge/internal/errors"
)

// SleepFunc suspends the caller for d. It returns early with an error if the
// run is stopped or ctx is cancelled.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Fetcher reads one page of history with bounded retries.
type Fetcher struct {
	api       ChannelAPI
	channelID string
	batchSize int
	attempts  int
	session   *Session
	states    *StateMachine
	sleep     SleepFunc
	observe   func(FetchResult, error)
	logger    zerolog.Logger
}

// FetchPage returns the page of messages older than boundary.
//
// Rate-limit responses are waited out (server hint, else the current delay) and
// count against the attempt budget. Unauthorized, forbidden and not-found fail
// immediately. Anything else backs off for delay*2^attempt. The returned error
// is fatal to the run unless it is ErrStopped or a context error.
func (f *Fetcher) FetchPage(ctx context.Context, boundary string) ([]Message, error) {
	var lastErr error

	for attempt := 0; attempt < f.attempts; attempt++ {
		page, err := f.api.FetchMessages(ctx, f.channelID, f.batchSize, boundary)
		if err == nil {
			f.session.Adjust(true)
			f.observe(FetchOK, nil)
			return page, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err

		log := f.logger.With().
			Err(err).
			Int("attempt", attempt+1).
			Int("max_attempts", f.attempts).
			Str("before", boundary).
			Logger()

		switch {
		case perrors.IsRateLimited(err):
			wait, ok := perrors.RetryAfter(err)
			if !ok {
				wait = f.session.Delay()
			}
			f.observe(FetchRateLimited, err)
			f.session.Adjust(false)
			if attempt == f.attempts-1 {
				log.Error().Msg("rate limited on final history read")
				continue
			}
			log.Warn().Dur("wait", wait).Msg("rate limited while reading history")

			if err := f.sleep(ctx, wait); err != nil {
				return nil, err
			}
			if err := f.awaitRunning(ctx); err != nil {
				return nil, err
			}

		case perrors.IsFatalRead(err):
			f.observe(FetchFatal, err)
			log.Error().Msg("history read rejected")
			return nil, fmt.Errorf("reading channel %s: %w", f.channelID, err)

		default:
			f.observe(FetchFailed, err)
			delay := f.session.Adjust(false)
			if attempt == f.attempts-1 {
				log.Error().Msg("history read failed")
				continue
			}
			backoff := delay * time.Duration(1<<attempt)
			log.Warn().Dur("backoff", backoff).Msg("history read failed, retrying")

			if err := f.sleep(ctx, backoff); err != nil {
				return nil, err
			}
			if err := f.awaitRunning(ctx); err != nil {
				return nil, err
			}
		}
	}

	f.observe(FetchFatal, lastErr)
	return nil, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, f.attempts, lastErr)
}

// awaitRunning blocks while the run is paused so that no read is issued until
// it resumes.
func (f *Fetcher) awaitRunning(ctx context.Context) error {
	state, err := f.states.Wait(ctx)
	if err != nil {
		return err
	}
	if state == Stopped {
		return ErrStopped
	}
	return nil
}
