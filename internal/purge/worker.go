package purge

import (
	"context"

	"github.com/rs/zerolog"
)

// Worker deletes the owned messages of one page, one call at a time.
type Worker struct {
	api       ChannelAPI
	channelID string
	session   *Session
	states    *StateMachine
	sleep     SleepFunc
	observe   func(Message, DeleteOutcome, error)
	publish   func()
	logger    zerolog.Logger
}

// ProcessPage deletes every message in page authored by ownerID, in page order.
// It stops early, leaving the rest of the page untouched, as soon as the run
// is no longer Running. Per-message failures never abort the page.
func (w *Worker) ProcessPage(ctx context.Context, page []Message, ownerID string) (int, error) {
	owned := make([]Message, 0, len(page))
	for _, msg := range page {
		if msg.AuthorID == ownerID {
			owned = append(owned, msg)
		}
	}
	if len(owned) == 0 {
		w.logger.Debug().Int("page_size", len(page)).Msg("no owned messages in page")
		return 0, nil
	}

	w.logger.Debug().Int("owned", len(owned)).Int("page_size", len(page)).Msg("deleting owned messages")

	deleted := 0
	for i, msg := range owned {
		if stop, err := w.interrupted(len(owned) - i); stop {
			return deleted, err
		}
		if err := w.sleep(ctx, w.session.Delay()); err != nil {
			return deleted, err
		}
		// the run may have been paused or stopped during the delay
		if stop, err := w.interrupted(len(owned) - i); stop {
			return deleted, err
		}

		err := w.api.DeleteMessage(ctx, w.channelID, msg.ID)
		outcome := ClassifyDelete(err)
		log := w.logger.With().Str("message_id", msg.ID).Str("outcome", outcome.String()).Logger()

		switch outcome {
		case OutcomeDeleted:
			w.session.recordDeleted()
			deleted++
			log.Debug().Msg("message deleted")
		case OutcomeNotFound:
			log.Warn().Msg("message already gone")
		case OutcomeForbidden:
			log.Error().Err(err).Msg("not allowed to delete message")
		default:
			log.Error().Err(err).Msg("delete failed")
		}

		w.session.Adjust(outcome.Success())
		w.observe(msg, outcome, err)
		w.publish()
	}
	return deleted, nil
}

// interrupted reports whether the page must be abandoned because the run is no
// longer Running. The error is ErrStopped for a stop and nil for a pause.
func (w *Worker) interrupted(remaining int) (bool, error) {
	state := w.states.State()
	if state == Running {
		return false, nil
	}
	w.logger.Info().
		Str("state", state.String()).
		Int("skipped", remaining).
		Msg("page processing interrupted")
	if state == Stopped {
		return true, ErrStopped
	}
	return true, nil
}
