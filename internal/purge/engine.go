package purge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/chatpurge/internal/ratecontrol"
)

// Reasons recorded in the final snapshot.
const (
	ReasonCompleted = "all messages processed"
	ReasonStopped   = "stopped by user"
	ReasonCancelled = "cancelled"
	ReasonFatal     = "fatal error"
)

// Config holds the engine parameters fixed at startup.
type Config struct {
	RetryAttempts int
	BatchSize     int
	Rate          ratecontrol.Config
	// BatchDelayFactor scales the current delay into the pause between pages.
	// Zero disables the pause.
	BatchDelayFactor float64
}

// DefaultConfig returns the defaults used by the CLI.
func DefaultConfig() Config {
	return Config{
		RetryAttempts:    5,
		BatchSize:        100,
		Rate:             ratecontrol.DefaultConfig(),
		BatchDelayFactor: 3,
	}
}

// Validate checks the parameters the engine relies on.
func (c Config) Validate() error {
	switch {
	case c.RetryAttempts < 1:
		return fmt.Errorf("retry attempts must be at least 1, got %d", c.RetryAttempts)
	case c.BatchSize < 1:
		return fmt.Errorf("batch size must be at least 1, got %d", c.BatchSize)
	case c.Rate.MinDelay < 0 || c.Rate.MinDelay > c.Rate.MaxDelay:
		return fmt.Errorf("delay bounds invalid: min %s, max %s", c.Rate.MinDelay, c.Rate.MaxDelay)
	case c.Rate.Multiplier <= 1:
		return fmt.Errorf("delay multiplier must be > 1, got %g", c.Rate.Multiplier)
	case c.Rate.Decrease <= 0 || c.Rate.Decrease >= 1:
		return fmt.Errorf("delay decrease must be in (0, 1), got %g", c.Rate.Decrease)
	case c.BatchDelayFactor < 0:
		return fmt.Errorf("batch delay factor must not be negative, got %g", c.BatchDelayFactor)
	}
	return nil
}

// Option customises an Engine.
type Option func(*Engine)

// WithSink adds a progress sink.
func WithSink(sink ProgressSink) Option {
	return func(e *Engine) { e.sinks = append(e.sinks, sink) }
}

// WithObserver adds a per-call observer.
func WithObserver(obs Observer) Option {
	return func(e *Engine) { e.observers = append(e.observers, obs) }
}

// WithOrdering lets the cursor verify that every boundary is older than the last.
func WithOrdering(older OlderFunc) Option {
	return func(e *Engine) { e.older = older }
}

// WithSleep replaces the timer-based wait (tests use this to avoid real delays).
func WithSleep(fn SleepFunc) Option {
	return func(e *Engine) { e.sleep = fn }
}

// WithStateMachine injects the state machine driven by external controls.
func WithStateMachine(m *StateMachine) Option {
	return func(e *Engine) { e.states = m }
}

// Engine runs one deletion pass over a channel.
type Engine struct {
	cfg       Config
	api       ChannelAPI
	channelID string
	ownerID   string

	session *Session
	states  *StateMachine
	cursor  *Cursor
	fetcher *Fetcher
	worker  *Worker

	older     OlderFunc
	sleep     SleepFunc
	sinks     []ProgressSink
	observers []Observer
	publishMu sync.Mutex

	logger zerolog.Logger
}

// NewEngine wires the engine for one channel and one acting identity.
func NewEngine(cfg Config, api ChannelAPI, channelID, ownerID string, logger zerolog.Logger, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if channelID == "" || ownerID == "" {
		return nil, errors.New("channel id and owner id are required")
	}

	e := &Engine{
		cfg:       cfg,
		api:       api,
		channelID: channelID,
		ownerID:   ownerID,
		session:   NewSession(cfg.Rate),
		logger:    logger.With().Str("component", "purge").Str("channel", channelID).Logger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.states == nil {
		e.states = NewStateMachine()
	}
	if e.sleep == nil {
		e.sleep = timerSleep(e.states)
	}
	e.cursor = NewCursor(e.older)

	e.fetcher = &Fetcher{
		api:       api,
		channelID: channelID,
		batchSize: cfg.BatchSize,
		attempts:  cfg.RetryAttempts,
		session:   e.session,
		states:    e.states,
		sleep:     e.sleep,
		observe:   e.observeFetch,
		logger:    e.logger,
	}
	e.worker = &Worker{
		api:       api,
		channelID: channelID,
		session:   e.session,
		states:    e.states,
		sleep:     e.sleep,
		observe:   e.observeDelete,
		publish:   e.publish,
		logger:    e.logger,
	}

	e.states.OnChange(func(state RunState) {
		e.logger.Info().Str("state", state.String()).Msg("run state changed")
		e.publish()
	})
	return e, nil
}

// Controls returns the state machine that pauses, resumes and stops the run.
func (e *Engine) Controls() *StateMachine { return e.states }

// Snapshot returns the current progress.
func (e *Engine) Snapshot() Snapshot {
	return e.session.Snapshot(e.states.State())
}

// Run walks the channel history until an empty page, a Stop, a cancelled
// context or a fatal error. The returned error is non-nil only for fatal errors
// and cancellation; the snapshot always carries the final counts and reason.
func (e *Engine) Run(ctx context.Context) (Snapshot, error) {
	e.logger.Info().
		Int("batch_size", e.cfg.BatchSize).
		Dur("initial_delay", e.session.Delay()).
		Msg("starting deletion run")
	e.publish()

	for {
		state, err := e.states.Wait(ctx)
		if err != nil {
			return e.finish(ReasonCancelled, err)
		}
		if state == Stopped {
			return e.finish(ReasonStopped, nil)
		}

		page, err := e.fetcher.FetchPage(ctx, e.cursor.Boundary())
		if err != nil {
			return e.finishOnError(err)
		}

		boundary, err := e.cursor.Advance(page)
		if err != nil {
			return e.finish(ReasonFatal, err)
		}
		if e.cursor.Done() {
			return e.finish(ReasonCompleted, nil)
		}

		e.session.recordPage(len(page), boundary)
		e.logger.Debug().Int("page_size", len(page)).Str("boundary", boundary).Msg("page fetched")
		e.publish()

		if _, err := e.worker.ProcessPage(ctx, page, e.ownerID); err != nil {
			return e.finishOnError(err)
		}

		if e.cfg.BatchDelayFactor > 0 && e.states.State() == Running {
			pause := time.Duration(float64(e.session.Delay()) * e.cfg.BatchDelayFactor)
			if err := e.sleep(ctx, pause); err != nil {
				return e.finishOnError(err)
			}
		}
	}
}

func (e *Engine) finishOnError(err error) (Snapshot, error) {
	switch {
	case errors.Is(err, ErrStopped):
		return e.finish(ReasonStopped, nil)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return e.finish(ReasonCancelled, err)
	}
	return e.finish(ReasonFatal, err)
}

func (e *Engine) finish(reason string, err error) (Snapshot, error) {
	e.session.finish(reason, err)
	if !e.states.Stop() {
		e.publish()
	}

	snap := e.Snapshot()
	ev := e.logger.Info()
	if err != nil {
		ev = e.logger.Error().Err(err)
	}
	ev.Str("reason", snap.Reason).
		Int("deleted", snap.TotalDeleted).
		Int("processed", snap.TotalProcessed).
		Msg("deletion run finished")
	return snap, err
}

func (e *Engine) publish() {
	e.publishMu.Lock()
	defer e.publishMu.Unlock()
	snap := e.Snapshot()
	for _, sink := range e.sinks {
		sink.Publish(snap)
	}
}

func (e *Engine) observeFetch(result FetchResult, err error) {
	for _, obs := range e.observers {
		obs.ObserveFetch(result, err)
	}
}

func (e *Engine) observeDelete(msg Message, outcome DeleteOutcome, err error) {
	for _, obs := range e.observers {
		obs.ObserveDelete(msg, outcome, err)
	}
}

func timerSleep(states *StateMachine) SleepFunc {
	return func(ctx context.Context, d time.Duration) error {
		if d <= 0 {
			return nil
		}
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-t.C:
			return nil
		case <-states.Done():
			return ErrStopped
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
