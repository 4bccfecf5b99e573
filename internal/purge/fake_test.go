package purge

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fetchResponse struct {
	page []Message
	err  error
}

// fakeAPI replays scripted fetch responses and per-message delete errors.
type fakeAPI struct {
	mu          sync.Mutex
	responses   []fetchResponse
	deleteErrs  map[string]error
	fetchBounds []string
	deleteCalls []string
	onDelete    func(id string)
}

func (f *fakeAPI) FetchMessages(_ context.Context, _ string, _ int, before string) ([]Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchBounds = append(f.fetchBounds, before)
	if len(f.responses) == 0 {
		return nil, nil
	}
	resp := f.responses[0]
	f.responses = f.responses[1:]
	return resp.page, resp.err
}

func (f *fakeAPI) DeleteMessage(_ context.Context, _ string, messageID string) error {
	f.mu.Lock()
	f.deleteCalls = append(f.deleteCalls, messageID)
	err := f.deleteErrs[messageID]
	hook := f.onDelete
	f.mu.Unlock()
	if hook != nil {
		hook(messageID)
	}
	return err
}

func (f *fakeAPI) calls() (fetches []string, deletes []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.fetchBounds...), append([]string{}, f.deleteCalls...)
}

// sleepRecorder records requested waits without sleeping.
type sleepRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.waits = append(s.waits, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *sleepRecorder) recorded() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration{}, s.waits...)
}

type snapshotRecorder struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (r *snapshotRecorder) Publish(snap Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, snap)
}

func (r *snapshotRecorder) all() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Snapshot{}, r.snaps...)
}

func msg(id, author string) Message {
	return Message{ID: id, AuthorID: author}
}

func newTestEngine(t *testing.T, api ChannelAPI, opts ...Option) *Engine {
	t.Helper()
	cfg := DefaultConfig()
	cfg.BatchDelayFactor = 0
	e, err := NewEngine(cfg, api, "chan-1", "me", zerolog.Nop(), opts...)
	require.NoError(t, err)
	return e
}
