package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Run is one journaled purge run.
type Run struct {
	ID             string `json:"id"`
	Backend        string `json:"backend"`
	ChannelID      string `json:"channel_id"`
	OwnerID        string `json:"owner_id"`
	State          string `json:"state"`
	Reason         string `json:"reason,omitempty"`
	Error          string `json:"error,omitempty"`
	TotalDeleted   int    `json:"total_deleted"`
	TotalProcessed int    `json:"total_processed"`
	Boundary       string `json:"boundary,omitempty"`
	FetchRetries   int    `json:"fetch_retries"`
	RateLimited    int    `json:"rate_limited"`
	StartedAt      int64  `json:"started_at"`
	UpdatedAt      int64  `json:"updated_at"`
	FinishedAt     int64  `json:"finished_at,omitempty"` // 0 = unfinished
}

// Deletion is one journaled delete call.
type Deletion struct {
	RunID     string `json:"run_id"`
	MessageID string `json:"message_id"`
	Outcome   string `json:"outcome"`
	Error     string `json:"error,omitempty"`
	CreatedAt int64  `json:"created_at"`
}

// StartRun inserts a new run row and returns a recorder bound to it.
func (j *Journal) StartRun(ctx context.Context, backend, channelID, ownerID string) (*Recorder, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	id := uuid.NewString()
	now := time.Now().UnixMilli()
	_, err := j.db.ExecContext(ctx, `
	INSERT INTO runs (id, backend, channel_id, owner_id, started_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	`, id, backend, channelID, ownerID, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to start run: %w", err)
	}

	j.logger.Info().Str("run_id", id).Str("channel", channelID).Msg("run journaled")
	return &Recorder{journal: j, runID: id, logger: j.logger.With().Str("run_id", id).Logger()}, nil
}

// GetRun retrieves a run by ID. Returns nil when it does not exist.
func (j *Journal) GetRun(ctx context.Context, id string) (*Run, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	row := j.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return r, nil
}

// ListRuns returns the most recent runs first.
func (j *Journal) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC, rowid DESC`
	var args []interface{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Deletions returns the delete calls of a run in call order.
func (j *Journal) Deletions(ctx context.Context, runID string) ([]*Deletion, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	rows, err := j.db.QueryContext(ctx, `
	SELECT run_id, message_id, outcome, error, created_at
	FROM deletions WHERE run_id = ? ORDER BY id ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list deletions: %w", err)
	}
	defer rows.Close()

	var out []*Deletion
	for rows.Next() {
		d := &Deletion{}
		var errText sql.NullString
		if err := rows.Scan(&d.RunID, &d.MessageID, &d.Outcome, &errText, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan deletion: %w", err)
		}
		d.Error = errText.String
		out = append(out, d)
	}
	return out, rows.Err()
}

const runColumns = `id, backend, channel_id, owner_id, state, reason, error,
	total_deleted, total_processed, boundary, fetch_retries, rate_limited,
	started_at, updated_at, finished_at`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(s scanner) (*Run, error) {
	r := &Run{}
	var finished sql.NullInt64
	err := s.Scan(
		&r.ID, &r.Backend, &r.ChannelID, &r.OwnerID, &r.State, &r.Reason, &r.Error,
		&r.TotalDeleted, &r.TotalProcessed, &r.Boundary, &r.FetchRetries, &r.RateLimited,
		&r.StartedAt, &r.UpdatedAt, &finished,
	)
	if err != nil {
		return nil, err
	}
	r.FinishedAt = finished.Int64
	return r, nil
}
