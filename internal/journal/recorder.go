package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/chatpurge/internal/purge"
)

// Recorder journals one run. It implements purge.Observer and
// purge.ProgressSink; write failures are logged and never stop the run.
type Recorder struct {
	journal *Journal
	runID   string
	logger  zerolog.Logger
}

// RunID returns the journal id of the run.
func (r *Recorder) RunID() string { return r.runID }

// ObserveFetch counts failed and rate-limited page reads.
func (r *Recorder) ObserveFetch(result purge.FetchResult, _ error) {
	var column string
	switch result {
	case purge.FetchRateLimited:
		column = "rate_limited"
	case purge.FetchFailed:
		column = "fetch_retries"
	default:
		return
	}
	r.exec("count fetch", `UPDATE runs SET `+column+` = `+column+` + 1, updated_at = ? WHERE id = ?`,
		time.Now().UnixMilli(), r.runID)
}

// ObserveDelete appends one row per delete call.
func (r *Recorder) ObserveDelete(msg purge.Message, outcome purge.DeleteOutcome, err error) {
	var errText sql.NullString
	if err != nil {
		errText = sql.NullString{String: err.Error(), Valid: true}
	}
	r.exec("record deletion", `
	INSERT INTO deletions (run_id, message_id, outcome, error, created_at)
	VALUES (?, ?, ?, ?, ?)
	`, r.runID, msg.ID, outcome.String(), errText, time.Now().UnixMilli())
}

// Publish stores the latest counters and state.
func (r *Recorder) Publish(snap purge.Snapshot) {
	r.exec("update run", `
	UPDATE runs SET state = ?, reason = ?, error = ?, total_deleted = ?,
		total_processed = ?, boundary = ?, updated_at = ?
	WHERE id = ?
	`, snap.State.String(), snap.Reason, snap.Err, snap.TotalDeleted,
		snap.TotalProcessed, snap.Boundary, time.Now().UnixMilli(), r.runID)
}

// Finish stores the final snapshot and marks the run finished.
func (r *Recorder) Finish(ctx context.Context, snap purge.Snapshot) error {
	r.journal.mu.Lock()
	defer r.journal.mu.Unlock()

	now := time.Now().UnixMilli()
	_, err := r.journal.db.ExecContext(ctx, `
	UPDATE runs SET state = ?, reason = ?, error = ?, total_deleted = ?,
		total_processed = ?, boundary = ?, updated_at = ?, finished_at = ?
	WHERE id = ?
	`, snap.State.String(), snap.Reason, snap.Err, snap.TotalDeleted,
		snap.TotalProcessed, snap.Boundary, now, now, r.runID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	return nil
}

func (r *Recorder) exec(op, query string, args ...interface{}) {
	r.journal.mu.Lock()
	defer r.journal.mu.Unlock()

	if _, err := r.journal.db.Exec(query, args...); err != nil {
		r.logger.Warn().Err(err).Str("op", op).Msg("journal write failed")
	}
}
