package journal

import (
	"context"
	"fmt"
	"time"
)

// Prune deletes finished runs (and their deletions) older than maxAge.
// Unfinished runs are kept. Returns the number of runs removed.
func (j *Journal) Prune(ctx context.Context, maxAge time.Duration) (int64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	cutoff := time.Now().Add(-maxAge).UnixMilli()
	_, err := j.db.ExecContext(ctx, `
	DELETE FROM deletions WHERE run_id IN (
		SELECT id FROM runs WHERE finished_at IS NOT NULL AND finished_at < ?
	)`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune deletions: %w", err)
	}

	res, err := j.db.ExecContext(ctx,
		"DELETE FROM runs WHERE finished_at IS NOT NULL AND finished_at < ?",
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to prune runs: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		j.logger.Info().Int64("runs", n).Dur("max_age", maxAge).Msg("journal pruned")
	}
	return n, nil
}
