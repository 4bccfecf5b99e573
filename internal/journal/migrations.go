package journal

import (
	"fmt"
	"strings"
)

func (j *Journal) migrate() error {
	if err := j.migrateV1(); err != nil {
		return err
	}
	return j.migrateV2()
}

func (j *Journal) migrateV1() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id              TEXT PRIMARY KEY,
		backend         TEXT NOT NULL,
		channel_id      TEXT NOT NULL,
		owner_id        TEXT NOT NULL,
		state           TEXT NOT NULL DEFAULT 'running',
		reason          TEXT NOT NULL DEFAULT '',
		error           TEXT NOT NULL DEFAULT '',
		total_deleted   INTEGER NOT NULL DEFAULT 0,
		total_processed INTEGER NOT NULL DEFAULT 0,
		boundary        TEXT NOT NULL DEFAULT '',
		started_at      INTEGER NOT NULL,
		updated_at      INTEGER NOT NULL,
		finished_at     INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

	CREATE TABLE IF NOT EXISTS deletions (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id     TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		message_id TEXT NOT NULL,
		outcome    TEXT NOT NULL,
		error      TEXT,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_deletions_run ON deletions(run_id, id);

	CREATE TABLE IF NOT EXISTS meta (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	INSERT OR IGNORE INTO meta(key, value) VALUES ('schema_version', '1');
	`

	if _, err := j.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to execute migration v1: %w", err)
	}
	return nil
}

func (j *Journal) migrateV2() error {
	var version string
	err := j.db.QueryRow(`SELECT value FROM meta WHERE key = 'schema_version'`).Scan(&version)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if version >= "2" {
		return nil
	}

	// Fetch outcome counters per run.
	for _, stmt := range []string{
		`ALTER TABLE runs ADD COLUMN fetch_retries INTEGER NOT NULL DEFAULT 0`,
		`ALTER TABLE runs ADD COLUMN rate_limited INTEGER NOT NULL DEFAULT 0`,
	} {
		if _, err := j.db.Exec(stmt); err != nil && !isDuplicateColumn(err) {
			return fmt.Errorf("failed to execute migration v2: %w", err)
		}
	}

	if _, err := j.db.Exec(`INSERT OR REPLACE INTO meta(key, value) VALUES ('schema_version', '2')`); err != nil {
		return fmt.Errorf("failed to update schema version: %w", err)
	}
	return nil
}

// isDuplicateColumn reports whether an ALTER TABLE failed only because a
// previous, interrupted upgrade already added the column.
func isDuplicateColumn(err error) bool {
	return strings.Contains(err.Error(), "duplicate column name")
}
