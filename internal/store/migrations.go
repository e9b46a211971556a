package store

// migrations are applied in order; index i is schema version i+1.
var migrations = []string{
	`CREATE TABLE passes (
		id          TEXT PRIMARY KEY,
		status      TEXT NOT NULL,
		fetched     INTEGER NOT NULL DEFAULT 0,
		notified    INTEGER NOT NULL DEFAULT 0,
		rearmed     INTEGER NOT NULL DEFAULT 0,
		pruned      INTEGER NOT NULL DEFAULT 0,
		failed      INTEGER NOT NULL DEFAULT 0,
		malformed   INTEGER NOT NULL DEFAULT 0,
		error       TEXT NOT NULL DEFAULT '',
		started_at  TEXT NOT NULL,
		finished_at TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX idx_passes_started_at ON passes(started_at);`,

	`CREATE TABLE notifications (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		pass_id    TEXT NOT NULL REFERENCES passes(id) ON DELETE CASCADE,
		task_id    TEXT NOT NULL,
		title      TEXT NOT NULL DEFAULT '',
		deadline   TEXT NOT NULL DEFAULT '',
		status     TEXT NOT NULL,
		error      TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);
	CREATE INDEX idx_notifications_task_id ON notifications(task_id);
	CREATE INDEX idx_notifications_created_at ON notifications(created_at);`,
}
