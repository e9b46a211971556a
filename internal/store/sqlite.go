package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const (
	// Fixed width so stored timestamps sort lexically.
	timeFormat = "2006-01-02T15:04:05.000000000Z07:00"
	memoryDSN  = ":memory:"
)

var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, zero CGO).
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens (or creates) a SQLite database and runs migrations.
// The database file is created with 0600 permissions and its parent directory with 0700.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path != memoryDSN {
		if err := prepareFile(path); err != nil {
			return nil, err
		}
	}

	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite handles one writer at a time
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

func prepareFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating database directory: %w", err)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0600)
		if err != nil {
			return fmt.Errorf("creating database file: %w", err)
		}
		_ = f.Close()
		return nil
	}

	if err := os.Chmod(path, 0600); err != nil {
		return fmt.Errorf("restricting database permissions: %w", err)
	}
	return nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at TEXT NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	var current int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version")
	if err := row.Scan(&current); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	for i := current; i < len(migrations); i++ {
		slog.Info("applying migration", "version", i+1)
		if _, err := s.db.Exec(migrations[i]); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_version (version) VALUES (?)", i+1); err != nil {
			return fmt.Errorf("recording migration %d: %w", i+1, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Passes ---

// RecordPass inserts p, or updates it when a pass with the same ID exists.
func (s *SQLiteStore) RecordPass(p *PassRecord) error {
	_, err := s.db.Exec(`INSERT INTO passes (id, status, fetched, notified, rearmed, pruned,
		failed, malformed, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status, fetched = excluded.fetched,
			notified = excluded.notified, rearmed = excluded.rearmed,
			pruned = excluded.pruned, failed = excluded.failed,
			malformed = excluded.malformed, error = excluded.error,
			finished_at = excluded.finished_at`,
		p.ID, p.Status, p.Fetched, p.Notified, p.Rearmed, p.Pruned,
		p.Failed, p.Malformed, p.Error,
		formatTime(p.StartedAt), formatTime(p.FinishedAt))
	if err != nil {
		return fmt.Errorf("recording pass: %w", err)
	}
	return nil
}

// ListPasses returns the most recent passes first.
func (s *SQLiteStore) ListPasses(limit int) ([]PassRecord, error) {
	query := `SELECT id, status, fetched, notified, rearmed, pruned, failed, malformed,
		error, started_at, finished_at FROM passes ORDER BY started_at DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing passes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var passes []PassRecord
	for rows.Next() {
		var p PassRecord
		var startedAt, finishedAt string
		if err := rows.Scan(&p.ID, &p.Status, &p.Fetched, &p.Notified, &p.Rearmed,
			&p.Pruned, &p.Failed, &p.Malformed, &p.Error, &startedAt, &finishedAt); err != nil {
			return nil, fmt.Errorf("scanning pass: %w", err)
		}
		p.StartedAt = parseTime(startedAt)
		p.FinishedAt = parseTime(finishedAt)
		passes = append(passes, p)
	}
	return passes, rows.Err()
}

// --- Notifications ---

// RecordNotification inserts n and sets its ID. A zero CreatedAt is stamped
// with the current time.
func (s *SQLiteStore) RecordNotification(n *NotificationRecord) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now()
	}
	res, err := s.db.Exec(`INSERT INTO notifications (pass_id, task_id, title, deadline, status, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		n.PassID, n.TaskID, n.Title, formatTime(n.Deadline), n.Status, n.Error, formatTime(n.CreatedAt))
	if err != nil {
		return fmt.Errorf("recording notification: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		n.ID = id
	}
	return nil
}

// ListNotifications returns matching notifications, most recent first.
func (s *SQLiteStore) ListNotifications(f NotificationFilter) ([]NotificationRecord, error) {
	query := "SELECT id, pass_id, task_id, title, deadline, status, error, created_at FROM notifications WHERE 1=1"
	var args []any

	if f.TaskID != "" {
		query += " AND task_id = ?"
		args = append(args, f.TaskID)
	}
	if f.Status != "" && f.Status != "all" {
		query += " AND status = ?"
		args = append(args, f.Status)
	}
	if !f.Since.IsZero() {
		query += " AND created_at >= ?"
		args = append(args, formatTime(f.Since))
	}

	query += " ORDER BY created_at DESC, id DESC"

	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing notifications: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []NotificationRecord
	for rows.Next() {
		var n NotificationRecord
		var deadline, createdAt string
		if err := rows.Scan(&n.ID, &n.PassID, &n.TaskID, &n.Title, &deadline,
			&n.Status, &n.Error, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning notification: %w", err)
		}
		n.Deadline = parseTime(deadline)
		n.CreatedAt = parseTime(createdAt)
		out = append(out, n)
	}
	return out, rows.Err()
}

// --- Maintenance ---

// Cleanup deletes passes (and their notifications) older than retention and
// returns the number of passes removed. A non-positive retention keeps
// everything.
func (s *SQLiteStore) Cleanup(retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, nil
	}
	cutoff := formatTime(s.now().Add(-retention))

	if _, err := s.db.Exec(`DELETE FROM notifications WHERE pass_id IN
		(SELECT id FROM passes WHERE started_at < ?)`, cutoff); err != nil {
		return 0, fmt.Errorf("cleaning notifications: %w", err)
	}
	res, err := s.db.Exec("DELETE FROM passes WHERE started_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleaning passes: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// StartCleanupLoop runs Cleanup every interval until done is closed.
func (s *SQLiteStore) StartCleanupLoop(retention, interval time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				n, err := s.Cleanup(retention)
				if err != nil {
					slog.Error("history cleanup failed", "error", err)
					continue
				}
				if n > 0 {
					slog.Info("history cleaned up", "passes_removed", n)
				}
			case <-done:
				return
			}
		}
	}()
}

// --- Helpers ---

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(timeFormat, s)
	return t
}
