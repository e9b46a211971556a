package store

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedPass(t *testing.T, s *SQLiteStore, id string, startedAt time.Time) {
	t.Helper()
	require.NoError(t, s.RecordPass(&PassRecord{
		ID:         id,
		Status:     PassOK,
		StartedAt:  startedAt,
		FinishedAt: startedAt.Add(time.Second),
	}))
}

func TestSQLiteStore_Migration_CreatesTablesAndVersion(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	var version int
	err := s.db.QueryRow("SELECT MAX(version) FROM schema_version").Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, len(migrations), version)
}

func TestSQLiteStore_Migration_IsIdempotent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nudge.db")
	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	seedPass(t, s, "p1", time.Now())
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(path)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	passes, err := s.ListPasses(0)
	require.NoError(t, err)
	assert.Len(t, passes, 1)
}

func TestSQLiteStore_RecordAndListPasses(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	started := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	p := &PassRecord{
		ID:         "pass-1",
		Status:     PassPartial,
		Fetched:    4,
		Notified:   1,
		Rearmed:    1,
		Pruned:     2,
		Failed:     1,
		Malformed:  1,
		StartedAt:  started,
		FinishedAt: started.Add(250 * time.Millisecond),
	}
	require.NoError(t, s.RecordPass(p))

	passes, err := s.ListPasses(10)
	require.NoError(t, err)
	require.Len(t, passes, 1)

	got := passes[0]
	assert.Equal(t, "pass-1", got.ID)
	assert.Equal(t, PassPartial, got.Status)
	assert.Equal(t, 4, got.Fetched)
	assert.Equal(t, 1, got.Notified)
	assert.Equal(t, 2, got.Pruned)
	assert.True(t, got.StartedAt.Equal(started))
	assert.True(t, got.FinishedAt.Equal(started.Add(250*time.Millisecond)))
}

func TestSQLiteStore_RecordPass_UpdatesExisting(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	started := time.Now().Truncate(time.Second)
	p := &PassRecord{ID: "pass-1", Status: PassOK, StartedAt: started}
	require.NoError(t, s.RecordPass(p))

	p.Status = PassSkipped
	p.Error = "fetching tasks: unexpected status 502"
	p.FinishedAt = started.Add(time.Second)
	require.NoError(t, s.RecordPass(p))

	passes, err := s.ListPasses(0)
	require.NoError(t, err)
	require.Len(t, passes, 1)
	assert.Equal(t, PassSkipped, passes[0].Status)
	assert.Equal(t, "fetching tasks: unexpected status 502", passes[0].Error)
	assert.False(t, passes[0].FinishedAt.IsZero())
}

func TestSQLiteStore_ListPasses_MostRecentFirstWithLimit(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	base := time.Now()
	for i := range 5 {
		seedPass(t, s, fmt.Sprintf("pass-%d", i), base.Add(time.Duration(i)*time.Millisecond))
	}

	passes, err := s.ListPasses(2)
	require.NoError(t, err)
	require.Len(t, passes, 2)
	assert.Equal(t, "pass-4", passes[0].ID)
	assert.Equal(t, "pass-3", passes[1].ID)
}

func TestSQLiteStore_RecordAndListNotifications(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	now := time.Now()
	seedPass(t, s, "pass-1", now)

	deadline := time.Date(2026, 5, 5, 0, 0, 0, 0, time.UTC)
	n := &NotificationRecord{
		PassID:   "pass-1",
		TaskID:   "1",
		Title:    "Todo 1",
		Deadline: deadline,
		Status:   NotificationSent,
	}
	require.NoError(t, s.RecordNotification(n))
	assert.NotZero(t, n.ID)
	assert.False(t, n.CreatedAt.IsZero(), "created_at should be stamped")

	got, err := s.ListNotifications(NotificationFilter{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "pass-1", got[0].PassID)
	assert.Equal(t, "Todo 1", got[0].Title)
	assert.True(t, got[0].Deadline.Equal(deadline))
	assert.Equal(t, NotificationSent, got[0].Status)
}

func TestSQLiteStore_RecordNotification_RequiresPass(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	err := s.RecordNotification(&NotificationRecord{PassID: "missing", TaskID: "1", Status: NotificationSent})
	assert.Error(t, err)
}

func TestSQLiteStore_ListNotifications_Filters(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	base := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	seedPass(t, s, "pass-1", base)

	records := []NotificationRecord{
		{TaskID: "1", Status: NotificationSent, CreatedAt: base},
		{TaskID: "2", Status: NotificationFailed, Error: "ntfy: unexpected status 500", CreatedAt: base.Add(time.Minute)},
		{TaskID: "2", Status: NotificationSent, CreatedAt: base.Add(2 * time.Minute)},
	}
	for i := range records {
		records[i].PassID = "pass-1"
		require.NoError(t, s.RecordNotification(&records[i]))
	}

	byTask, err := s.ListNotifications(NotificationFilter{TaskID: "2"})
	require.NoError(t, err)
	require.Len(t, byTask, 2)
	assert.Equal(t, NotificationSent, byTask[0].Status, "most recent first")

	failed, err := s.ListNotifications(NotificationFilter{Status: NotificationFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "ntfy: unexpected status 500", failed[0].Error)

	all, err := s.ListNotifications(NotificationFilter{Status: "all"})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	recent, err := s.ListNotifications(NotificationFilter{Since: base.Add(30 * time.Second)})
	require.NoError(t, err)
	assert.Len(t, recent, 2)

	limited, err := s.ListNotifications(NotificationFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "2", limited[0].TaskID)
}

func TestSQLiteStore_Cleanup_RemovesOldPassesAndNotifications(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	now := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	seedPass(t, s, "old", now.Add(-48*time.Hour))
	seedPass(t, s, "new", now.Add(-time.Hour))
	require.NoError(t, s.RecordNotification(&NotificationRecord{PassID: "old", TaskID: "1", Status: NotificationSent}))
	require.NoError(t, s.RecordNotification(&NotificationRecord{PassID: "new", TaskID: "2", Status: NotificationSent}))

	removed, err := s.Cleanup(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	passes, err := s.ListPasses(0)
	require.NoError(t, err)
	require.Len(t, passes, 1)
	assert.Equal(t, "new", passes[0].ID)

	notes, err := s.ListNotifications(NotificationFilter{})
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "2", notes[0].TaskID)
}

func TestSQLiteStore_Cleanup_ZeroRetentionKeepsEverything(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	seedPass(t, s, "ancient", time.Now().Add(-365*24*time.Hour))

	removed, err := s.Cleanup(0)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestSQLiteStore_StartCleanupLoop_StopsOnDone(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	seedPass(t, s, "old", time.Now().Add(-48*time.Hour))

	done := make(chan struct{})
	s.StartCleanupLoop(time.Hour, 10*time.Millisecond, done)
	defer close(done)

	require.Eventually(t, func() bool {
		passes, err := s.ListPasses(0)
		return err == nil && len(passes) == 0
	}, 2*time.Second, 20*time.Millisecond)
}

func TestNewSQLiteStore_SetsFilePermissions(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	dbPath := filepath.Join(dir, "subdir", "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	dirInfo, err := os.Stat(filepath.Join(dir, "subdir"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0700), dirInfo.Mode().Perm(), "directory should be 0700")

	fileInfo, err := os.Stat(dbPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), fileInfo.Mode().Perm(), "database file should be 0600")
}

func TestNewSQLiteStore_FixesLoosePermissions(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	dbPath := filepath.Join(dir, "loose.db")

	require.NoError(t, os.WriteFile(dbPath, nil, 0644))
	require.NoError(t, os.Chmod(dbPath, 0644))

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	info, err := os.Stat(dbPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm(), "permissions should be tightened to 0600")
}
