package store

import (
	"time"
)

// Pass outcomes.
const (
	PassOK      = "ok"
	PassPartial = "partial"
	PassSkipped = "skipped"
)

// Notification outcomes.
const (
	NotificationSent   = "sent"
	NotificationFailed = "failed"
)

// Store is the persistence interface for the pass audit log.
// Defined at the consumer side per Go conventions.
type Store interface {
	// Passes
	RecordPass(p *PassRecord) error
	ListPasses(limit int) ([]PassRecord, error)

	// Notifications
	RecordNotification(n *NotificationRecord) error
	ListNotifications(f NotificationFilter) ([]NotificationRecord, error)

	// Maintenance
	Cleanup(retention time.Duration) (int64, error)
	Close() error
}

// PassRecord is one polling pass.
type PassRecord struct {
	ID         string
	Status     string
	Fetched    int
	Notified   int
	Rearmed    int
	Pruned     int
	Failed     int
	Malformed  int
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// NotificationRecord is one delivery attempt for a task.
type NotificationRecord struct {
	ID        int64
	PassID    string
	TaskID    string
	Title     string
	Deadline  time.Time
	Status    string
	Error     string
	CreatedAt time.Time
}

// NotificationFilter specifies criteria for listing notifications.
type NotificationFilter struct {
	TaskID string
	Status string
	Since  time.Time
	Limit  int
}
