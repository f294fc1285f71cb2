// Package store persists notifications and their per-recipient rows.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/example/learning-platform/services/notifications/internal/domain"
)

var ErrNotFound = errors.New("not found")

// Store writes a notification together with one recipient row per user.
type Store interface {
	// Create assigns ID and CreatedAt when unset. The notification and all
	// recipient rows are written atomically.
	Create(ctx context.Context, n domain.Notification, recipients []string) (domain.Notification, error)
	// ListForUser returns the newest notifications first.
	ListForUser(ctx context.Context, userID string, limit int, unreadOnly bool) ([]domain.InboxItem, error)
	// MarkRead keeps the first read time; ErrNotFound when the user was not
	// a recipient.
	MarkRead(ctx context.Context, userID, notificationID string, at time.Time) error
	UnreadCount(ctx context.Context, userID string) (int, error)
}

// Directory resolves the users of a role; an empty role means everyone.
type Directory interface {
	UserIDs(ctx context.Context, role string) ([]string, error)
}

var Schema = []string{
	`CREATE TABLE IF NOT EXISTS notifications (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		body TEXT NOT NULL DEFAULT '',
		audience TEXT NOT NULL,
		created_by TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS notification_recipients (
		notification_id TEXT NOT NULL REFERENCES notifications(id) ON DELETE CASCADE,
		user_id TEXT NOT NULL,
		read_at TIMESTAMPTZ,
		PRIMARY KEY (notification_id, user_id)
	)`,
	`CREATE INDEX IF NOT EXISTS notification_recipients_user_idx
		ON notification_recipients (user_id, read_at)`,
	`CREATE TABLE IF NOT EXISTS profiles (
		user_id TEXT PRIMARY KEY,
		role TEXT NOT NULL DEFAULT 'student'
	)`,
}

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
