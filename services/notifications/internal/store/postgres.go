package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/example/learning-platform/services/notifications/internal/domain"
)

// PostgresStore persists notifications in Postgres.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Create(ctx context.Context, n domain.Notification, recipients []string) (domain.Notification, error) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.Notification{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const q = `INSERT INTO notifications (id, title, body, audience, created_by, created_at)
	           VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := tx.Exec(ctx, q, n.ID, n.Title, n.Body, string(n.Audience), n.CreatedBy, n.CreatedAt); err != nil {
		return domain.Notification{}, fmt.Errorf("insert notifications: %w", err)
	}

	rows := make([][]any, 0, len(recipients))
	seen := make(map[string]struct{}, len(recipients))
	for _, uid := range recipients {
		if _, dup := seen[uid]; dup {
			continue
		}
		seen[uid] = struct{}{}
		rows = append(rows, []any{n.ID, uid})
	}
	if len(rows) > 0 {
		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{"notification_recipients"},
			[]string{"notification_id", "user_id"},
			pgx.CopyFromRows(rows))
		if err != nil {
			return domain.Notification{}, fmt.Errorf("copy notification_recipients: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Notification{}, err
	}
	return n, nil
}

func (s *PostgresStore) ListForUser(ctx context.Context, userID string, limit int, unreadOnly bool) ([]domain.InboxItem, error) {
	const q = `SELECT n.id, n.title, n.body, n.audience, n.created_by, n.created_at, r.read_at
	           FROM notification_recipients r
	           JOIN notifications n ON n.id = r.notification_id
	           WHERE r.user_id = $1 AND (NOT $2 OR r.read_at IS NULL)
	           ORDER BY n.created_at DESC, n.id DESC
	           LIMIT $3`
	rows, err := s.pool.Query(ctx, q, userID, unreadOnly, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var out []domain.InboxItem
	for rows.Next() {
		var it domain.InboxItem
		var audience string
		if err := rows.Scan(&it.ID, &it.Title, &it.Body, &audience, &it.CreatedBy, &it.CreatedAt, &it.ReadAt); err != nil {
			return nil, err
		}
		it.Audience = domain.Audience(audience)
		it.UserID = userID
		out = append(out, it)
	}
	return out, rows.Err()
}

func (s *PostgresStore) MarkRead(ctx context.Context, userID, notificationID string, at time.Time) error {
	const q = `UPDATE notification_recipients
	           SET read_at = COALESCE(read_at, $3)
	           WHERE notification_id = $1 AND user_id = $2`
	tag, err := s.pool.Exec(ctx, q, notificationID, userID, at.UTC())
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) UnreadCount(ctx context.Context, userID string) (int, error) {
	const q = `SELECT COUNT(*) FROM notification_recipients WHERE user_id = $1 AND read_at IS NULL`
	var n int
	if err := s.pool.QueryRow(ctx, q, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("unread count: %w", err)
	}
	return n, nil
}

// PostgresDirectory reads roles from the profiles table.
type PostgresDirectory struct {
	pool *pgxpool.Pool
}

func NewPostgresDirectory(pool *pgxpool.Pool) *PostgresDirectory {
	return &PostgresDirectory{pool: pool}
}

func (d *PostgresDirectory) UserIDs(ctx context.Context, role string) ([]string, error) {
	const q = `SELECT user_id FROM profiles WHERE ($1 = '' OR role = $1) ORDER BY user_id`
	rows, err := d.pool.Query(ctx, q, role)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan profiles: %w", err)
	}
	return ids, nil
}
