package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/example/learning-platform/services/progress/internal/domain"
)

const progressColumns = `user_id, content_id, last_position_seconds, total_duration_seconds,
  completion_percentage, is_completed, completed_at, last_accessed_at, client_ts_ms`

// PostgresProgressRepository is the production Postgres-backed implementation.
type PostgresProgressRepository struct {
	db *pgxpool.Pool
}

func NewPostgresProgressRepository(db *pgxpool.Pool) *PostgresProgressRepository {
	return &PostgresProgressRepository{db: db}
}

func scanProgress(row pgx.Row) (domain.LessonProgress, error) {
	var p domain.LessonProgress
	err := row.Scan(&p.UserID, &p.ContentID, &p.LastPositionSeconds, &p.TotalDurationSeconds,
		&p.CompletionPercentage, &p.IsCompleted, &p.CompletedAt, &p.LastAccessedAt, &p.ClientTsMs)
	return p, err
}

func (r *PostgresProgressRepository) Upsert(ctx context.Context, p domain.LessonProgress) (domain.LessonProgress, error) {
	if p.UserID == "" || p.ContentID == "" {
		return domain.LessonProgress{}, domain.ErrMissingID
	}
	q := `
INSERT INTO lesson_progress (` + progressColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (user_id, content_id)
DO UPDATE SET
  last_position_seconds  = EXCLUDED.last_position_seconds,
  total_duration_seconds = EXCLUDED.total_duration_seconds,
  completion_percentage  = EXCLUDED.completion_percentage,
  is_completed           = EXCLUDED.is_completed,
  completed_at           = COALESCE(lesson_progress.completed_at, EXCLUDED.completed_at),
  last_accessed_at       = EXCLUDED.last_accessed_at,
  client_ts_ms           = EXCLUDED.client_ts_ms
WHERE lesson_progress.client_ts_ms <= EXCLUDED.client_ts_ms
   OR lesson_progress.client_ts_ms > $10
RETURNING ` + progressColumns

	out, err := scanProgress(r.db.QueryRow(ctx, q,
		p.UserID, p.ContentID, p.LastPositionSeconds, p.TotalDurationSeconds,
		p.CompletionPercentage, p.IsCompleted, p.CompletedAt, p.LastAccessedAt, p.ClientTsMs,
		domain.FutureCutoffMs(p, time.Now()),
	))
	if err != nil {
		// WHERE clause blocked the update; return the current row instead.
		if errors.Is(err, pgx.ErrNoRows) {
			cur, ok, err := r.Get(ctx, p.UserID, p.ContentID)
			if err != nil {
				return domain.LessonProgress{}, err
			}
			if !ok {
				return domain.LessonProgress{}, ErrNotFound
			}
			return cur, nil
		}
		return domain.LessonProgress{}, fmt.Errorf("upsert lesson_progress: %w", err)
	}
	return out, nil
}

func (r *PostgresProgressRepository) Get(ctx context.Context, userID, contentID string) (domain.LessonProgress, bool, error) {
	q := `SELECT ` + progressColumns + ` FROM lesson_progress WHERE user_id=$1 AND content_id=$2`
	p, err := scanProgress(r.db.QueryRow(ctx, q, userID, contentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.LessonProgress{}, false, nil
		}
		return domain.LessonProgress{}, false, fmt.Errorf("get lesson_progress: %w", err)
	}
	return p, true, nil
}

func (r *PostgresProgressRepository) GetMany(ctx context.Context, userID string, contentIDs []string) ([]domain.LessonProgress, error) {
	if len(contentIDs) == 0 {
		return nil, nil
	}
	q := `SELECT ` + progressColumns + ` FROM lesson_progress WHERE user_id=$1 AND content_id = ANY($2)`
	rows, err := r.db.Query(ctx, q, userID, contentIDs)
	if err != nil {
		return nil, fmt.Errorf("get many lesson_progress: %w", err)
	}
	defer rows.Close()
	return collectProgress(rows)
}

func (r *PostgresProgressRepository) List(ctx context.Context, userID string, limit int, cursor *ProgressCursor) ([]domain.LessonProgress, error) {
	q := `SELECT ` + progressColumns + ` FROM lesson_progress WHERE user_id=$1`
	args := []any{userID}

	if cursor != nil {
		q += " AND (last_accessed_at, content_id) < ($2, $3)"
		args = append(args, cursor.LastAccessedAt, cursor.ContentID)
	}
	q += " ORDER BY last_accessed_at DESC, content_id DESC LIMIT $" + strconv.Itoa(len(args)+1)
	args = append(args, limit)

	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list lesson_progress: %w", err)
	}
	defer rows.Close()
	return collectProgress(rows)
}

func collectProgress(rows pgx.Rows) ([]domain.LessonProgress, error) {
	var out []domain.LessonProgress
	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lesson_progress: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
