package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/example/learning-platform/services/progress/internal/domain"
)

const lessonColumns = `id, module_id, title, COALESCE(video_url, ''), position, duration_minutes`

// PostgresLessonRepository reads lessons from Postgres.
type PostgresLessonRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresLessonRepository(pool *pgxpool.Pool) *PostgresLessonRepository {
	return &PostgresLessonRepository{pool: pool}
}

func scanLesson(row pgx.Row) (domain.Lesson, error) {
	var l domain.Lesson
	err := row.Scan(&l.ID, &l.ModuleID, &l.Title, &l.VideoURL, &l.Position, &l.DurationMinutes)
	return l, err
}

func (r *PostgresLessonRepository) ListByModule(ctx context.Context, moduleID string) ([]domain.Lesson, error) {
	q := `SELECT ` + lessonColumns + ` FROM lessons WHERE module_id=$1 ORDER BY position ASC, id ASC`
	rows, err := r.pool.Query(ctx, q, moduleID)
	if err != nil {
		return nil, fmt.Errorf("list lessons: %w", err)
	}
	defer rows.Close()

	var out []domain.Lesson
	for rows.Next() {
		l, err := scanLesson(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lesson: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *PostgresLessonRepository) Get(ctx context.Context, lessonID string) (domain.Lesson, error) {
	q := `SELECT ` + lessonColumns + ` FROM lessons WHERE id=$1`
	l, err := scanLesson(r.pool.QueryRow(ctx, q, lessonID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Lesson{}, ErrNotFound
		}
		return domain.Lesson{}, fmt.Errorf("get lesson: %w", err)
	}
	return l, nil
}
