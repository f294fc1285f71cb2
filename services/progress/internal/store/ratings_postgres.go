package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/example/learning-platform/services/progress/internal/domain"
)

// PostgresRatingStore persists ratings in Postgres.
type PostgresRatingStore struct {
	pool *pgxpool.Pool
}

// NewPostgresRatingStore creates a store backed by Postgres.
func NewPostgresRatingStore(pool *pgxpool.Pool) *PostgresRatingStore {
	return &PostgresRatingStore{pool: pool}
}

func (s *PostgresRatingStore) Upsert(ctx context.Context, r domain.LessonRating) (domain.LessonRating, error) {
	if err := domain.ValidateRating(r.Rating); err != nil {
		return domain.LessonRating{}, err
	}
	const q = `INSERT INTO lesson_ratings (lesson_id, user_id, rating)
	           VALUES ($1, $2, $3)
	           ON CONFLICT (lesson_id, user_id) DO UPDATE SET
	             rating = EXCLUDED.rating,
	             updated_at = now()
	           RETURNING lesson_id, user_id, rating, created_at, updated_at`
	var out domain.LessonRating
	err := s.pool.QueryRow(ctx, q, r.LessonID, r.UserID, r.Rating).
		Scan(&out.LessonID, &out.UserID, &out.Rating, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		return domain.LessonRating{}, fmt.Errorf("upsert lesson_ratings: %w", err)
	}
	return out, nil
}

func (s *PostgresRatingStore) GetSummary(ctx context.Context, lessonID string) (domain.RatingSummary, error) {
	const q = `SELECT COALESCE(AVG(rating), 0)::float8, COUNT(*)
	           FROM lesson_ratings WHERE lesson_id = $1`
	var avg float64
	var total int
	if err := s.pool.QueryRow(ctx, q, lessonID).Scan(&avg, &total); err != nil {
		return domain.RatingSummary{LessonID: lessonID}, fmt.Errorf("summary lesson_ratings: %w", err)
	}
	return domain.RatingSummary{
		LessonID:      lessonID,
		AverageRating: avg,
		TotalRatings:  total,
	}, nil
}

func (s *PostgresRatingStore) GetUserRating(ctx context.Context, lessonID, userID string) (domain.LessonRating, bool, error) {
	const q = `SELECT lesson_id, user_id, rating, created_at, updated_at
	           FROM lesson_ratings WHERE lesson_id = $1 AND user_id = $2`
	var out domain.LessonRating
	err := s.pool.QueryRow(ctx, q, lessonID, userID).
		Scan(&out.LessonID, &out.UserID, &out.Rating, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.LessonRating{}, false, nil
		}
		return domain.LessonRating{}, false, fmt.Errorf("get lesson_ratings: %w", err)
	}
	return out, true, nil
}
