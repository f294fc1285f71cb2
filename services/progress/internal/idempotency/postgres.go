package idempotency

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/example/learning-platform/services/progress/internal/events"
)

// postgresStore claims ids in processed_events (created by store.Schema).
type postgresStore struct {
	pool *pgxpool.Pool
	ttl  time.Duration
}

// Check inserts the claim, or re-takes a row older than the TTL. No
// affected row means a live claim exists.
func (s *postgresStore) Check(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return false, ErrEmptyID
	}
	const q = `INSERT INTO processed_events (event_id, subject, created_at)
	           VALUES ($1, $2, now())
	           ON CONFLICT (event_id) DO UPDATE SET created_at = now()
	           WHERE processed_events.created_at < now() - make_interval(secs => $3)`
	tag, err := s.pool.Exec(ctx, q, eventID, events.SubjectPersist, s.ttl.Seconds())
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 0, nil
}

func (s *postgresStore) Forget(ctx context.Context, eventID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM processed_events WHERE event_id = $1`, eventID)
	return err
}
