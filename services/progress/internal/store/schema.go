package store

// Schema is the idempotent DDL for the progress service tables.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS lesson_progress (
  user_id                text        NOT NULL,
  content_id             text        NOT NULL,
  last_position_seconds  integer     NOT NULL DEFAULT 0 CHECK (last_position_seconds >= 0),
  total_duration_seconds integer     NOT NULL DEFAULT 0 CHECK (total_duration_seconds >= 0),
  completion_percentage  integer     NOT NULL DEFAULT 0 CHECK (completion_percentage BETWEEN 0 AND 100),
  is_completed           boolean     NOT NULL DEFAULT false,
  completed_at           timestamptz,
  last_accessed_at       timestamptz NOT NULL DEFAULT now(),
  client_ts_ms           bigint      NOT NULL DEFAULT 0,
  PRIMARY KEY (user_id, content_id)
)`,
	`CREATE INDEX IF NOT EXISTS lesson_progress_recent_idx
  ON lesson_progress (user_id, last_accessed_at DESC, content_id DESC)`,
	`CREATE TABLE IF NOT EXISTS lessons (
  id               text    PRIMARY KEY,
  module_id        text    NOT NULL,
  title            text    NOT NULL,
  video_url        text,
  position         integer NOT NULL DEFAULT 0,
  duration_minutes integer NOT NULL DEFAULT 0
)`,
	`CREATE INDEX IF NOT EXISTS lessons_module_position_idx ON lessons (module_id, position)`,
	`CREATE TABLE IF NOT EXISTS lesson_ratings (
  lesson_id  text        NOT NULL,
  user_id    text        NOT NULL,
  rating     smallint    NOT NULL CHECK (rating BETWEEN 1 AND 5),
  created_at timestamptz NOT NULL DEFAULT now(),
  updated_at timestamptz NOT NULL DEFAULT now(),
  PRIMARY KEY (lesson_id, user_id)
)`,
	`CREATE TABLE IF NOT EXISTS processed_events (
  event_id   text        PRIMARY KEY,
  subject    text        NOT NULL DEFAULT '',
  created_at timestamptz NOT NULL DEFAULT now()
)`,
}
