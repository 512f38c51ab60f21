package database

import (
	"context"
	"fmt"
)

// one active row per (course, kind, migration id), any number of inactive ones
const schemaSQL = `
CREATE TABLE IF NOT EXISTS course_entities (
    id           UUID PRIMARY KEY,
    course_id    UUID        NOT NULL,
    kind         TEXT        NOT NULL,
    migration_id TEXT        NOT NULL,
    state        TEXT        NOT NULL DEFAULT 'active',
    generation   INTEGER     NOT NULL DEFAULT 1,
    run_id       UUID        NOT NULL,
    title        TEXT        NOT NULL DEFAULT '',
    parent_id    UUID        NULL REFERENCES course_entities (id),
    position     INTEGER     NOT NULL DEFAULT 0,
    indent       INTEGER     NOT NULL DEFAULT 0,
    target_kind  TEXT        NULL,
    target_id    UUID        NULL,
    attributes   JSONB       NOT NULL DEFAULT '{}'::jsonb,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS course_entities_active_identity
    ON course_entities (course_id, kind, migration_id)
    WHERE state = 'active';

CREATE INDEX IF NOT EXISTS course_entities_course_kind
    ON course_entities (course_id, kind);
`

// CreateSchema creates the entity table and its indexes if missing
func (q *Queries) CreateSchema(ctx context.Context) error {
	if _, err := q.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("postgres: create schema: %w", err)
	}
	return nil
}
