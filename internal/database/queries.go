package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/NeroQue/cartridge-import-backend/internal/models"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// postgres unique_violation
const uniqueViolation = "23505"

const entityColumns = `id, course_id, kind, migration_id, state, generation, run_id, title,
    parent_id, position, indent, target_kind, target_id, attributes, created_at`

// Queries is the Postgres entity store
type Queries struct {
	db *sql.DB
}

// New wraps an open database handle
func New(db *sql.DB) *Queries {
	return &Queries{db: db}
}

// Open connects to Postgres and checks the connection
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return db, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntity(row rowScanner) (*models.Entity, error) {
	var (
		e          models.Entity
		kind       string
		state      string
		targetKind sql.NullString
		targetID   uuid.NullUUID
		attrs      []byte
	)
	if err := row.Scan(
		&e.ID,
		&e.CourseID,
		&kind,
		&e.MigrationID,
		&state,
		&e.Generation,
		&e.RunID,
		&e.Title,
		&e.ParentID,
		&e.Position,
		&e.Indent,
		&targetKind,
		&targetID,
		&attrs,
		&e.CreatedAt,
	); err != nil {
		return nil, err
	}

	e.Kind = models.RecordKind(kind)
	e.State = models.EntityState(state)
	if targetKind.Valid && targetID.Valid {
		e.Target = &models.ContentRef{Kind: models.RecordKind(targetKind.String), ID: targetID.UUID}
	}
	if len(attrs) > 0 {
		if err := json.Unmarshal(attrs, &e.Attributes); err != nil {
			return nil, fmt.Errorf("decode attributes: %w", err)
		}
	}
	return &e, nil
}

// FindActive returns the active entity for a migration id
func (q *Queries) FindActive(ctx context.Context, courseID uuid.UUID, kind models.RecordKind, migrationID string) (*models.Entity, error) {
	const query = `SELECT ` + entityColumns + ` FROM course_entities
WHERE course_id = $1 AND kind = $2 AND migration_id = $3 AND state = 'active'`

	e, err := scanEntity(q.db.QueryRowContext(ctx, query, courseID, string(kind), migrationID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("postgres: find active entity: %w", err)
	}
	return e, nil
}

// Supersede marks the current active entity for e's identity inactive and
// inserts e as the next generation, all in one transaction. It reports
// whether an older entity was superseded.
func (q *Queries) Supersede(ctx context.Context, e *models.Entity) (superseded bool, err error) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	attrs, err := json.Marshal(attributesOrEmpty(e.Attributes))
	if err != nil {
		return false, fmt.Errorf("encode attributes: %w", err)
	}

	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("postgres: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const retire = `UPDATE course_entities SET state = 'inactive'
WHERE course_id = $1 AND kind = $2 AND migration_id = $3 AND state = 'active'
RETURNING generation`

	var previous int
	err = tx.QueryRowContext(ctx, retire, e.CourseID, string(e.Kind), e.MigrationID).Scan(&previous)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		err = nil
	case err != nil:
		return false, fmt.Errorf("postgres: retire previous entity: %w", err)
	default:
		superseded = true
	}

	e.State = models.StateActive
	e.Generation = previous + 1

	var targetKind sql.NullString
	var targetID uuid.NullUUID
	if e.Target != nil {
		targetKind = sql.NullString{String: string(e.Target.Kind), Valid: true}
		targetID = uuid.NullUUID{UUID: e.Target.ID, Valid: true}
	}

	const insert = `INSERT INTO course_entities (` + entityColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	if _, err = tx.ExecContext(ctx, insert,
		e.ID,
		e.CourseID,
		string(e.Kind),
		e.MigrationID,
		string(e.State),
		e.Generation,
		e.RunID,
		e.Title,
		e.ParentID,
		e.Position,
		e.Indent,
		targetKind,
		targetID,
		attrs,
		e.CreatedAt,
	); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return false, fmt.Errorf("%w: %s %s", ErrConflict, e.Kind, e.MigrationID)
		}
		return false, fmt.Errorf("postgres: insert entity: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return false, fmt.Errorf("postgres: commit tx: %w", err)
	}
	return superseded, nil
}

// ListEntities returns a course's entities, optionally narrowed by kind and state
func (q *Queries) ListEntities(ctx context.Context, courseID uuid.UUID, filter models.EntityFilter) ([]*models.Entity, error) {
	const query = `SELECT ` + entityColumns + ` FROM course_entities
WHERE course_id = $1
  AND ($2::text[] IS NULL OR kind = ANY($2::text[]))
  AND ($3 = '' OR state = $3)
ORDER BY kind, generation, position, created_at`

	var kinds []string
	for _, k := range filter.Kinds {
		kinds = append(kinds, string(k))
	}

	rows, err := q.db.QueryContext(ctx, query, courseID, pq.Array(kinds), string(filter.State))
	if err != nil {
		return nil, fmt.Errorf("postgres: list entities: %w", err)
	}
	defer rows.Close()

	var out []*models.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan entity: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iter entities: %w", err)
	}
	return out, nil
}

// CountEntities tallies a course's entities per kind, state "" counts all
func (q *Queries) CountEntities(ctx context.Context, courseID uuid.UUID, state models.EntityState) (map[models.RecordKind]int, error) {
	const query = `SELECT kind, count(*) FROM course_entities
WHERE course_id = $1 AND ($2 = '' OR state = $2)
GROUP BY kind`

	rows, err := q.db.QueryContext(ctx, query, courseID, string(state))
	if err != nil {
		return nil, fmt.Errorf("postgres: count entities: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.RecordKind]int)
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("postgres: scan count: %w", err)
		}
		counts[models.RecordKind(kind)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iter counts: %w", err)
	}
	return counts, nil
}

// PurgeInactive deletes superseded copies that no active entity uses as a
// parent. Returns how many rows went away.
func (q *Queries) PurgeInactive(ctx context.Context, courseID uuid.UUID) (int64, error) {
	const query = `DELETE FROM course_entities e
WHERE e.course_id = $1 AND e.state = 'inactive'
  AND NOT EXISTS (SELECT 1 FROM course_entities c WHERE c.parent_id = e.id AND c.state = 'active')`

	res, err := q.db.ExecContext(ctx, query, courseID)
	if err != nil {
		return 0, fmt.Errorf("postgres: purge inactive: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("postgres: rows affected (purge): %w", err)
	}
	return n, nil
}

func attributesOrEmpty(attrs map[string]any) map[string]any {
	if attrs == nil {
		return map[string]any{}
	}
	return attrs
}
