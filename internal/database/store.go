// Package database persists course entities. Queries talks to Postgres,
// MemoryStore keeps the same semantics in process for tests and db-less runs.
package database

import (
	"context"
	"errors"

	"github.com/NeroQue/cartridge-import-backend/internal/models"
	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when no active entity matches
	ErrNotFound = errors.New("entity not found")
	// ErrConflict means another writer created the active entity first
	ErrConflict = errors.New("active entity already exists")
)

// Store is everything the import pipeline needs from persistence
type Store interface {
	FindActive(ctx context.Context, courseID uuid.UUID, kind models.RecordKind, migrationID string) (*models.Entity, error)
	Supersede(ctx context.Context, e *models.Entity) (bool, error)
	ListEntities(ctx context.Context, courseID uuid.UUID, filter models.EntityFilter) ([]*models.Entity, error)
	CountEntities(ctx context.Context, courseID uuid.UUID, state models.EntityState) (map[models.RecordKind]int, error)
	PurgeInactive(ctx context.Context, courseID uuid.UUID) (int64, error)
}

var (
	_ Store = (*Queries)(nil)
	_ Store = (*MemoryStore)(nil)
)
