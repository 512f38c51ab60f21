package database

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/NeroQue/cartridge-import-backend/internal/models"
	"github.com/google/uuid"
)

// MemoryStore keeps entities in process. Same rules as the Postgres store:
// one active entity per identity, supersede never deletes.
type MemoryStore struct {
	mu       sync.RWMutex
	entities []*models.Entity
	// FailOn lets tests make Supersede fail for chosen migration ids
	FailOn map[string]error
}

// NewMemoryStore creates empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) FindActive(ctx context.Context, courseID uuid.UUID, kind models.RecordKind, migrationID string) (*models.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if e := s.activeLocked(courseID, kind, migrationID); e != nil {
		return cloneEntity(e), nil
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) Supersede(ctx context.Context, e *models.Entity) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := s.FailOn[e.MigrationID]; err != nil {
		return false, fmt.Errorf("memory: supersede %s: %w", e.MigrationID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	previous := 0
	superseded := false
	if old := s.activeLocked(e.CourseID, e.Kind, e.MigrationID); old != nil {
		old.State = models.StateInactive
		previous = old.Generation
		superseded = true
	}
	e.State = models.StateActive
	e.Generation = previous + 1
	s.entities = append(s.entities, cloneEntity(e))
	return superseded, nil
}

func (s *MemoryStore) ListEntities(ctx context.Context, courseID uuid.UUID, filter models.EntityFilter) ([]*models.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Entity
	for _, e := range s.entities {
		if e.CourseID == courseID && filter.Matches(e) {
			out = append(out, cloneEntity(e))
		}
	}
	// same ordering as the sql store
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		if a.Generation != b.Generation {
			return a.Generation < b.Generation
		}
		return a.Position < b.Position
	})
	return out, nil
}

func (s *MemoryStore) CountEntities(ctx context.Context, courseID uuid.UUID, state models.EntityState) (map[models.RecordKind]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[models.RecordKind]int)
	for _, e := range s.entities {
		if e.CourseID == courseID && (state == "" || e.State == state) {
			counts[e.Kind]++
		}
	}
	return counts, nil
}

func (s *MemoryStore) PurgeInactive(ctx context.Context, courseID uuid.UUID) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	activeParents := make(map[uuid.UUID]bool)
	for _, e := range s.entities {
		if e.IsActive() && e.ParentID.Valid {
			activeParents[e.ParentID.UUID] = true
		}
	}

	kept := s.entities[:0]
	var removed int64
	for _, e := range s.entities {
		if e.CourseID == courseID && !e.IsActive() && !activeParents[e.ID] {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	s.entities = kept
	return removed, nil
}

func (s *MemoryStore) activeLocked(courseID uuid.UUID, kind models.RecordKind, migrationID string) *models.Entity {
	for _, e := range s.entities {
		if e.CourseID == courseID && e.Kind == kind && e.MigrationID == migrationID && e.IsActive() {
			return e
		}
	}
	return nil
}

// cloneEntity copies the entity so callers can't reach into the store
func cloneEntity(e *models.Entity) *models.Entity {
	c := *e
	if e.Target != nil {
		t := *e.Target
		c.Target = &t
	}
	if e.Attributes != nil {
		c.Attributes = make(map[string]any, len(e.Attributes))
		for k, v := range e.Attributes {
			c.Attributes[k] = v
		}
	}
	return &c
}
