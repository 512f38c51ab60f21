package services

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/NeroQue/cartridge-import-backend/internal/database"
	"github.com/NeroQue/cartridge-import-backend/internal/logger"
	"github.com/NeroQue/cartridge-import-backend/internal/models"
	"github.com/google/uuid"
)

// ErrInvalidFilter is returned for unknown kinds or states in a listing
var ErrInvalidFilter = errors.New("invalid entity filter")

// CourseService reads what imports left in a course
type CourseService struct {
	Store database.Store
	Log   *logger.Logger
}

// NewCourseService creates service with store dependency
func NewCourseService(store database.Store, log *logger.Logger) *CourseService {
	if log == nil {
		log = logger.Nop()
	}
	return &CourseService{Store: store, Log: log}
}

// ListEntities returns a course's entities, filtered by kind and state
func (s *CourseService) ListEntities(ctx context.Context, courseID uuid.UUID, filter models.EntityFilter) ([]*models.Entity, error) {
	for _, k := range filter.Kinds {
		if !k.Valid() {
			return nil, fmt.Errorf("%w: unknown entity kind %q", ErrInvalidFilter, k)
		}
	}
	switch filter.State {
	case "", models.StateActive, models.StateInactive:
	default:
		return nil, fmt.Errorf("%w: unknown entity state %q", ErrInvalidFilter, filter.State)
	}

	entities, err := s.Store.ListEntities(ctx, courseID, filter)
	if err != nil {
		return nil, fmt.Errorf("error retrieving entities: %w", err)
	}
	if entities == nil {
		entities = []*models.Entity{}
	}
	return entities, nil
}

// GetOutline builds the active module tree of a course
func (s *CourseService) GetOutline(ctx context.Context, courseID uuid.UUID) ([]*models.ModuleOutline, error) {
	entities, err := s.Store.ListEntities(ctx, courseID, models.EntityFilter{
		Kinds: []models.RecordKind{models.KindModule, models.KindContentTag},
		State: models.StateActive,
	})
	if err != nil {
		return nil, fmt.Errorf("error retrieving modules: %w", err)
	}

	byModule := make(map[uuid.UUID]*models.ModuleOutline)
	var outline []*models.ModuleOutline
	for _, e := range entities {
		if e.Kind == models.KindModule {
			m := &models.ModuleOutline{Module: e, Items: []*models.Entity{}}
			byModule[e.ID] = m
			outline = append(outline, m)
		}
	}
	for _, e := range entities {
		if e.Kind != models.KindContentTag || !e.ParentID.Valid {
			continue
		}
		m, ok := byModule[e.ParentID.UUID]
		if !ok {
			// parent was superseded by a later selective import
			s.Log.Debug("content tag without active module", "tag", e.MigrationID)
			continue
		}
		m.Items = append(m.Items, e)
	}

	sort.SliceStable(outline, func(i, j int) bool { return outline[i].Module.Position < outline[j].Module.Position })
	for _, m := range outline {
		sort.SliceStable(m.Items, func(i, j int) bool { return m.Items[i].Position < m.Items[j].Position })
	}
	if outline == nil {
		outline = []*models.ModuleOutline{}
	}
	return outline, nil
}
