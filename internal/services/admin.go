package services

import (
	"context"
	"fmt"

	"github.com/NeroQue/cartridge-import-backend/internal/database"
	"github.com/NeroQue/cartridge-import-backend/internal/logger"
	"github.com/NeroQue/cartridge-import-backend/internal/models"
	"github.com/google/uuid"
)

// AdminService handles maintenance operations on imported courses
type AdminService struct {
	Store database.Store
	Log   *logger.Logger
}

// NewAdminService creates admin service with store dependency
func NewAdminService(store database.Store, log *logger.Logger) *AdminService {
	if log == nil {
		log = logger.Nop()
	}
	return &AdminService{Store: store, Log: log}
}

// CourseStats counts entities per kind, split by state
type CourseStats struct {
	Active   map[models.RecordKind]int `json:"active"`
	Inactive map[models.RecordKind]int `json:"inactive"`
}

// GetCourseStats returns basic stats about a course's contents
func (s *AdminService) GetCourseStats(ctx context.Context, courseID uuid.UUID) (*CourseStats, error) {
	active, err := s.Store.CountEntities(ctx, courseID, models.StateActive)
	if err != nil {
		return nil, fmt.Errorf("failed to count active entities: %w", err)
	}
	inactive, err := s.Store.CountEntities(ctx, courseID, models.StateInactive)
	if err != nil {
		return nil, fmt.Errorf("failed to count inactive entities: %w", err)
	}
	return &CourseStats{Active: active, Inactive: inactive}, nil
}

// PurgeHistory drops superseded copies left behind by earlier imports
func (s *AdminService) PurgeHistory(ctx context.Context, courseID uuid.UUID) (int64, error) {
	s.Log.Info("purging inactive entities", "course_id", courseID)

	removed, err := s.Store.PurgeInactive(ctx, courseID)
	if err != nil {
		return 0, fmt.Errorf("failed to purge inactive entities: %w", err)
	}

	s.Log.Info("purge completed", "course_id", courseID, "removed", removed)
	return removed, nil
}
