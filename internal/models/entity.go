package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EntityState separates the current generation of an entity from the copies
// left behind by earlier imports
type EntityState string

const (
	StateActive   EntityState = "active"   // the one winner per (course, kind, migration id)
	StateInactive EntityState = "inactive" // superseded by a later import
)

// ContentRef is the resolved target of a content tag or assignment. Kind is
// restricted to the targetable kinds, see ValidateTargetKind.
type ContentRef struct {
	Kind RecordKind `json:"kind"`
	ID   uuid.UUID  `json:"id"`
}

// ValidateTargetKind rejects kinds a content tag can't point at
func ValidateTargetKind(kind RecordKind) error {
	switch kind {
	case KindAttachment, KindDiscussionTopic, KindQuiz, KindAssignment, KindExternalTool:
		return nil
	case KindModule, KindContentTag, KindQuestionBank, KindAssessmentQuestion:
		return fmt.Errorf("%s cannot be the target of a content reference", kind)
	default:
		return fmt.Errorf("unknown content kind %q", kind)
	}
}

// Entity is the stored, identity-bearing object inside a course
type Entity struct {
	ID          uuid.UUID      `json:"id"`
	CourseID    uuid.UUID      `json:"course_id"`
	Kind        RecordKind     `json:"kind"`
	MigrationID string         `json:"migration_id"`
	State       EntityState    `json:"state"`
	Generation  int            `json:"generation"` // 1 on first import, +1 per supersede
	RunID       uuid.UUID      `json:"import_run_id"`
	Title       string         `json:"title"`
	ParentID    uuid.NullUUID  `json:"parent_id"`
	Position    int            `json:"position,omitempty"`
	Indent      int            `json:"indent,omitempty"`
	Target      *ContentRef    `json:"target,omitempty"`
	Attributes  map[string]any `json:"attributes,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// IsActive is a small helper for filtering
func (e *Entity) IsActive() bool {
	return e.State == StateActive
}

// EntityFilter narrows entity listings
type EntityFilter struct {
	Kinds []RecordKind
	State EntityState // empty means any state
}

// Matches applies the filter to a single entity
func (f EntityFilter) Matches(e *Entity) bool {
	if f.State != "" && e.State != f.State {
		return false
	}
	if len(f.Kinds) == 0 {
		return true
	}
	for _, k := range f.Kinds {
		if e.Kind == k {
			return true
		}
	}
	return false
}

// ModuleOutline is an active module with its active items in position order
type ModuleOutline struct {
	Module *Entity   `json:"module"`
	Items  []*Entity `json:"items"`
}
