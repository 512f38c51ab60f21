package merge

import (
	"github.com/NeroQue/cartridge-import-backend/internal/models"
	"github.com/google/uuid"
)

// Report summarizes one merge run
type Report struct {
	RunID      uuid.UUID                 `json:"import_run_id"`
	CourseID   uuid.UUID                 `json:"course_id"`
	Created    int                       `json:"created"`
	Superseded int                       `json:"superseded"`
	Skipped    int                       `json:"skipped"`
	Counts     map[models.RecordKind]int `json:"counts"`
	Warnings   []string                  `json:"warnings"`
}

func newReport(courseID, runID uuid.UUID, warnings []string) *Report {
	r := &Report{
		RunID:    runID,
		CourseID: courseID,
		Counts:   make(map[models.RecordKind]int),
		Warnings: []string{},
	}
	r.Warnings = append(r.Warnings, warnings...)
	return r
}

func (r *Report) warn(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

func (r *Report) created(kind models.RecordKind, superseded bool) {
	r.Created++
	r.Counts[kind]++
	if superseded {
		r.Superseded++
	}
}
