package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/NeroQue/cartridge-import-backend/internal/logger"
	"github.com/NeroQue/cartridge-import-backend/internal/models"
	"github.com/NeroQue/cartridge-import-backend/internal/services"
	"github.com/google/uuid"
)

// CourseHandler serves what imports left in a course
type CourseHandler struct {
	Service *services.CourseService
	Log     *logger.Logger
}

// NewCourseHandler creates handler with injected service
func NewCourseHandler(service *services.CourseService, log *logger.Logger) *CourseHandler {
	return &CourseHandler{Service: service, Log: log}
}

// ListEntities handles GET /api/courses/{id}/entities?kind=quiz,attachment&state=active
func (h *CourseHandler) ListEntities(w http.ResponseWriter, r *http.Request) {
	courseID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		SendErrorResponse(w, h.Log, "Invalid course ID", http.StatusBadRequest, "bad course id", err)
		return
	}

	filter := models.EntityFilter{State: models.EntityState(r.URL.Query().Get("state"))}
	for _, k := range r.URL.Query()["kind"] {
		for _, part := range strings.Split(k, ",") {
			if part = strings.TrimSpace(part); part != "" {
				filter.Kinds = append(filter.Kinds, models.RecordKind(part))
			}
		}
	}

	entities, err := h.Service.ListEntities(r.Context(), courseID, filter)
	if err != nil {
		if errors.Is(err, services.ErrInvalidFilter) {
			SendErrorResponse(w, h.Log, err.Error(), http.StatusBadRequest, "bad entity filter", err)
			return
		}
		SendErrorResponse(w, h.Log, "Failed to list entities", http.StatusInternalServerError, "listing entities failed", err)
		return
	}

	SendSuccessResponse(w, h.Log, "Entities retrieved", entities)
}

// Outline handles GET /api/courses/{id}/outline - active modules with their items
func (h *CourseHandler) Outline(w http.ResponseWriter, r *http.Request) {
	courseID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		SendErrorResponse(w, h.Log, "Invalid course ID", http.StatusBadRequest, "bad course id", err)
		return
	}

	outline, err := h.Service.GetOutline(r.Context(), courseID)
	if err != nil {
		SendErrorResponse(w, h.Log, "Failed to build outline", http.StatusInternalServerError, "outline failed", err)
		return
	}

	SendSuccessResponse(w, h.Log, "Course outline retrieved", outline)
}
