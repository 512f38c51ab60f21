package handlers

import (
	"net/http"

	"github.com/NeroQue/cartridge-import-backend/internal/logger"
	"github.com/NeroQue/cartridge-import-backend/internal/services"
	"github.com/google/uuid"
)

type PurgeResponse struct {
	Removed int64 `json:"removed"`
}

// AdminHandler handles administrative operations
type AdminHandler struct {
	Service *services.AdminService // admin operations go through here
	Log     *logger.Logger
}

// NewAdminHandler creates handler with injected admin service
func NewAdminHandler(service *services.AdminService, log *logger.Logger) *AdminHandler {
	return &AdminHandler{Service: service, Log: log}
}

// PurgeHistory handles POST /api/admin/courses/{id}/purge - drops superseded entities
func (h *AdminHandler) PurgeHistory(w http.ResponseWriter, r *http.Request) {
	courseID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		SendErrorResponse(w, h.Log, "Invalid course ID", http.StatusBadRequest, "bad course id", err)
		return
	}

	h.Log.Info("history purge requested", "course_id", courseID)

	removed, err := h.Service.PurgeHistory(r.Context(), courseID)
	if err != nil {
		SendErrorResponse(w, h.Log, "Purge failed", http.StatusInternalServerError, "purge failed", err)
		return
	}

	SendSuccessResponse(w, h.Log, "Superseded entities removed", PurgeResponse{Removed: removed})
}

// GetStats handles GET /api/courses/{id}/stats - entity counts per kind
func (h *AdminHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	courseID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		SendErrorResponse(w, h.Log, "Invalid course ID", http.StatusBadRequest, "bad course id", err)
		return
	}

	stats, err := h.Service.GetCourseStats(r.Context(), courseID)
	if err != nil {
		SendErrorResponse(w, h.Log, "Failed to get course stats", http.StatusInternalServerError, "stats failed", err)
		return
	}

	SendSuccessResponse(w, h.Log, "Course statistics retrieved", stats)
}
