package handlers

import (
	"net/http"
	"time"

	"github.com/NeroQue/cartridge-import-backend/internal/logger"
	"github.com/NeroQue/cartridge-import-backend/pkg/task"
)

type TaskCleanupResponse struct {
	Cleaned int `json:"cleaned"`
}

// TaskHandler handles task status requests
type TaskHandler struct {
	Tasks *task.Manager
	Log   *logger.Logger
}

// NewTaskHandler creates new task handler
func NewTaskHandler(tasks *task.Manager, log *logger.Logger) *TaskHandler {
	return &TaskHandler{Tasks: tasks, Log: log}
}

// GetTask handles GET /api/tasks?id={taskId} - checks task status.
// Without an id it lists tasks, optionally for one course_id.
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	taskID := r.URL.Query().Get("id")
	if taskID == "" {
		tasks := h.Tasks.List(r.URL.Query().Get("course_id"))
		SendSuccessResponse(w, h.Log, "Tasks retrieved", tasks)
		return
	}

	t, exists := h.Tasks.Get(taskID)
	if !exists {
		SendErrorResponse(w, h.Log, "Task not found", http.StatusNotFound, "unknown task", nil)
		return
	}

	SendSuccessResponse(w, h.Log, "Task retrieved", t)
}

// CleanupTasks handles POST /api/tasks/cleanup - manually cleans old tasks
func (h *TaskHandler) CleanupTasks(w http.ResponseWriter, r *http.Request) {
	// default to 24 hours if not specified
	ageStr := r.URL.Query().Get("age")
	age := 24 * time.Hour

	if ageStr != "" {
		var err error
		age, err = time.ParseDuration(ageStr)
		if err != nil {
			SendErrorResponse(w, h.Log, "Invalid duration format", http.StatusBadRequest, "bad cleanup age", err)
			return
		}
	}

	cleaned := h.Tasks.CleanupOldTasks(age)
	SendSuccessResponse(w, h.Log, "Cleanup completed", TaskCleanupResponse{Cleaned: cleaned})
}
