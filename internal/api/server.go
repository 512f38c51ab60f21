package api

import (
	"net/http"
	"path"

	"github.com/NeroQue/cartridge-import-backend/internal/api/handlers"
	"github.com/NeroQue/cartridge-import-backend/internal/config"
	"github.com/NeroQue/cartridge-import-backend/internal/logger"
	"github.com/NeroQue/cartridge-import-backend/internal/services"
)

// Server holds all the app components together
type Server struct {
	Router *http.ServeMux // handles routing requests
	Log    *logger.Logger

	// handlers for different parts of the API
	ImportHandler *handlers.ImportHandler
	CourseHandler *handlers.CourseHandler
	TaskHandler   *handlers.TaskHandler
	AdminHandler  *handlers.AdminHandler // for admin operations
}

// NewServer wires the services into handlers and returns a ready-to-use server
func NewServer(cfg *config.Config, imports *services.ImportService, courses *services.CourseService, admin *services.AdminService, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}

	server := &Server{
		Router:        http.NewServeMux(),
		Log:           log,
		ImportHandler: handlers.NewImportHandler(imports, path.Join(cfg.WorkDir, "uploads"), cfg.MaxUploadBytes, log),
		CourseHandler: handlers.NewCourseHandler(courses, log),
		TaskHandler:   handlers.NewTaskHandler(imports.Tasks, log),
		AdminHandler:  handlers.NewAdminHandler(admin, log),
	}

	server.setupRoutes()
	return server
}

// setupRoutes maps all the endpoints to handler functions
func (s *Server) setupRoutes() {
	s.Router.HandleFunc("/api", s.HealthHandler)

	// imports
	s.Router.HandleFunc("POST /api/courses/{id}/imports", s.ImportHandler.Create)
	s.Router.HandleFunc("POST /api/imports/batch", s.ImportHandler.Batch)
	s.Router.HandleFunc("POST /api/convert", s.ImportHandler.Convert)

	// course contents
	s.Router.HandleFunc("GET /api/courses/{id}/entities", s.CourseHandler.ListEntities)
	s.Router.HandleFunc("GET /api/courses/{id}/outline", s.CourseHandler.Outline)
	s.Router.HandleFunc("GET /api/courses/{id}/stats", s.AdminHandler.GetStats)

	// admin endpoints
	s.Router.HandleFunc("POST /api/admin/courses/{id}/purge", s.AdminHandler.PurgeHistory)

	// task tracking
	s.Router.HandleFunc("GET /api/tasks", s.TaskHandler.GetTask)
	s.Router.HandleFunc("POST /api/tasks/cleanup", s.TaskHandler.CleanupTasks)
}

// ServeHTTP implements the http.Handler interface
// This allows the server to be used directly with http.ListenAndServe
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

// Handler is the router wrapped in the middleware chain
func (s *Server) Handler() http.Handler {
	return s.EnableCORS(s.LogRequests(s))
}

// HealthHandler answers on the base API endpoint so load balancers have something to poll
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	handlers.SendSuccessResponse(w, s.Log, "Cartridge import backend is up", nil)
}
