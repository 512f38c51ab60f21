package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"

	"github.com/NeroQue/cartridge-import-backend/internal/logger"
	"github.com/NeroQue/cartridge-import-backend/internal/selection"
	"github.com/NeroQue/cartridge-import-backend/internal/services"
	"github.com/NeroQue/cartridge-import-backend/pkg/archive"
	"github.com/NeroQue/cartridge-import-backend/pkg/parser"
	"github.com/NeroQue/cartridge-import-backend/pkg/util"
	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// ImportStartResponse is returned for accepted imports
type ImportStartResponse struct {
	TaskID  string   `json:"task_id,omitempty"`
	TaskIDs []string `json:"task_ids,omitempty"`
}

// BatchImportRequest is the body of POST /api/imports/batch
type BatchImportRequest struct {
	Imports []BatchImportItem `json:"imports"`
}

type BatchImportItem struct {
	CourseID    string          `json:"course_id"`
	ArchivePath string          `json:"archive_path"`
	Selection   json.RawMessage `json:"selection,omitempty"`
}

// ImportHandler accepts cartridge uploads and import requests
type ImportHandler struct {
	Service        *services.ImportService
	UploadDir      string // uploads are stored here until their run finishes
	MaxUploadBytes int64
	Log            *logger.Logger
}

// NewImportHandler creates handler with injected service
func NewImportHandler(service *services.ImportService, uploadDir string, maxUploadBytes int64, log *logger.Logger) *ImportHandler {
	return &ImportHandler{
		Service:        service,
		UploadDir:      uploadDir,
		MaxUploadBytes: maxUploadBytes,
		Log:            log,
	}
}

// Create handles POST /api/courses/{id}/imports - multipart "file" plus an
// optional "selection" JSON field
func (h *ImportHandler) Create(w http.ResponseWriter, r *http.Request) {
	courseID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		SendErrorResponse(w, h.Log, "Invalid course ID", http.StatusBadRequest, "bad course id", err)
		return
	}

	archivePath, err := h.saveUpload(w, r)
	if err != nil {
		SendErrorResponse(w, h.Log, err.Error(), http.StatusBadRequest, "upload rejected", err)
		return
	}

	spec, err := selection.Parse([]byte(r.FormValue("selection")))
	if err != nil {
		h.removeUpload(archivePath)
		SendErrorResponse(w, h.Log, err.Error(), http.StatusBadRequest, "bad selection", err)
		return
	}

	taskID, err := h.Service.Start(r.Context(), services.ImportRequest{
		CourseID:      courseID,
		ArchivePath:   archivePath,
		Selection:     spec,
		RemoveArchive: true,
	})
	if err != nil {
		h.removeUpload(archivePath)
		SendErrorResponse(w, h.Log, err.Error(), http.StatusBadRequest, "import not started", err)
		return
	}

	h.Log.Info("import accepted", "task_id", taskID, "course_id", courseID)
	SendAcceptedResponse(w, h.Log, "Import started", ImportStartResponse{TaskID: taskID})
}

// Batch handles POST /api/imports/batch - imports archives already on disk
func (h *ImportHandler) Batch(w http.ResponseWriter, r *http.Request) {
	var body BatchImportRequest
	if err := ValidateJSONBody(r, &body); err != nil {
		SendErrorResponse(w, h.Log, err.Error(), http.StatusBadRequest, "bad batch body", err)
		return
	}
	if len(body.Imports) == 0 {
		SendErrorResponse(w, h.Log, "At least one import is required", http.StatusBadRequest, "empty batch", nil)
		return
	}

	reqs := make([]services.ImportRequest, 0, len(body.Imports))
	for i, item := range body.Imports {
		courseID, err := uuid.Parse(item.CourseID)
		if err != nil {
			SendErrorResponse(w, h.Log, fmt.Sprintf("Import %d: invalid course ID", i), http.StatusBadRequest, "bad course id", err)
			return
		}
		spec, err := selection.Parse(item.Selection)
		if err != nil {
			SendErrorResponse(w, h.Log, fmt.Sprintf("Import %d: %v", i, err), http.StatusBadRequest, "bad selection", err)
			return
		}
		reqs = append(reqs, services.ImportRequest{
			CourseID:    courseID,
			ArchivePath: item.ArchivePath,
			Selection:   spec,
		})
	}

	ids, err := h.Service.BatchImport(r.Context(), reqs)
	if err != nil {
		SendErrorResponse(w, h.Log, err.Error(), http.StatusBadRequest, "batch not started", err)
		return
	}

	h.Log.Info("batch import accepted", "imports", len(ids))
	SendAcceptedResponse(w, h.Log, "Batch import started", ImportStartResponse{TaskIDs: ids})
}

// Convert handles POST /api/convert - returns the converted document without importing
func (h *ImportHandler) Convert(w http.ResponseWriter, r *http.Request) {
	archivePath, err := h.saveUpload(w, r)
	if err != nil {
		SendErrorResponse(w, h.Log, err.Error(), http.StatusBadRequest, "upload rejected", err)
		return
	}
	defer h.removeUpload(archivePath)

	doc, err := h.Service.Convert(r.Context(), archivePath)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, archive.ErrInvalidArchive) || errors.Is(err, archive.ErrManifestNotFound) ||
			errors.Is(err, archive.ErrUnsafePath) || errors.Is(err, parser.ErrMalformedManifest) {
			status = http.StatusUnprocessableEntity
		}
		SendErrorResponse(w, h.Log, err.Error(), status, "conversion failed", err)
		return
	}

	SendSuccessResponse(w, h.Log, "Cartridge converted", doc)
}

// saveUpload copies the multipart "file" field onto the loader's filesystem
func (h *ImportHandler) saveUpload(w http.ResponseWriter, r *http.Request) (string, error) {
	if h.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.MaxUploadBytes)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return "", fmt.Errorf("invalid upload: %w", err)
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		return "", errors.New("a cartridge file is required")
	}
	defer file.Close()

	fs := h.Service.Loader.Fs
	if !util.EnsureDirectoryExists(fs, h.UploadDir) {
		return "", errors.New("upload directory is not writable")
	}

	dest := path.Join(h.UploadDir, uuid.New().String()+".imscc")
	out, err := fs.Create(dest)
	if err != nil {
		return "", fmt.Errorf("storing upload: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, file); err != nil {
		_ = fs.Remove(dest)
		return "", fmt.Errorf("storing upload: %w", err)
	}
	return dest, nil
}

func (h *ImportHandler) removeUpload(p string) {
	if err := h.Service.Loader.Fs.Remove(p); err != nil && !errors.Is(err, afero.ErrFileNotFound) {
		h.Log.Warn("could not remove upload", "path", p, "error", err)
	}
}
