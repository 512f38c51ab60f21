package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/NeroQue/cartridge-import-backend/internal/converter"
	"github.com/NeroQue/cartridge-import-backend/internal/logger"
	"github.com/NeroQue/cartridge-import-backend/internal/merge"
	"github.com/NeroQue/cartridge-import-backend/internal/models"
	"github.com/NeroQue/cartridge-import-backend/internal/selection"
	"github.com/NeroQue/cartridge-import-backend/pkg/archive"
	"github.com/NeroQue/cartridge-import-backend/pkg/parser"
	"github.com/NeroQue/cartridge-import-backend/pkg/task"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// ErrInvalidRequest is returned for import requests missing a course or archive
var ErrInvalidRequest = errors.New("invalid import request")

// ImportRequest describes one archive going into one course
type ImportRequest struct {
	CourseID      uuid.UUID
	ArchivePath   string
	Selection     *selection.Spec // nil imports everything
	RemoveArchive bool            // delete the archive once the run is over, used for uploads
}

func (r ImportRequest) validate() error {
	if r.CourseID == uuid.Nil {
		return fmt.Errorf("%w: course id is required", ErrInvalidRequest)
	}
	if r.ArchivePath == "" {
		return fmt.Errorf("%w: archive path is required", ErrInvalidRequest)
	}
	return nil
}

// ImportService runs the whole pipeline: extract, parse, convert, filter, merge
type ImportService struct {
	Loader      *archive.Loader
	Parser      *parser.ManifestParser
	Converter   *converter.Converter
	Engine      *merge.Engine
	Tasks       *task.Manager
	MaxParallel int // batch imports running at once
	Log         *logger.Logger
}

// NewImportService creates service with dependencies
func NewImportService(loader *archive.Loader, p *parser.ManifestParser, conv *converter.Converter, engine *merge.Engine, tasks *task.Manager, maxParallel int, log *logger.Logger) *ImportService {
	if log == nil {
		log = logger.Nop()
	}
	if maxParallel < 1 {
		maxParallel = 1
	}
	return &ImportService{
		Loader:      loader,
		Parser:      p,
		Converter:   conv,
		Engine:      engine,
		Tasks:       tasks,
		MaxParallel: maxParallel,
		Log:         log,
	}
}

// Convert extracts and converts an archive without touching any course
func (s *ImportService) Convert(ctx context.Context, archivePath string) (*models.CourseDocument, error) {
	pkg, err := s.Loader.Extract(ctx, archivePath)
	if err != nil {
		return nil, err
	}
	defer s.closePackage(pkg)

	manifest, err := s.Parser.ParsePackage(pkg)
	if err != nil {
		return nil, err
	}
	return s.Converter.Convert(ctx, pkg, manifest)
}

// Start creates a task and runs the import in the background. The run
// outlives ctx's cancellation, e.g. the upload request finishing.
func (s *ImportService) Start(ctx context.Context, req ImportRequest) (string, error) {
	if err := req.validate(); err != nil {
		return "", err
	}
	taskID := s.Tasks.Create(task.TypeImport, req.CourseID.String())

	go func() {
		_, _ = s.Run(context.WithoutCancel(ctx), taskID, req)
	}()
	return taskID, nil
}

// BatchImport starts one task per request and works through them with at
// most MaxParallel running. Same-course imports still merge one at a time.
func (s *ImportService) BatchImport(ctx context.Context, reqs []ImportRequest) ([]string, error) {
	for i, req := range reqs {
		if err := req.validate(); err != nil {
			return nil, fmt.Errorf("import %d: %w", i, err)
		}
	}

	ids := make([]string, len(reqs))
	for i, req := range reqs {
		ids[i] = s.Tasks.Create(task.TypeImport, req.CourseID.String())
	}

	go func() {
		if err := s.RunBatch(context.WithoutCancel(ctx), ids, reqs); err != nil {
			s.Log.Warn("batch import finished with failures", "error", err)
		}
	}()
	return ids, nil
}

// RunBatch runs already created tasks and waits. Every task runs even when
// others fail; the first failure is returned.
func (s *ImportService) RunBatch(ctx context.Context, taskIDs []string, reqs []ImportRequest) error {
	if len(taskIDs) != len(reqs) {
		return fmt.Errorf("%w: %d tasks for %d requests", ErrInvalidRequest, len(taskIDs), len(reqs))
	}

	var g errgroup.Group
	g.SetLimit(s.MaxParallel)
	for i := range reqs {
		taskID, req := taskIDs[i], reqs[i]
		g.Go(func() error {
			_, err := s.Run(ctx, taskID, req)
			return err
		})
	}
	return g.Wait()
}

// Run executes one import for an existing task and records every state
// change on it
func (s *ImportService) Run(ctx context.Context, taskID string, req ImportRequest) (report *merge.Report, err error) {
	log := s.Log.With("task_id", taskID, "course_id", req.CourseID)
	var warnings []string

	defer func() {
		if req.RemoveArchive {
			if rmErr := s.Loader.Fs.Remove(req.ArchivePath); rmErr != nil {
				log.Warn("could not remove uploaded archive", "path", req.ArchivePath, "error", rmErr)
			}
		}
		if err != nil {
			log.Error("import failed", "error", err)
			if failErr := s.Tasks.Fail(taskID, err.Error(), warnings); failErr != nil {
				log.Warn("could not mark task failed", "error", failErr)
			}
		}
	}()

	if err = req.validate(); err != nil {
		return nil, err
	}

	// converting
	if err = s.Tasks.Transition(taskID, task.StatusConverting, 5, "Extracting archive"); err != nil {
		return nil, err
	}
	log.Info("import started", "archive", req.ArchivePath)

	pkg, err := s.Loader.Extract(ctx, req.ArchivePath)
	if err != nil {
		return nil, fmt.Errorf("extracting archive: %w", err)
	}
	defer s.closePackage(pkg)

	s.Tasks.SetProgress(taskID, 20, "Reading manifest")
	manifest, err := s.Parser.ParsePackage(pkg)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}

	s.Tasks.SetProgress(taskID, 30, "Converting content")
	doc, err := s.Converter.Convert(ctx, pkg, manifest)
	if err != nil {
		return nil, fmt.Errorf("converting content: %w", err)
	}
	warnings = doc.Warnings

	// filtering
	if err = s.Tasks.Transition(taskID, task.StatusFiltering, 50, "Applying selection"); err != nil {
		return nil, err
	}
	filtered := selection.Apply(doc, req.Selection)
	log.Debug("selection applied", "before", len(doc.Records()), "after", len(filtered.Records()))

	// merging
	if err = s.Tasks.Transition(taskID, task.StatusMerging, 60, "Merging into course"); err != nil {
		return nil, err
	}
	report, err = s.Engine.Commit(ctx, req.CourseID, runID(taskID), filtered)
	if report != nil {
		warnings = report.Warnings
	}
	if err != nil {
		return report, fmt.Errorf("merging: %w", err)
	}

	if err = s.Tasks.Complete(taskID, report, report.Warnings); err != nil {
		return report, err
	}
	log.Info("import completed", "created", report.Created, "superseded", report.Superseded, "warnings", len(report.Warnings))
	return report, nil
}

func (s *ImportService) closePackage(pkg *archive.Package) {
	if err := pkg.Close(); err != nil {
		s.Log.Warn("could not remove extracted package", "dir", pkg.Dir(), "error", err)
	}
}

// runID reuses the task id so entities can be traced back to their run
func runID(taskID string) uuid.UUID {
	if id, err := uuid.Parse(taskID); err == nil {
		return id
	}
	return uuid.New()
}
