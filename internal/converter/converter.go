package converter

import (
	"context"
	"fmt"

	"github.com/NeroQue/cartridge-import-backend/internal/logger"
	"github.com/NeroQue/cartridge-import-backend/internal/models"
	"github.com/NeroQue/cartridge-import-backend/pkg/archive"
	"github.com/NeroQue/cartridge-import-backend/pkg/parser"
)

// Converter turns a parsed cartridge into normalized records
type Converter struct {
	Assessments AssessmentConverter // may be nil
	QTIEnabled  bool                // when false assessments are skipped entirely
	Log         *logger.Logger
}

// NewConverter creates converter with an optional assessment engine
func NewConverter(assessments AssessmentConverter, qtiEnabled bool, log *logger.Logger) *Converter {
	if log == nil {
		log = logger.Nop()
	}
	return &Converter{
		Assessments: assessments,
		QTIEnabled:  qtiEnabled,
		Log:         log,
	}
}

// conversion carries the per-archive state of one Convert call
type conversion struct {
	ctx      context.Context
	conv     *Converter
	pkg      *archive.Package
	manifest *parser.Manifest
	doc      *models.CourseDocument
	log      *logger.Logger

	attachmentsByPath map[string]string     // package path -> attachment migration id
	targets           map[string]models.Ref // resource id -> record a module item should point at
	webLinks          map[string]string     // resource id -> url
	itemTitles        map[string]string     // resource id -> first organization title
}

// Convert builds the intermediate course document. Problems with single
// resources end up as warnings on the document; only context cancellation
// aborts.
func (c *Converter) Convert(ctx context.Context, pkg *archive.Package, manifest *parser.Manifest) (*models.CourseDocument, error) {
	doc := models.NewCourseDocument()
	doc.Title = manifest.Title
	doc.SchemaVersion = manifest.SchemaVersion

	run := &conversion{
		ctx:               ctx,
		conv:              c,
		pkg:               pkg,
		manifest:          manifest,
		doc:               doc,
		log:               c.Log.With("manifest", manifest.Identifier),
		attachmentsByPath: make(map[string]string),
		targets:           make(map[string]models.Ref),
		webLinks:          make(map[string]string),
		itemTitles:        make(map[string]string),
	}
	run.collectItemTitles(manifest.Organizations)

	// leaves first: everything later looks attachments up by path
	steps := []struct {
		name string
		fn   func() error
	}{
		{"attachments", run.convertAttachments},
		{"external tools", run.convertExternalTools},
		{"web links", run.convertWebLinks},
		{"discussion topics", run.convertDiscussionTopics},
		{"assessments", run.convertAssessments},
		{"assignments", run.convertAssignments},
		{"modules", run.convertModules},
	}
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := step.fn(); err != nil {
			return nil, fmt.Errorf("converting %s: %w", step.name, err)
		}
	}

	run.log.Info("conversion finished",
		"modules", len(doc.Modules),
		"attachments", len(doc.Attachments),
		"topics", len(doc.DiscussionTopics),
		"tools", len(doc.ExternalTools),
		"assignments", len(doc.Assignments),
		"quizzes", len(doc.Quizzes),
		"warnings", len(doc.Warnings))
	return doc, nil
}

// collectItemTitles remembers the first outline title used for each resource,
// records without a title of their own borrow it
func (r *conversion) collectItemTitles(items []*parser.OrganizationItem) {
	for _, item := range items {
		if item.Resource != nil && item.Title != "" {
			if _, seen := r.itemTitles[item.Resource.Identifier]; !seen {
				r.itemTitles[item.Resource.Identifier] = item.Title
			}
		}
		r.collectItemTitles(item.Children)
	}
}

// titleFor picks the best available display title for a resource
func (r *conversion) titleFor(res *parser.ResourceDescriptor, fallbacks ...string) string {
	if t := r.itemTitles[res.Identifier]; t != "" {
		return t
	}
	for _, f := range fallbacks {
		if f != "" {
			return f
		}
	}
	return res.Identifier
}
