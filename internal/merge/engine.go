// Package merge writes a converted course document into a course. Every
// record becomes a new active entity; whatever was active for the same
// migration id before is kept but marked inactive.
package merge

import (
	"context"
	"errors"
	"fmt"

	"github.com/NeroQue/cartridge-import-backend/internal/database"
	"github.com/NeroQue/cartridge-import-backend/internal/logger"
	"github.com/NeroQue/cartridge-import-backend/internal/models"
	"github.com/NeroQue/cartridge-import-backend/internal/selection"
	"github.com/google/uuid"
)

// OnError decides what a failed create-or-supersede does to the run
type OnError string

const (
	OnErrorSkip  OnError = "skip"  // warn and carry on with the next record
	OnErrorAbort OnError = "abort" // stop, entities created so far stay
)

// Store is the part of persistence the engine needs
type Store interface {
	FindActive(ctx context.Context, courseID uuid.UUID, kind models.RecordKind, migrationID string) (*models.Entity, error)
	Supersede(ctx context.Context, e *models.Entity) (bool, error)
}

// Engine merges documents into courses, one merge per course at a time
type Engine struct {
	Store   Store
	OnError OnError
	Log     *logger.Logger
	locks   *courseLocks
}

// NewEngine creates engine, an empty policy means skip
func NewEngine(store Store, onError OnError, log *logger.Logger) *Engine {
	if log == nil {
		log = logger.Nop()
	}
	if onError == "" {
		onError = OnErrorSkip
	}
	return &Engine{
		Store:   store,
		OnError: onError,
		Log:     log,
		locks:   newCourseLocks(),
	}
}

// MergeInto filters doc with spec and commits what's left. A nil spec is a
// full import.
func (e *Engine) MergeInto(ctx context.Context, courseID uuid.UUID, doc *models.CourseDocument, spec *selection.Spec) (*Report, error) {
	return e.Commit(ctx, courseID, uuid.New(), selection.Apply(doc, spec))
}

// Commit writes an already filtered document. Waiting for the course lock
// can be cancelled; once merging starts it runs to the end.
func (e *Engine) Commit(ctx context.Context, courseID, runID uuid.UUID, doc *models.CourseDocument) (*Report, error) {
	release, err := e.locks.acquire(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("waiting for course %s: %w", courseID, err)
	}
	defer release()

	m := &merger{
		engine:   e,
		courseID: courseID,
		runID:    runID,
		report:   newReport(courseID, runID, doc.Warnings),
		log:      e.Log.With("course_id", courseID, "run_id", runID),
	}
	m.log.Info("merge started", "records", doc.CountByKind())

	if err := m.run(context.WithoutCancel(ctx), doc); err != nil {
		m.log.Error("merge aborted", "created", m.report.Created, "error", err)
		return m.report, err
	}

	m.log.Info("merge finished",
		"created", m.report.Created,
		"superseded", m.report.Superseded,
		"skipped", m.report.Skipped,
		"warnings", len(m.report.Warnings))
	return m.report, nil
}

// merger is the state of one Commit
type merger struct {
	engine   *Engine
	courseID uuid.UUID
	runID    uuid.UUID
	report   *Report
	log      *logger.Logger
}

func (m *merger) run(ctx context.Context, doc *models.CourseDocument) error {
	// leaves before anything that looks them up
	for i := range doc.Attachments {
		if _, err := m.persist(ctx, m.attachmentEntity(&doc.Attachments[i])); err != nil {
			return err
		}
	}
	for i := range doc.QuestionBanks {
		if _, err := m.persist(ctx, m.bankEntity(&doc.QuestionBanks[i])); err != nil {
			return err
		}
	}
	for i := range doc.AssessmentQuestions {
		if _, err := m.persist(ctx, m.questionEntity(ctx, &doc.AssessmentQuestions[i])); err != nil {
			return err
		}
	}
	for i := range doc.Quizzes {
		if _, err := m.persist(ctx, m.quizEntity(&doc.Quizzes[i])); err != nil {
			return err
		}
	}
	for i := range doc.ExternalTools {
		if _, err := m.persist(ctx, m.toolEntity(&doc.ExternalTools[i])); err != nil {
			return err
		}
	}
	for i := range doc.DiscussionTopics {
		if _, err := m.persist(ctx, m.topicEntity(ctx, &doc.DiscussionTopics[i])); err != nil {
			return err
		}
	}
	for i := range doc.Assignments {
		if _, err := m.persist(ctx, m.assignmentEntity(ctx, &doc.Assignments[i])); err != nil {
			return err
		}
	}
	return m.mergeModules(ctx, doc.Modules)
}

func (m *merger) mergeModules(ctx context.Context, modules []models.Module) error {
	position := 0
	for i := range modules {
		mod := &modules[i]

		ent := m.newEntity(models.KindModule, mod.MigrationID, mod.Title)
		ent.Position = position + 1
		saved, err := m.persist(ctx, ent)
		if err != nil {
			return err
		}
		if !saved {
			// the tags have no parent to hang off
			m.report.Skipped += len(mod.Items)
			continue
		}
		position++

		if err := m.mergeTags(ctx, ent.ID, mod.Items); err != nil {
			return err
		}
	}
	return nil
}

func (m *merger) mergeTags(ctx context.Context, moduleID uuid.UUID, tags []models.ContentTag) error {
	position := 0
	for i := range tags {
		tag := &tags[i]

		ent := m.newEntity(models.KindContentTag, tag.MigrationID, tag.Title)
		ent.ParentID = uuid.NullUUID{UUID: moduleID, Valid: true}
		ent.Indent = tag.Indent

		switch {
		case tag.Target != nil:
			target, err := m.resolveRef(ctx, *tag.Target)
			if err != nil {
				// target never made it into the course, drop the item
				m.log.Warn("dropping content tag without active target",
					"tag", tag.MigrationID, "kind", tag.Target.Kind, "target", tag.Target.MigrationID, "error", err)
				m.report.Skipped++
				continue
			}
			ent.Target = target
		case tag.URL != "":
			ent.Attributes["url"] = tag.URL
		}

		position++
		ent.Position = position
		if _, err := m.persist(ctx, ent); err != nil {
			return err
		}
	}
	return nil
}

// persist supersedes one entity and applies the failure policy. It reports
// whether the entity was stored.
func (m *merger) persist(ctx context.Context, ent *models.Entity) (bool, error) {
	superseded, err := m.engine.Store.Supersede(ctx, ent)
	if err == nil {
		m.report.created(ent.Kind, superseded)
		return true, nil
	}

	if m.engine.OnError == OnErrorAbort {
		return false, fmt.Errorf("saving %s %q: %w", ent.Kind, ent.MigrationID, err)
	}

	m.log.Warn("skipping record that could not be saved", "kind", ent.Kind, "migration_id", ent.MigrationID, "error", err)
	m.report.Skipped++
	m.report.warn(fmt.Sprintf("The %s %q could not be saved and was skipped.", humanKind(ent.Kind), ent.Title))
	return false, nil
}

func (m *merger) newEntity(kind models.RecordKind, migrationID, title string) *models.Entity {
	return &models.Entity{
		ID:          uuid.New(),
		CourseID:    m.courseID,
		Kind:        kind,
		MigrationID: migrationID,
		RunID:       m.runID,
		Title:       title,
		Attributes:  map[string]any{},
	}
}

func (m *merger) attachmentEntity(a *models.Attachment) *models.Entity {
	ent := m.newEntity(models.KindAttachment, a.MigrationID, a.DisplayName)
	ent.Attributes["path"] = a.Path
	ent.Attributes["folder"] = a.Folder
	ent.Attributes["content_type"] = a.ContentType
	ent.Attributes["size"] = a.Size
	return ent
}

func (m *merger) bankEntity(b *models.QuestionBank) *models.Entity {
	return m.newEntity(models.KindQuestionBank, b.MigrationID, b.Title)
}

func (m *merger) questionEntity(ctx context.Context, q *models.AssessmentQuestion) *models.Entity {
	ent := m.newEntity(models.KindAssessmentQuestion, q.MigrationID, q.Title)
	ent.ParentID = m.lookupID(ctx, models.KindQuestionBank, q.BankRef)
	ent.Attributes["question_type"] = q.QuestionType
	ent.Attributes["question_text"] = q.Text
	ent.Attributes["points_possible"] = q.PointsPossible
	return ent
}

func (m *merger) quizEntity(q *models.Quiz) *models.Entity {
	ent := m.newEntity(models.KindQuiz, q.MigrationID, q.Title)
	ent.Attributes["description"] = q.Description
	ent.Attributes["quiz_type"] = q.QuizType
	ent.Attributes["question_migration_ids"] = q.QuestionRefs
	return ent
}

func (m *merger) toolEntity(t *models.ExternalTool) *models.Entity {
	ent := m.newEntity(models.KindExternalTool, t.MigrationID, t.Title)
	ent.Attributes["description"] = t.Description
	ent.Attributes["url"] = t.URL
	ent.Attributes["domain"] = t.Domain
	ent.Attributes["privacy_level"] = t.PrivacyLevel
	ent.Attributes["custom_fields"] = t.CustomFields
	ent.Attributes["vendor_extensions"] = t.VendorExtensions
	if t.HasSecurityParameters() {
		ent.Attributes["consumer_key"] = t.ConsumerKey
		ent.Attributes["shared_secret"] = t.SharedSecret
	}
	return ent
}

func (m *merger) topicEntity(ctx context.Context, d *models.DiscussionTopic) *models.Entity {
	ent := m.newEntity(models.KindDiscussionTopic, d.MigrationID, d.Title)
	ent.Attributes["message"] = m.rewriteFileReferences(ctx, d.Title, d.Body, d.PendingRefs)
	ent.Attributes["topic_type"] = d.TopicType
	if d.AttachmentRef != nil {
		if id := m.lookupID(ctx, models.KindAttachment, d.AttachmentRef.MigrationID); id.Valid {
			ent.Attributes["attachment_id"] = id.UUID.String()
		}
	}
	return ent
}

func (m *merger) assignmentEntity(ctx context.Context, a *models.Assignment) *models.Entity {
	ent := m.newEntity(models.KindAssignment, a.MigrationID, a.Title)
	ent.Attributes["description"] = m.rewriteFileReferences(ctx, a.Title, a.Description, a.PendingRefs)
	ent.Attributes["submission_types"] = a.SubmissionTypes
	if a.Target != nil {
		target, err := m.resolveRef(ctx, *a.Target)
		switch {
		case err == nil:
			ent.Target = target
		case errors.Is(err, database.ErrNotFound):
			m.log.Debug("assignment target not in course", "assignment", a.MigrationID, "target", a.Target.MigrationID)
		default:
			m.log.Warn("assignment target lookup failed", "assignment", a.MigrationID, "error", err)
		}
	}
	return ent
}

func humanKind(kind models.RecordKind) string {
	switch kind {
	case models.KindContentTag:
		return "module item"
	case models.KindDiscussionTopic:
		return "discussion topic"
	case models.KindAssessmentQuestion:
		return "assessment question"
	case models.KindQuestionBank:
		return "question bank"
	case models.KindExternalTool:
		return "external tool"
	default:
		return string(kind)
	}
}
