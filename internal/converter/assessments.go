package converter

import (
	"context"

	"github.com/NeroQue/cartridge-import-backend/internal/models"
	"github.com/NeroQue/cartridge-import-backend/pkg/archive"
	"github.com/NeroQue/cartridge-import-backend/pkg/parser"
)

// AssessmentConverter turns one QTI resource into quizzes, banks and
// questions. It's an external engine, the importer only collects its output.
type AssessmentConverter interface {
	ConvertAssessment(ctx context.Context, pkg *archive.Package, res *parser.ResourceDescriptor) (*AssessmentResult, error)
}

// AssessmentResult is whatever the engine produced for a single resource
type AssessmentResult struct {
	Quizzes       []models.Quiz
	QuestionBanks []models.QuestionBank
	Questions     []models.AssessmentQuestion
}

// AssessmentConverterFunc adapts a plain function to AssessmentConverter
type AssessmentConverterFunc func(ctx context.Context, pkg *archive.Package, res *parser.ResourceDescriptor) (*AssessmentResult, error)

func (f AssessmentConverterFunc) ConvertAssessment(ctx context.Context, pkg *archive.Package, res *parser.ResourceDescriptor) (*AssessmentResult, error) {
	return f(ctx, pkg, res)
}

const missingEngineWarning = "Assessments were found but no assessment converter is configured, they were not imported."

func (r *conversion) convertAssessments() error {
	var resources []*parser.ResourceDescriptor
	for _, res := range r.manifest.ResourceOrder {
		if res.Type == parser.ResourceAssessment || res.Type == parser.ResourceQuestionBank {
			resources = append(resources, res)
		}
	}
	if len(resources) == 0 {
		return nil
	}

	if !r.conv.QTIEnabled {
		r.log.Debug("qti disabled, skipping assessments", "count", len(resources))
		return nil
	}
	if r.conv.Assessments == nil {
		r.log.Warn("qti enabled without an assessment converter", "count", len(resources))
		r.doc.AddWarning(missingEngineWarning)
		return nil
	}

	for _, res := range resources {
		if err := r.ctx.Err(); err != nil {
			return err
		}

		result, err := r.conv.Assessments.ConvertAssessment(r.ctx, r.pkg, res)
		if err != nil {
			r.log.Warn("assessment conversion failed", "resource", res.Identifier, "error", err)
			r.doc.AddWarning("The assessment \"" + r.titleFor(res) + "\" could not be converted: " + err.Error())
			continue
		}
		if result == nil {
			continue
		}

		r.doc.Quizzes = append(r.doc.Quizzes, result.Quizzes...)
		r.doc.QuestionBanks = append(r.doc.QuestionBanks, result.QuestionBanks...)
		r.doc.AssessmentQuestions = append(r.doc.AssessmentQuestions, result.Questions...)

		if res.Type == parser.ResourceAssessment {
			if id, ok := quizTarget(res.Identifier, result.Quizzes); ok {
				r.targets[res.Identifier] = models.Ref{Kind: models.KindQuiz, MigrationID: id}
			}
		}
	}
	return nil
}

// quizTarget prefers the quiz carrying the resource's own id, engines that
// rename fall back to the first quiz they returned
func quizTarget(resourceID string, quizzes []models.Quiz) (string, bool) {
	for _, q := range quizzes {
		if q.MigrationID == resourceID {
			return q.MigrationID, true
		}
	}
	if len(quizzes) > 0 {
		return quizzes[0].MigrationID, true
	}
	return "", false
}
