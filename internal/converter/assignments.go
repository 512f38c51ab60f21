package converter

import (
	"html"

	"github.com/NeroQue/cartridge-import-backend/internal/models"
	"github.com/NeroQue/cartridge-import-backend/pkg/parser"
)

// convertAssignments handles resources flagged intendeduse="assignment".
// Module items pointing at such a resource link the assignment, not the file.
func (r *conversion) convertAssignments() error {
	for _, res := range r.manifest.ResourceOrder {
		if !res.IsAssignment() {
			continue
		}

		var a models.Assignment
		switch res.Type {
		case parser.ResourceWebContent, parser.ResourceAssociatedContent:
			id, ok := r.attachmentsByPath[res.PrimaryFile()]
			if !ok {
				r.log.Warn("assignment file missing", "resource", res.Identifier)
				continue
			}
			a = r.fileAssignment(res, id)
		case parser.ResourceExternalTool:
			if !r.doc.Has(models.KindExternalTool, res.Identifier) {
				continue
			}
			a = models.Assignment{
				MigrationID:     res.Identifier,
				Title:           r.titleFor(res),
				SubmissionTypes: []string{"external_tool"},
				Target:          &models.Ref{Kind: models.KindExternalTool, MigrationID: res.Identifier},
			}
		default:
			r.log.Debug("intendeduse=assignment on unsupported resource", "resource", res.Identifier, "type", res.RawType)
			continue
		}

		r.doc.Assignments = append(r.doc.Assignments, a)
		r.targets[res.Identifier] = models.Ref{Kind: models.KindAssignment, MigrationID: a.MigrationID}
	}
	return nil
}

func (r *conversion) fileAssignment(res *parser.ResourceDescriptor, attachmentID string) models.Assignment {
	title := r.titleFor(res)
	primary := res.PrimaryFile()
	marker := models.FileRefMarker(attachmentID)

	return models.Assignment{
		MigrationID:     res.Identifier,
		Title:           title,
		Description:     `<p><a href="` + marker + `">` + html.EscapeString(title) + `</a></p>`,
		SubmissionTypes: []string{"online_upload", "online_text_entry"},
		Target:          &models.Ref{Kind: models.KindAttachment, MigrationID: attachmentID},
		PendingRefs: []models.PendingReference{{
			Marker:       marker,
			MigrationID:  attachmentID,
			OriginalPath: primary,
		}},
	}
}
