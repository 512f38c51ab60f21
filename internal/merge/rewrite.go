package merge

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/NeroQue/cartridge-import-backend/internal/database"
	"github.com/NeroQue/cartridge-import-backend/internal/models"
	"github.com/google/uuid"
	"golang.org/x/net/html"
)

// rewriteFileReferences is the second phase for html bodies: every pending
// marker becomes the preview url of the attachment that is active right now.
// Markers without an attachment fall back to the path the author wrote.
// Markers inside attributes were re-rendered, so they may sit in the body in
// their escaped form.
func (m *merger) rewriteFileReferences(ctx context.Context, owner, body string, pending []models.PendingReference) string {
	for _, ref := range pending {
		escaped := html.EscapeString(ref.Marker)
		if !strings.Contains(body, ref.Marker) && !strings.Contains(body, escaped) {
			continue
		}

		att, err := m.engine.Store.FindActive(ctx, m.courseID, models.KindAttachment, ref.MigrationID)
		if err != nil {
			if !errors.Is(err, database.ErrNotFound) {
				m.log.Warn("attachment lookup failed", "migration_id", ref.MigrationID, "error", err)
			}
			m.report.warn(fmt.Sprintf("Missing links found in imported content: %q references %q", owner, ref.OriginalPath))
			body = strings.ReplaceAll(body, escaped, html.EscapeString(ref.OriginalPath))
			body = strings.ReplaceAll(body, ref.Marker, ref.OriginalPath)
			continue
		}
		url := models.FilePreviewURL(m.courseID.String(), att.ID.String())
		body = strings.ReplaceAll(body, escaped, url)
		body = strings.ReplaceAll(body, ref.Marker, url)
	}
	return body
}

// resolveRef looks up the active entity behind a migration reference
func (m *merger) resolveRef(ctx context.Context, ref models.Ref) (*models.ContentRef, error) {
	if err := models.ValidateTargetKind(ref.Kind); err != nil {
		return nil, err
	}
	e, err := m.engine.Store.FindActive(ctx, m.courseID, ref.Kind, ref.MigrationID)
	if err != nil {
		return nil, err
	}
	return &models.ContentRef{Kind: e.Kind, ID: e.ID}, nil
}

// lookupID returns the active entity id for a migration id, or the zero value
func (m *merger) lookupID(ctx context.Context, kind models.RecordKind, migrationID string) uuid.NullUUID {
	if migrationID == "" {
		return uuid.NullUUID{}
	}
	e, err := m.engine.Store.FindActive(ctx, m.courseID, kind, migrationID)
	if err != nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: e.ID, Valid: true}
}
