package converter

import (
	"crypto/md5"
	"encoding/hex"
	"io"
	"net/http"
	"path"

	"github.com/NeroQue/cartridge-import-backend/internal/models"
	"github.com/NeroQue/cartridge-import-backend/pkg/parser"
	"github.com/NeroQue/cartridge-import-backend/pkg/util"
	"github.com/gabriel-vasile/mimetype"
)

// sniffLen is how much of a file we read for content type detection
const sniffLen = 3072

// StableKey derives a migration id from a package path. Same path, same key,
// so re-imports of the archive line up.
func StableKey(p string) string {
	sum := md5.Sum([]byte(p))
	return "i" + hex.EncodeToString(sum[:])
}

// convertAttachments creates one attachment per shipped file. Web content owns
// all of its files; topics and tools only own the files besides their xml
// descriptor.
func (r *conversion) convertAttachments() error {
	for _, res := range r.manifest.ResourceOrder {
		var files []string
		switch res.Type {
		case parser.ResourceWebContent, parser.ResourceAssociatedContent:
			files = res.Files
			if res.Href != "" && !contains(files, res.Href) {
				files = append([]string{res.Href}, files...)
			}
		case parser.ResourceDiscussionTopic, parser.ResourceExternalTool, parser.ResourceWebLink:
			for _, f := range res.Files {
				if f != res.PrimaryFile() {
					files = append(files, f)
				}
			}
		default:
			continue
		}

		primary := res.PrimaryFile()
		for _, f := range files {
			if _, done := r.attachmentsByPath[f]; done {
				continue
			}

			migrationID := StableKey(f)
			if f == primary && (res.Type == parser.ResourceWebContent || res.Type == parser.ResourceAssociatedContent) {
				migrationID = res.Identifier
			}

			att, ok := r.buildAttachment(res, f, migrationID)
			if !ok {
				continue
			}
			r.attachmentsByPath[f] = att.MigrationID
			r.doc.Attachments = append(r.doc.Attachments, att)
		}

		if res.Type == parser.ResourceWebContent || res.Type == parser.ResourceAssociatedContent {
			if id, ok := r.attachmentsByPath[primary]; ok {
				r.targets[res.Identifier] = models.Ref{Kind: models.KindAttachment, MigrationID: id}
			}
		}
	}
	return nil
}

func (r *conversion) buildAttachment(res *parser.ResourceDescriptor, p, migrationID string) (models.Attachment, bool) {
	info, err := r.pkg.Stat(p)
	if err != nil || info.IsDir() {
		r.log.Warn("file listed in manifest is missing from archive", "resource", res.Identifier, "path", p)
		r.doc.AddWarning("The file \"" + p + "\" listed by resource \"" + res.Identifier + "\" is missing from the archive.")
		return models.Attachment{}, false
	}

	return models.Attachment{
		MigrationID: migrationID,
		Path:        p,
		DisplayName: path.Base(p),
		Folder:      util.Folder(p),
		ContentType: r.detectContentType(p),
		Size:        info.Size(),
		ResourceID:  res.Identifier,
	}, true
}

// detectContentType sniffs with the stdlib first and falls back to the
// broader mimetype library when that comes back generic
func (r *conversion) detectContentType(p string) string {
	f, err := r.pkg.Open(p)
	if err != nil {
		return "application/octet-stream"
	}
	defer f.Close()

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "application/octet-stream"
	}
	head = head[:n]
	if len(head) == 0 {
		return "application/octet-stream"
	}

	mt := http.DetectContentType(head)
	if mt != "application/octet-stream" {
		return mt
	}
	return mimetype.Detect(head).String()
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
