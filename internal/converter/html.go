package converter

import (
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/NeroQue/cartridge-import-backend/internal/models"
	"github.com/NeroQue/cartridge-import-backend/pkg/util"
	"golang.org/x/net/html"
)

var fileBasePrefixes = []string{"$IMS-CC-FILEBASE$", "$IMS_CC_FILEBASE$"}

// markFileReferences swaps src/href values that point at package files for
// pending markers. Only the attributes that change are re-rendered, the rest
// of the markup is copied through untouched.
func (r *conversion) markFileReferences(body, baseDir string) (string, []models.PendingReference) {
	if !strings.ContainsAny(body, "<") {
		return body, nil
	}

	z := html.NewTokenizer(strings.NewReader(body))
	var out strings.Builder
	var refs []models.PendingReference

	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if z.Err() != io.EOF {
				// tokenizer gave up, keep the original body
				r.log.Debug("html tokenizer error", "error", z.Err())
				return body, nil
			}
			break
		}

		raw := append([]byte(nil), z.Raw()...)
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			out.Write(raw)
			continue
		}

		tok := z.Token()
		changed := false
		for i, attr := range tok.Attr {
			if attr.Key != "src" && attr.Key != "href" {
				continue
			}
			migrationID, ok := r.resolveFileReference(attr.Val, baseDir)
			if !ok {
				continue
			}
			marker := models.FileRefMarker(migrationID)
			refs = append(refs, models.PendingReference{
				Marker:       marker,
				MigrationID:  migrationID,
				OriginalPath: attr.Val,
			})
			tok.Attr[i].Val = marker
			changed = true
		}

		if changed {
			out.WriteString(tok.String())
		} else {
			out.Write(raw)
		}
	}
	return out.String(), refs
}

// resolveFileReference maps an html link to an attachment migration id
func (r *conversion) resolveFileReference(val, baseDir string) (string, bool) {
	v := strings.TrimSpace(val)
	if v == "" || strings.HasPrefix(v, "#") || strings.HasPrefix(v, "/") {
		return "", false
	}
	if u, err := url.Parse(v); err == nil && u.Scheme != "" {
		return "", false
	}

	// query strings and anchors don't take part in the lookup
	if i := strings.IndexAny(v, "?#"); i >= 0 {
		v = v[:i]
	}
	if unescaped, err := url.PathUnescape(v); err == nil {
		v = unescaped
	}

	var candidates []string
	fromBase := false
	for _, prefix := range fileBasePrefixes {
		if strings.HasPrefix(v, prefix) {
			rest := strings.TrimPrefix(strings.TrimPrefix(v, prefix), "/")
			candidates = append(candidates, rest, path.Join("web_resources", rest))
			fromBase = true
			break
		}
	}
	if !fromBase {
		candidates = append(candidates, path.Join(baseDir, v), v)
	}

	for _, c := range candidates {
		if id, ok := r.attachmentsByPath[util.NormalizePath(c)]; ok {
			return id, true
		}
	}
	return "", false
}
