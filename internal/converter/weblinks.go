package converter

import (
	"bytes"
	"encoding/xml"
	"strings"

	"github.com/NeroQue/cartridge-import-backend/pkg/parser"
)

type xmlWebLink struct {
	Title string `xml:"title"`
	URL   struct {
		Href string `xml:"href,attr"`
	} `xml:"url"`
}

// convertWebLinks only collects urls, links end up as external url content
// tags rather than records of their own
func (r *conversion) convertWebLinks() error {
	for _, res := range r.manifest.ResourceOrder {
		if res.Type != parser.ResourceWebLink {
			continue
		}

		data, err := r.pkg.ReadFile(res.PrimaryFile())
		if err != nil {
			r.log.Warn("web link file unreadable", "resource", res.Identifier, "error", err)
			continue
		}
		var link xmlWebLink
		if err := xml.NewDecoder(bytes.NewReader(data)).Decode(&link); err != nil {
			r.log.Warn("web link xml invalid", "resource", res.Identifier, "error", err)
			continue
		}
		if href := strings.TrimSpace(link.URL.Href); href != "" {
			r.webLinks[res.Identifier] = href
			if _, ok := r.itemTitles[res.Identifier]; !ok && link.Title != "" {
				r.itemTitles[res.Identifier] = strings.TrimSpace(link.Title)
			}
		}
	}
	return nil
}
