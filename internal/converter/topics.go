package converter

import (
	"bytes"
	"encoding/xml"
	"html"
	"strings"

	"github.com/NeroQue/cartridge-import-backend/internal/models"
	"github.com/NeroQue/cartridge-import-backend/pkg/parser"
	"github.com/NeroQue/cartridge-import-backend/pkg/util"
)

type xmlTopic struct {
	Title string `xml:"title"`
	Text  struct {
		TextType string `xml:"texttype,attr"`
		Body     string `xml:",chardata"`
	} `xml:"text"`
	Attachments []struct {
		Href string `xml:"href,attr"`
	} `xml:"attachments>attachment"`
}

// convertDiscussionTopics reads every imsdt resource. Bodies keep pending
// markers instead of urls, the attachments have no persistent ids yet.
func (r *conversion) convertDiscussionTopics() error {
	for _, res := range r.manifest.ResourceOrder {
		if res.Type != parser.ResourceDiscussionTopic {
			continue
		}

		topic, ok := r.convertTopic(res)
		if !ok {
			continue
		}
		r.doc.DiscussionTopics = append(r.doc.DiscussionTopics, topic)
		r.targets[res.Identifier] = models.Ref{Kind: models.KindDiscussionTopic, MigrationID: topic.MigrationID}
	}
	return nil
}

func (r *conversion) convertTopic(res *parser.ResourceDescriptor) (models.DiscussionTopic, bool) {
	descriptor := res.PrimaryFile()
	data, err := r.pkg.ReadFile(descriptor)
	if err != nil {
		r.log.Warn("discussion topic file unreadable", "resource", res.Identifier, "path", descriptor, "error", err)
		r.doc.AddWarning("The discussion topic \"" + r.titleFor(res) + "\" could not be read and was skipped.")
		return models.DiscussionTopic{}, false
	}

	var xt xmlTopic
	if err := xml.NewDecoder(bytes.NewReader(data)).Decode(&xt); err != nil {
		r.log.Warn("discussion topic xml invalid", "resource", res.Identifier, "error", err)
		r.doc.AddWarning("The discussion topic \"" + r.titleFor(res) + "\" is not valid XML and was skipped.")
		return models.DiscussionTopic{}, false
	}

	body := strings.TrimSpace(xt.Text.Body)
	if body != "" && !strings.Contains(strings.ToLower(xt.Text.TextType), "html") {
		// plain text topics still need to render as html
		body = "<p>" + strings.ReplaceAll(html.EscapeString(body), "\n", "<br/>") + "</p>"
	}

	baseDir := util.Folder(descriptor)
	body, pending := r.markFileReferences(body, baseDir)

	topic := models.DiscussionTopic{
		MigrationID: res.Identifier,
		Title:       r.topicTitle(res, xt.Title),
		Body:        body,
		TopicType:   "discussion",
		PendingRefs: pending,
	}

	for _, a := range xt.Attachments {
		if id, ok := r.resolveFileReference(a.Href, baseDir); ok {
			topic.AttachmentRef = &models.Ref{Kind: models.KindAttachment, MigrationID: id}
			break
		}
	}
	return topic, true
}

// topicTitle prefers the topic's own title over the outline's
func (r *conversion) topicTitle(res *parser.ResourceDescriptor, own string) string {
	if t := strings.TrimSpace(own); t != "" {
		return t
	}
	return r.titleFor(res)
}
