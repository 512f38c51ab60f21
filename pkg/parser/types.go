package parser

import (
	"encoding/xml"
	"strings"

	"github.com/NeroQue/cartridge-import-backend/pkg/util"
)

// ResourceType is the normalized kind of a manifest resource
type ResourceType string

const (
	ResourceWebContent        ResourceType = "web_content"
	ResourceWebLink           ResourceType = "web_link"
	ResourceDiscussionTopic   ResourceType = "discussion_topic"
	ResourceExternalTool      ResourceType = "external_tool"
	ResourceAssessment        ResourceType = "assessment"
	ResourceQuestionBank      ResourceType = "question_bank"
	ResourceAssociatedContent ResourceType = "associated_content"
	ResourceUnknown           ResourceType = "unknown"
)

// ResourceDescriptor is one <resource> entry. Immutable after parsing.
type ResourceDescriptor struct {
	Identifier   string       `json:"identifier"`
	Type         ResourceType `json:"type"`
	RawType      string       `json:"raw_type"`
	Href         string       `json:"href,omitempty"` // forward slashes only
	Files        []string     `json:"files"`          // forward slashes only, manifest order
	IntendedUse  string       `json:"intended_use,omitempty"`
	Dependencies []string     `json:"dependencies,omitempty"`
}

// PrimaryFile is the href when present, otherwise the first listed file
func (r *ResourceDescriptor) PrimaryFile() string {
	if r.Href != "" {
		return r.Href
	}
	if len(r.Files) > 0 {
		return r.Files[0]
	}
	return ""
}

// IsAssignment reports the intendeduse="assignment" hint
func (r *ResourceDescriptor) IsAssignment() bool {
	return strings.EqualFold(r.IntendedUse, "assignment")
}

// OrganizationItem is a node in the course outline
type OrganizationItem struct {
	Identifier    string              `json:"identifier"`
	Title         string              `json:"title,omitempty"`
	IdentifierRef string              `json:"identifierref,omitempty"`
	Resource      *ResourceDescriptor `json:"-"` // nil when missing or unresolved
	Children      []*OrganizationItem `json:"children,omitempty"`
	Depth         int                 `json:"depth"`
	Indent        int                 `json:"indent"`
}

// IsContainer is true for items that group other items instead of pointing at a resource
func (i *OrganizationItem) IsContainer() bool {
	return i.IdentifierRef == ""
}

// Unresolved is true when the item references a resource the manifest doesn't have
func (i *OrganizationItem) Unresolved() bool {
	return i.IdentifierRef != "" && i.Resource == nil
}

// ClassifyResourceType maps IMS resource type strings onto ResourceType
func ClassifyResourceType(raw string) ResourceType {
	t := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case t == "webcontent":
		return ResourceWebContent
	case strings.HasPrefix(t, "imswl_"):
		return ResourceWebLink
	case strings.HasPrefix(t, "imsdt_"):
		return ResourceDiscussionTopic
	case strings.HasPrefix(t, "imsbasiclti_"):
		return ResourceExternalTool
	case strings.HasPrefix(t, "imsqti_") && strings.HasSuffix(t, "/assessment"):
		return ResourceAssessment
	case strings.HasPrefix(t, "imsqti_") && strings.HasSuffix(t, "/question-bank"):
		return ResourceQuestionBank
	case strings.HasPrefix(t, "associatedcontent/"):
		return ResourceAssociatedContent
	default:
		return ResourceUnknown
	}
}

func newResourceDescriptor(xr xmlResource) *ResourceDescriptor {
	res := &ResourceDescriptor{
		Identifier:  strings.TrimSpace(xr.Identifier),
		RawType:     xr.Type,
		Type:        ClassifyResourceType(xr.Type),
		Href:        util.NormalizePath(xr.Href),
		IntendedUse: strings.TrimSpace(xr.IntendedUse),
		Files:       []string{},
	}
	for _, f := range xr.Files {
		if p := util.NormalizePath(f.Href); p != "" {
			res.Files = append(res.Files, p)
		}
	}
	for _, d := range xr.Dependencies {
		if ref := strings.TrimSpace(d.IdentifierRef); ref != "" {
			res.Dependencies = append(res.Dependencies, ref)
		}
	}
	return res
}

// xml shapes, namespaces are ignored on purpose since cartridge versions differ

type xmlManifest struct {
	XMLName       xml.Name          `xml:"manifest"`
	Identifier    string            `xml:"identifier,attr"`
	Metadata      xmlMetadata       `xml:"metadata"`
	Organizations []xmlOrganization `xml:"organizations>organization"`
	Resources     []xmlResource     `xml:"resources>resource"`
}

type xmlMetadata struct {
	SchemaVersion string   `xml:"schemaversion"`
	Titles        []string `xml:"lom>general>title>string"`
}

type xmlOrganization struct {
	Identifier string    `xml:"identifier,attr"`
	Structure  string    `xml:"structure,attr"`
	Items      []xmlItem `xml:"item"`
}

type xmlItem struct {
	Identifier    string    `xml:"identifier,attr"`
	IdentifierRef string    `xml:"identifierref,attr"`
	Title         string    `xml:"title"`
	Items         []xmlItem `xml:"item"`
}

type xmlResource struct {
	Identifier   string          `xml:"identifier,attr"`
	Type         string          `xml:"type,attr"`
	Href         string          `xml:"href,attr"`
	IntendedUse  string          `xml:"intendeduse,attr"`
	Files        []xmlFile       `xml:"file"`
	Dependencies []xmlDependency `xml:"dependency"`
}

type xmlFile struct {
	Href string `xml:"href,attr"`
}

type xmlDependency struct {
	IdentifierRef string `xml:"identifierref,attr"`
}
