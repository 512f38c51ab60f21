package parser

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/NeroQue/cartridge-import-backend/internal/logger"
	"github.com/NeroQue/cartridge-import-backend/pkg/archive"
	"github.com/NeroQue/cartridge-import-backend/pkg/util"
)

// ErrMalformedManifest wraps any XML problem in imsmanifest.xml
var ErrMalformedManifest = errors.New("malformed manifest")

// Manifest is the parsed outline + resource map of one cartridge
type Manifest struct {
	Identifier    string
	Title         string
	SchemaVersion string

	Resources     map[string]*ResourceDescriptor // keyed by identifier
	ResourceOrder []*ResourceDescriptor          // document order
	Organizations []*OrganizationItem            // tree roots, document order
}

// Resource looks up a resource by identifier
func (m *Manifest) Resource(id string) (*ResourceDescriptor, bool) {
	r, ok := m.Resources[id]
	return r, ok
}

// ManifestParser reads imsmanifest.xml documents
type ManifestParser struct {
	Log *logger.Logger
}

// NewManifestParser creates parser, log may be nil
func NewManifestParser(log *logger.Logger) *ManifestParser {
	if log == nil {
		log = logger.Nop()
	}
	return &ManifestParser{Log: log}
}

// ParsePackage reads and parses the manifest of an extracted cartridge
func (p *ManifestParser) ParsePackage(pkg *archive.Package) (*Manifest, error) {
	f, err := pkg.Open(manifestBase(pkg))
	if err != nil {
		return nil, fmt.Errorf("opening manifest: %w", err)
	}
	defer f.Close()
	return p.Parse(f)
}

// Parse turns manifest XML into resources and the organization tree
func (p *ManifestParser) Parse(r io.Reader) (*Manifest, error) {
	var doc xmlManifest
	dec := xml.NewDecoder(r)
	// cartridges sometimes declare latin-1 while actually being utf-8, read bytes as-is
	dec.CharsetReader = func(_ string, input io.Reader) (io.Reader, error) { return input, nil }
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedManifest, err)
	}

	m := &Manifest{
		Identifier:    doc.Identifier,
		SchemaVersion: strings.TrimSpace(doc.Metadata.SchemaVersion),
		Resources:     make(map[string]*ResourceDescriptor),
	}
	for _, s := range doc.Metadata.Titles {
		if t := strings.TrimSpace(s); t != "" {
			m.Title = t
			break
		}
	}

	// resources first so organization items can resolve against them
	for _, xr := range doc.Resources {
		res := newResourceDescriptor(xr)
		if res.Identifier == "" {
			p.Log.Debug("skipping resource without identifier", "type", xr.Type)
			continue
		}
		if _, dup := m.Resources[res.Identifier]; dup {
			p.Log.Debug("duplicate resource identifier, keeping first", "identifier", res.Identifier)
			continue
		}
		m.Resources[res.Identifier] = res
		m.ResourceOrder = append(m.ResourceOrder, res)
	}

	for _, org := range doc.Organizations {
		for _, top := range org.Items {
			if strings.TrimSpace(top.IdentifierRef) != "" {
				// not a wrapper, it's an actual item sitting at the top
				m.Organizations = append(m.Organizations, p.buildItem(m, top, 0))
				continue
			}
			// rooted hierarchy: the single wrapper item holds the real outline
			for _, child := range top.Items {
				m.Organizations = append(m.Organizations, p.buildItem(m, child, 0))
			}
		}
	}

	p.Log.Debug("parsed manifest",
		"identifier", m.Identifier,
		"resources", len(m.ResourceOrder),
		"roots", len(m.Organizations))
	return m, nil
}

// buildItem converts one xml item and its subtree
func (p *ManifestParser) buildItem(m *Manifest, xi xmlItem, depth int) *OrganizationItem {
	item := &OrganizationItem{
		Identifier:    xi.Identifier,
		Title:         strings.TrimSpace(xi.Title),
		IdentifierRef: strings.TrimSpace(xi.IdentifierRef),
		Depth:         depth,
		Indent:        indentForDepth(depth),
	}

	if item.IdentifierRef != "" {
		if res, ok := m.Resources[item.IdentifierRef]; ok {
			item.Resource = res
		} else {
			// dangling reference, the item stays as a plain title
			p.Log.Debug("unresolved identifierref", "item", item.Identifier, "ref", item.IdentifierRef)
		}
	}

	for _, child := range xi.Items {
		item.Children = append(item.Children, p.buildItem(m, child, depth+1))
	}
	return item
}

// indentForDepth: roots are modules, so their direct children sit at indent 0
func indentForDepth(depth int) int {
	if depth <= 1 {
		return 0
	}
	return depth - 1
}

func manifestBase(pkg *archive.Package) string {
	name := util.NormalizePath(pkg.ManifestPath)
	if pkg.Root != "" {
		name = strings.TrimPrefix(name, pkg.Root+"/")
	}
	return name
}
