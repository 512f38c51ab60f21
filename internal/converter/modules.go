package converter

import (
	"fmt"
	"strconv"

	"github.com/NeroQue/cartridge-import-backend/internal/models"
	"github.com/NeroQue/cartridge-import-backend/pkg/parser"
)

// MissingResourceWarning is recorded for outline items whose identifierref
// names a resource the manifest doesn't have
func MissingResourceWarning(title, ref string) string {
	return fmt.Sprintf("The module item %q references the missing resource %q and was imported as a text header.", title, ref)
}

// convertModules walks the outline. Containers become title-only sub headers
// with their children one indent deeper; the parser already worked the
// indents out from depth.
func (r *conversion) convertModules() error {
	for i, om := range r.manifest.Outline() {
		moduleID := om.Identifier
		if moduleID == "" {
			moduleID = StableKey("module/" + strconv.Itoa(i) + "/" + om.Title)
		}

		mod := models.Module{
			MigrationID: moduleID,
			Title:       om.Title,
			Items:       []models.ContentTag{},
		}
		r.appendItems(&mod, om.Items)
		r.doc.Modules = append(r.doc.Modules, mod)
	}
	return nil
}

func (r *conversion) appendItems(mod *models.Module, items []*parser.OrganizationItem) {
	for _, item := range items {
		tagID := item.Identifier
		if tagID == "" {
			tagID = StableKey(mod.MigrationID + "/" + strconv.Itoa(len(mod.Items)) + "/" + item.Title)
		}
		tag := models.ContentTag{
			MigrationID:       tagID,
			ModuleMigrationID: mod.MigrationID,
			Title:             item.Title,
			Indent:            item.Indent,
		}

		switch {
		case item.IsContainer():
			mod.Items = append(mod.Items, tag)
			r.appendItems(mod, item.Children)
			continue
		case item.Unresolved():
			r.log.Warn("module item references missing resource", "item", item.Identifier, "ref", item.IdentifierRef)
			r.doc.AddWarning(MissingResourceWarning(item.Title, item.IdentifierRef))
			mod.Items = append(mod.Items, tag)
			continue
		}

		res := item.Resource
		if target, ok := r.targets[res.Identifier]; ok {
			t := target
			tag.Target = &t
		} else if href, ok := r.webLinks[res.Identifier]; ok {
			tag.URL = href
		} else {
			// nothing was produced for this resource, the item is left out
			r.log.Warn("skipping module item with unsupported content", "item", item.Identifier, "resource", res.Identifier, "type", res.RawType)
			continue
		}
		if tag.Title == "" {
			tag.Title = r.titleFor(res)
		}
		mod.Items = append(mod.Items, tag)

		// resource items normally have no children, keep them if they do
		r.appendItems(mod, item.Children)
	}
}
